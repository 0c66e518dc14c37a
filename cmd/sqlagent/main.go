// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sqlagent answers natural language questions against a relational
// database by generating a single read-only SQL query.
//
// Usage:
//
//	# One-shot question from the command line
//	DATABASE_URL=postgres://... OPENAI_API_KEY=sk-... sqlagent ask "which materials mention gold thread?"
//
//	# HTTP server
//	sqlagent serve --config agent.yaml
//
// Example request:
//
//	curl -X POST http://localhost:8095/v1/sqlagent/run \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "which materials mention gold thread?"}'
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/AleutianSQL/services/sqlagent"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/config"
)

var (
	configPath string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:   "sqlagent",
		Short: "Natural language to SQL agent",
		Long: "sqlagent drives a fixed pipeline of model completions and tool calls\n" +
			"to turn a natural language question into one read-only SQL query.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newAskCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger installs the process-wide slog handler.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// newAskCmd answers one question and prints the generated SQL.
func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and print the generated SQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := sqlagent.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.Run(ctx, args[0])
			if err != nil {
				return err
			}
			if !result.Complete {
				return fmt.Errorf("run %s did not produce a final answer; retry the question", result.RunID)
			}
			fmt.Println(result.FinalAnswer)
			return nil
		},
	}
}

// newServeCmd starts the HTTP server.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sqlagent HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogger()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.ListenAddr = fmt.Sprintf(":%d", port)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := sqlagent.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))

			router := gin.New()
			router.Use(gin.Recovery())
			router.Use(otelgin.Middleware("sqlagent"))
			if debug {
				router.Use(gin.Logger())
			}
			router.GET("/metrics", gin.WrapH(promhttp.Handler()))
			svc.RegisterRoutes(router)

			server := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting sqlagent server", slog.String("address", cfg.ListenAddr))
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down sqlagent server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Override the configured listen port")
	return cmd
}
