// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSQL/services/sqlagent/state"
)

// executeConcurrency bounds parallel tool invocations in one batch.
const executeConcurrency = 4

// Executor resolves and runs tool requests against a registry.
//
// Thread Safety: Executor is safe for concurrent use provided the
// registered tools are.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewExecutor creates an executor over the registry. A nil logger uses
// slog.Default.
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, logger: logger}
}

// Execute runs a single tool request and returns its output text.
//
// Description:
//
//	Looks the tool up by name and invokes it. Unknown tools and invocation
//	failures surface as errors; converting those into recoverable error
//	results is the FallbackExecutor's job.
func (e *Executor) Execute(ctx context.Context, req state.ToolRequest) (string, error) {
	tool, ok := e.registry.Lookup(req.Name)
	if !ok {
		return "", fmt.Errorf("tools: unknown tool %q", req.Name)
	}
	out, err := tool.Invoke(ctx, req.Arguments)
	if err != nil {
		return "", err
	}
	return out, nil
}

// FallbackExecutor runs tool request batches and degrades failures into
// error tool results the model can recover from, instead of aborting the
// run.
//
// Thread Safety: Safe for concurrent use.
type FallbackExecutor struct {
	inner  *Executor
	logger *slog.Logger
}

// NewFallbackExecutor wraps an executor with error-to-result fallback.
func NewFallbackExecutor(inner *Executor, logger *slog.Logger) *FallbackExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackExecutor{inner: inner, logger: logger}
}

// ExecuteBatch runs every request in the batch and returns exactly one
// tool result per request, in request order.
//
// Description:
//
//	Requests run concurrently under a bounded group. A failing request
//	yields an error result carrying the failure cause; successes in the
//	same batch keep their real output. A panicking tool is contained the
//	same way: the panic becomes that request's error result and never
//	escapes the batch, so the pipeline never stalls on an unanswered
//	request. All goroutines are joined before returning, so results
//	never race with the caller.
//
// Inputs:
//   - ctx: Context; cancellation aborts outstanding invocations.
//   - reqs: The tool requests of one assistant entry.
//
// Outputs:
//   - []*state.ToolResultEntry: One entry per request, positionally aligned.
func (f *FallbackExecutor) ExecuteBatch(ctx context.Context, reqs []state.ToolRequest) []*state.ToolResultEntry {
	results := make([]*state.ToolResultEntry, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(executeConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out, err := f.safeExecute(gctx, req)
			if err != nil {
				f.logger.Warn("tool invocation failed",
					slog.String("tool", req.Name),
					slog.String("request_id", req.ID),
					slog.Any("error", err),
				)
				results[i] = state.NewErrorResult(req.ID, err)
				return nil
			}
			results[i] = &state.ToolResultEntry{RequestID: req.ID, Content: out}
			return nil
		})
	}
	// Goroutines never return errors; Wait is the join barrier.
	_ = g.Wait()

	// Every request id must be answered even if the execution mechanism
	// failed before producing a result for it.
	for i, req := range reqs {
		if results[i] == nil {
			results[i] = state.NewErrorResult(req.ID,
				fmt.Errorf("tools: %s produced no result", req.Name))
		}
	}
	return results
}

// safeExecute invokes one request and converts a panicking tool into an
// ordinary execution failure.
func (f *FallbackExecutor) safeExecute(ctx context.Context, req state.ToolRequest) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tools: %s panicked: %v", req.Name, r)
		}
	}()
	return f.inner.Execute(ctx, req)
}
