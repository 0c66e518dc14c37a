// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives the fixed stage sequence that turns a natural
// language question into a single read-only SQL query: seed the log, list
// tables, fetch relevant schemas, resolve fuzzy filter values, then force
// the model to submit through the terminal tool and validate that it did.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSQL/services/llm"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/state"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/tools"
)

// Stage names, in execution order.
const (
	StageStart            = "start"
	StageListTables       = "list_tables"
	StageGetSchemaRequest = "get_schema_request"
	StageGetSchema        = "get_schema"
	StageRetrieverRouting = "retriever_routing"
	StageRetrieve         = "retrieve"
	StageQueryGeneration  = "query_generation"
	StageValidate         = "validate"
)

// wrongToolTemplate is the exact corrective payload injected when the
// query-generation turn calls anything but the terminal tool.
const wrongToolTemplate = "Error: The wrong tool was called: %s. Please fix " +
	"your mistakes. Remember to only call %s to submit the final answer. " +
	"Generated queries should be outputted WITHOUT a tool call."

// Config is the immutable pipeline configuration, fixed at construction.
type Config struct {
	// MaxContractRetries is how many extra query-generation turns a run
	// may spend after a wrong-tool violation. Zero (the default) fails
	// closed: the violation is recorded and the run ends incomplete.
	MaxContractRetries int
}

// Result is the outcome of one pipeline run.
type Result struct {
	// RunID identifies the run in logs and traces.
	RunID string `json:"run_id"`

	// FinalAnswer is the submitted SQL text. Empty unless Complete.
	FinalAnswer string `json:"final_answer"`

	// Complete reports whether the run ended with a sole terminal tool
	// call. An incomplete run's log still carries the injected errors.
	Complete bool `json:"complete"`

	// Entries is the full interaction log of the run.
	Entries []state.Entry `json:"entries"`
}

// Pipeline is the orchestration state machine. Construct once, run many;
// each Run owns a fresh log.
//
// Thread Safety: Safe for concurrent Run calls provided the gateway,
// executor, and registry are.
type Pipeline struct {
	gateway  *Gateway
	executor *tools.FallbackExecutor
	registry *tools.Registry
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a pipeline over its collaborators. A nil logger uses
// slog.Default.
func New(gateway *Gateway, executor *tools.FallbackExecutor, registry *tools.Registry, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		gateway:  gateway,
		executor: executor,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("sqlagent/pipeline"),
	}
}

// Run executes the full stage sequence for one question.
//
// Description:
//
//	Stages run strictly in order, each completing before the next begins.
//	Tool failures degrade into error results the model can react to;
//	completion failures are fatal and surface as a run error wrapping
//	llm.ErrCompletionUnavailable.
//
// Inputs:
//   - ctx: Context for all external calls of the run.
//   - question: The caller's natural language question.
//
// Outputs:
//   - *Result: The run outcome with the full log. Non-nil whenever error
//     is nil, including incomplete runs.
//   - error: Non-nil only on fatal completion failure.
func (p *Pipeline) Run(ctx context.Context, question string) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	logger := p.logger.With(slog.String("run_id", runID))
	log := state.NewLog()

	// Stage 1: seed the log. No model call; the synthesized turn
	// guarantees the first real turn always has table context.
	start := time.Now()
	log.Append(
		&state.UserEntry{Text: question},
		&state.AssistantEntry{ToolRequests: []state.ToolRequest{{
			ID:   uuid.NewString(),
			Name: tools.NameListTables,
		}}},
	)
	observeStage(StageStart, start)

	// Stage 2: answer the synthesized list_tables request.
	p.runToolStage(ctx, StageListTables, log, logger)

	// Stages 3-4: let the model pick relevant tables, then fetch schemas.
	if err := p.runCompletionStage(ctx, StageGetSchemaRequest, log, logger,
		getSchemaSystemPrompt, p.stageTools(tools.NameGetSchema), llm.AutoToolChoice()); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	p.runToolStage(ctx, StageGetSchema, log, logger)

	// Stages 5-6: resolve fuzzy filter values before query writing.
	if err := p.runCompletionStage(ctx, StageRetrieverRouting, log, logger,
		retrieverSystemPrompt, p.stageTools(tools.NameSearchMaterials), llm.AutoToolChoice()); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	p.runToolStage(ctx, StageRetrieve, log, logger)

	// Stages 7-8: generate, forced through the terminal tool, then gate.
	terminal := []llm.ToolDef{tools.SubmitFinalAnswerDef()}
	for attempt := 0; ; attempt++ {
		if err := p.runCompletionStage(ctx, StageQueryGeneration, log, logger,
			queryGenSystemPrompt, terminal, llm.ForcedToolChoice(tools.NameSubmitFinal)); err != nil {
			runsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		start := time.Now()
		answer, complete, corrections := p.validate(log)
		if complete {
			observeStage(StageValidate, start)
			logger.Info("run complete", slog.Int("entries", log.Len()))
			runsTotal.WithLabelValues("complete").Inc()
			span.SetAttributes(attribute.Bool("complete", true))
			return &Result{RunID: runID, FinalAnswer: answer, Complete: true, Entries: log.Entries()}, nil
		}

		for _, correction := range corrections {
			contractViolations.Inc()
			log.Append(correction)
		}
		observeStage(StageValidate, start)
		logger.Warn("query generation violated the terminal-tool contract",
			slog.Int("offending_calls", len(corrections)),
			slog.Int("attempt", attempt),
		)

		if attempt >= p.cfg.MaxContractRetries {
			runsTotal.WithLabelValues("incomplete").Inc()
			span.SetAttributes(attribute.Bool("complete", false))
			return &Result{RunID: runID, Complete: false, Entries: log.Entries()}, nil
		}
	}
}

// stageTools returns the published definitions of the named registered
// tools. Unregistered names are skipped.
func (p *Pipeline) stageTools(names ...string) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		if t, ok := p.registry.Lookup(name); ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

// runCompletionStage issues one gateway turn and appends it. Failures are
// fatal to the run.
func (p *Pipeline) runCompletionStage(
	ctx context.Context,
	stage string,
	log *state.Log,
	logger *slog.Logger,
	systemPrompt string,
	stageTools []llm.ToolDef,
	choice llm.ToolChoice,
) error {
	start := time.Now()
	defer observeStage(stage, start)

	ctx, span := p.tracer.Start(ctx, "pipeline."+stage)
	defer span.End()

	entry, err := p.gateway.Complete(ctx, systemPrompt, stageTools, choice, log)
	if err != nil {
		logger.Error("completion stage failed", slog.String("stage", stage), slog.Any("error", err))
		return fmt.Errorf("pipeline: stage %s: %w", stage, err)
	}
	log.Append(entry)
	return nil
}

// runToolStage answers every pending request of the latest assistant turn.
// A turn with no pending requests is a no-op; the pipeline proceeds.
func (p *Pipeline) runToolStage(ctx context.Context, stage string, log *state.Log, logger *slog.Logger) {
	start := time.Now()
	defer observeStage(stage, start)

	reqs := log.PendingRequests()
	if len(reqs) == 0 {
		logger.Debug("no pending tool requests", slog.String("stage", stage))
		return
	}

	ctx, span := p.tracer.Start(ctx, "pipeline."+stage,
		trace.WithAttributes(attribute.Int("requests", len(reqs))))
	defer span.End()

	for _, res := range p.executor.ExecuteBatch(ctx, reqs) {
		log.Append(res)
	}
}

// validate applies the terminal gate to the latest assistant turn.
//
// Description:
//
//	Complete only when the turn's sole tool request is the terminal tool
//	with a string final answer. Every non-terminal request yields a
//	corrective wrong-tool entry naming it; a terminal request with a
//	malformed argument yields a generic error entry, so the model is told
//	rather than the run silently yielding an empty answer.
func (p *Pipeline) validate(log *state.Log) (answer string, complete bool, corrections []*state.ToolResultEntry) {
	last := log.LastAssistant()
	if last == nil {
		return "", false, nil
	}

	for _, req := range last.ToolRequests {
		if req.Name != tools.NameSubmitFinal {
			corrections = append(corrections, &state.ToolResultEntry{
				RequestID: req.ID,
				Content:   fmt.Sprintf(wrongToolTemplate, req.Name, tools.NameSubmitFinal),
				IsError:   true,
			})
		}
	}
	if len(corrections) > 0 || len(last.ToolRequests) != 1 {
		return "", false, corrections
	}

	req := last.ToolRequests[0]
	text, ok := req.Arguments[tools.FinalAnswerField].(string)
	if !ok {
		return "", false, []*state.ToolResultEntry{
			state.NewErrorResult(req.ID, fmt.Errorf("%s must be a string", tools.FinalAnswerField)),
		}
	}
	return text, true, nil
}
