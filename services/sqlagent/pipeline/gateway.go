// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianSQL/services/llm"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/state"
)

// Gateway is the single completion operation the pipeline stages share:
// ask the model for a turn given a system prompt, permitted tools, and a
// tool-choice policy.
//
// Thread Safety: Gateway is safe for concurrent use provided the wrapped
// client is.
type Gateway struct {
	client llm.Client
	params llm.GenerationParams
	logger *slog.Logger
}

// NewGateway wraps a completion client. A nil logger uses slog.Default.
func NewGateway(client llm.Client, params llm.GenerationParams, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, params: params, logger: logger}
}

// Complete asks for one model turn over the accumulated log.
//
// Description:
//
//	Converts the log to provider history under the stage's system prompt,
//	issues exactly one completion, and decodes the response into an
//	AssistantEntry. No retries, no caching. Failures carry
//	llm.ErrCompletionUnavailable and are fatal to the calling run.
//
// Inputs:
//   - ctx: Context for the network call.
//   - systemPrompt: Stage instructions, prepended to the history.
//   - tools: The tool signatures the model may reference this turn.
//   - choice: Tool-choice policy (auto, none, or forced to one tool).
//   - log: The run's entry log.
//
// Outputs:
//   - *state.AssistantEntry: The decoded model turn.
//   - error: Non-nil on completion failure or undecodable tool arguments.
func (g *Gateway) Complete(
	ctx context.Context,
	systemPrompt string,
	tools []llm.ToolDef,
	choice llm.ToolChoice,
	log *state.Log,
) (*state.AssistantEntry, error) {
	result, err := g.client.ChatWithTools(ctx, log.Messages(systemPrompt), g.params, tools, choice)
	if err != nil {
		return nil, fmt.Errorf("pipeline: completion: %w", err)
	}

	entry := &state.AssistantEntry{Text: result.Content}
	for _, call := range result.ToolCalls {
		args, err := call.ArgumentsMap()
		if err != nil {
			return nil, fmt.Errorf("pipeline: decoding arguments of %s: %w", call.Name, err)
		}
		entry.ToolRequests = append(entry.ToolRequests, state.ToolRequest{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: args,
		})
	}

	g.logger.Debug("completion turn",
		slog.String("provider", g.client.Provider()),
		slog.Int("tool_requests", len(entry.ToolRequests)),
	)
	return entry, nil
}
