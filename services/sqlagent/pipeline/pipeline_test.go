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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSQL/services/llm"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/state"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/tools"
)

// scriptedClient replays a fixed sequence of turns, one per ChatWithTools
// call, and records the choices it was given.
type scriptedClient struct {
	turns   []*llm.ChatWithToolsResult
	errs    []error
	call    int
	choices []llm.ToolChoice
}

func (s *scriptedClient) ChatWithTools(
	_ context.Context,
	_ []llm.ChatMessage,
	_ llm.GenerationParams,
	_ []llm.ToolDef,
	choice llm.ToolChoice,
) (*llm.ChatWithToolsResult, error) {
	s.choices = append(s.choices, choice)
	i := s.call
	s.call++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, fmt.Errorf("scripted: %w: %w", llm.ErrCompletionUnavailable, s.errs[i])
	}
	if i >= len(s.turns) {
		return nil, fmt.Errorf("scripted: %w: no turn %d", llm.ErrCompletionUnavailable, i)
	}
	return s.turns[i], nil
}

func (s *scriptedClient) Provider() string { return "scripted" }

// echoTool answers every invocation with a fixed payload.
type echoTool struct {
	name string
	out  string
	err  error
}

func (e *echoTool) Name() string { return e.name }

func (e *echoTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name: e.name,
			Parameters: llm.ToolParameters{
				Type:       "object",
				Properties: map[string]llm.ToolParamDef{},
			},
		},
	}
}

func (e *echoTool) Invoke(_ context.Context, _ map[string]any) (string, error) {
	return e.out, e.err
}

func toolCall(id, name, rawArgs string) llm.ToolCallResponse {
	return llm.ToolCallResponse{ID: id, Name: name, Arguments: json.RawMessage(rawArgs)}
}

func newTestPipeline(t *testing.T, client llm.Client, cfg Config) *Pipeline {
	t.Helper()
	registry := tools.NewRegistry(
		&echoTool{name: tools.NameListTables, out: "materials, techniques"},
		&echoTool{name: tools.NameGetSchema, out: "CREATE TABLE materials (...)"},
		&echoTool{name: tools.NameSearchMaterials, out: "Gold Thread\nGold Leaf"},
	)
	executor := tools.NewFallbackExecutor(tools.NewExecutor(registry, nil), nil)
	gateway := NewGateway(client, llm.GenerationParams{}, nil)
	return New(gateway, executor, registry, cfg, nil)
}

// happyTurns returns the three model turns of a clean run: schema request,
// retriever routing, terminal submission.
func happyTurns(sql string) []*llm.ChatWithToolsResult {
	return []*llm.ChatWithToolsResult{
		{ToolCalls: []llm.ToolCallResponse{
			toolCall("c1", tools.NameGetSchema, `{"table_names":["materials"]}`),
		}},
		{ToolCalls: []llm.ToolCallResponse{
			toolCall("c2", tools.NameSearchMaterials, `{"query":"gold thred"}`),
		}},
		{ToolCalls: []llm.ToolCallResponse{
			toolCall("c3", tools.NameSubmitFinal, fmt.Sprintf(`{"final_answer":%q}`, sql)),
		}},
	}
}

func TestRunHappyPath(t *testing.T) {
	const sql = "SELECT name FROM materials LIMIT 5"
	client := &scriptedClient{turns: happyTurns(sql)}
	p := newTestPipeline(t, client, Config{})

	res, err := p.Run(context.Background(), "what gold thread materials exist?")
	require.NoError(t, err)
	require.True(t, res.Complete)
	assert.Equal(t, sql, res.FinalAnswer)
	assert.NotEmpty(t, res.RunID)

	// One UserEntry plus seven stage entries: synthesized assistant, list
	// result, schema request, schema result, routing, retrieve result,
	// terminal submission.
	require.Len(t, res.Entries, 8)
	_, ok := res.Entries[0].(*state.UserEntry)
	require.True(t, ok, "first entry must be the user question")

	last, ok := res.Entries[7].(*state.AssistantEntry)
	require.True(t, ok, "last entry must be the terminal turn")
	require.Len(t, last.ToolRequests, 1)
	assert.Equal(t, tools.NameSubmitFinal, last.ToolRequests[0].Name)
}

func TestRunSeedsListTablesWithoutModel(t *testing.T) {
	client := &scriptedClient{turns: happyTurns("SELECT 1")}
	p := newTestPipeline(t, client, Config{})

	res, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)

	seed, ok := res.Entries[1].(*state.AssistantEntry)
	require.True(t, ok)
	require.Len(t, seed.ToolRequests, 1)
	assert.Equal(t, tools.NameListTables, seed.ToolRequests[0].Name)

	answer, ok := res.Entries[2].(*state.ToolResultEntry)
	require.True(t, ok)
	assert.Equal(t, seed.ToolRequests[0].ID, answer.RequestID)
	assert.Equal(t, "materials, techniques", answer.Content)
	// Three model calls total: the seed turn never reaches the client.
	assert.Equal(t, 3, client.call)
}

func TestRunForcesTerminalTool(t *testing.T) {
	client := &scriptedClient{turns: happyTurns("SELECT 1")}
	p := newTestPipeline(t, client, Config{})

	_, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)

	require.Len(t, client.choices, 3)
	assert.Equal(t, llm.ToolChoiceAuto, client.choices[0].Mode)
	assert.Equal(t, llm.ToolChoiceAuto, client.choices[1].Mode)
	assert.Equal(t, llm.ToolChoiceForced, client.choices[2].Mode)
	assert.Equal(t, tools.NameSubmitFinal, client.choices[2].Tool)
}

func TestRunWrongToolAtQueryGeneration(t *testing.T) {
	turns := happyTurns("")
	turns[2] = &llm.ChatWithToolsResult{ToolCalls: []llm.ToolCallResponse{
		toolCall("c3", tools.NameGetSchema, `{"table_names":["materials"]}`),
		toolCall("c4", tools.NameSearchMaterials, `{"query":"silk"}`),
	}}
	client := &scriptedClient{turns: turns}
	p := newTestPipeline(t, client, Config{})

	res, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Empty(t, res.FinalAnswer)

	var injected []*state.ToolResultEntry
	for _, e := range res.Entries[8:] {
		r, ok := e.(*state.ToolResultEntry)
		require.True(t, ok, "entries after the terminal turn must be corrections")
		injected = append(injected, r)
	}
	require.Len(t, injected, 2)

	assert.Equal(t, "c3", injected[0].RequestID)
	assert.True(t, injected[0].IsError)
	assert.Contains(t, injected[0].Content, "The wrong tool was called: "+tools.NameGetSchema)
	assert.Contains(t, injected[0].Content, "only call "+tools.NameSubmitFinal)
	assert.Contains(t, injected[0].Content, "WITHOUT a tool call")

	assert.Equal(t, "c4", injected[1].RequestID)
	assert.Contains(t, injected[1].Content, "The wrong tool was called: "+tools.NameSearchMaterials)
}

func TestRunContractRetrySucceeds(t *testing.T) {
	turns := happyTurns("")
	turns[2] = &llm.ChatWithToolsResult{ToolCalls: []llm.ToolCallResponse{
		toolCall("c3", tools.NameListTables, `{}`),
	}}
	turns = append(turns, &llm.ChatWithToolsResult{ToolCalls: []llm.ToolCallResponse{
		toolCall("c5", tools.NameSubmitFinal, `{"final_answer":"SELECT 2"}`),
	}})
	client := &scriptedClient{turns: turns}
	p := newTestPipeline(t, client, Config{MaxContractRetries: 1})

	res, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, "SELECT 2", res.FinalAnswer)
	// Four model calls: two auto stages, the violating turn, the retry.
	assert.Equal(t, 4, client.call)
}

// validateStageSamples reads the observation count of the validate stage
// duration histogram.
func validateStageSamples(t *testing.T) uint64 {
	t.Helper()
	obs, err := stageDuration.GetMetricWithLabelValues(StageValidate)
	require.NoError(t, err)
	m := &dto.Metric{}
	require.NoError(t, obs.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestValidateStageObservedOnSuccess(t *testing.T) {
	before := validateStageSamples(t)

	client := &scriptedClient{turns: happyTurns("SELECT 1")}
	p := newTestPipeline(t, client, Config{})
	res, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)
	require.True(t, res.Complete)

	assert.Equal(t, before+1, validateStageSamples(t),
		"a clean validate must still land in the stage histogram")
}

func TestRunCompletionFailureIsFatal(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("gateway down")}}
	p := newTestPipeline(t, client, Config{})

	res, err := p.Run(context.Background(), "anything")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, llm.ErrCompletionUnavailable))
	assert.Contains(t, err.Error(), StageGetSchemaRequest)
}

func TestRunToolFailureBecomesErrorEntry(t *testing.T) {
	client := &scriptedClient{turns: happyTurns("SELECT 1")}
	registry := tools.NewRegistry(
		&echoTool{name: tools.NameListTables, err: errors.New("db down")},
		&echoTool{name: tools.NameGetSchema, out: "CREATE TABLE materials (...)"},
		&echoTool{name: tools.NameSearchMaterials, out: "Silk"},
	)
	executor := tools.NewFallbackExecutor(tools.NewExecutor(registry, nil), nil)
	p := New(NewGateway(client, llm.GenerationParams{}, nil), executor, registry, Config{}, nil)

	res, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, res.Complete, "tool failures must not abort the run")

	listResult, ok := res.Entries[2].(*state.ToolResultEntry)
	require.True(t, ok)
	assert.True(t, listResult.IsError)
	assert.True(t, strings.HasPrefix(listResult.Content, "Error: "), listResult.Content)
	assert.True(t, strings.HasSuffix(listResult.Content, ". please fix your mistakes."), listResult.Content)
}

func TestRunSkipsToolStageWithoutRequests(t *testing.T) {
	turns := happyTurns("SELECT 3")
	// Routing turn declines to search: no proper nouns in the question.
	turns[1] = &llm.ChatWithToolsResult{Content: "No filter values to resolve."}
	client := &scriptedClient{turns: turns}
	p := newTestPipeline(t, client, Config{})

	res, err := p.Run(context.Background(), "how many rows are in materials?")
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, "SELECT 3", res.FinalAnswer)
	// One entry fewer than the full path: no retrieve result.
	assert.Len(t, res.Entries, 7)
}

func TestValidateMalformedFinalAnswer(t *testing.T) {
	turns := happyTurns("")
	turns[2] = &llm.ChatWithToolsResult{ToolCalls: []llm.ToolCallResponse{
		toolCall("c3", tools.NameSubmitFinal, `{"final_answer":42}`),
	}}
	client := &scriptedClient{turns: turns}
	p := newTestPipeline(t, client, Config{})

	res, err := p.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, res.Complete)

	last, ok := res.Entries[len(res.Entries)-1].(*state.ToolResultEntry)
	require.True(t, ok)
	assert.True(t, last.IsError)
	assert.Equal(t, "c3", last.RequestID)
}
