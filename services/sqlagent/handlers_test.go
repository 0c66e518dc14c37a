// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSQL/services/llm"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/pipeline"
)

// fakeRunner scripts the pipeline outcome for handler tests.
type fakeRunner struct {
	result *pipeline.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, _ string) (*pipeline.Result, error) {
	return f.result, f.err
}

func newTestRouter(r runner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	s := &Service{pipeline: r, logger: slog.Default()}
	engine := gin.New()
	s.RegisterRoutes(engine)
	return engine
}

func TestHandleRun(t *testing.T) {
	router := newTestRouter(&fakeRunner{result: &pipeline.Result{
		RunID:       "run-1",
		FinalAnswer: "SELECT name FROM materials LIMIT 5",
		Complete:    true,
	}})

	req := httptest.NewRequest(http.MethodPost, "/v1/sqlagent/run",
		strings.NewReader(`{"question":"which materials mention gold?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body runResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !body.Complete || body.FinalAnswer != "SELECT name FROM materials LIMIT 5" {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.RunID != "run-1" {
		t.Errorf("unexpected run id %q", body.RunID)
	}
}

func TestHandleRunIncomplete(t *testing.T) {
	router := newTestRouter(&fakeRunner{result: &pipeline.Result{RunID: "run-2"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/sqlagent/run",
		strings.NewReader(`{"question":"anything"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for incomplete run, got %d", w.Code)
	}
	var body runResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Complete || body.FinalAnswer != "" {
		t.Errorf("incomplete run must carry no answer: %+v", body)
	}
}

func TestHandleRunMissingQuestion(t *testing.T) {
	router := newTestRouter(&fakeRunner{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sqlagent/run", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleRunCompletionOutage(t *testing.T) {
	router := newTestRouter(&fakeRunner{
		err: fmt.Errorf("pipeline: stage query_generation: %w", llm.ErrCompletionUnavailable),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/sqlagent/run",
		strings.NewReader(`{"question":"anything"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(&fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/sqlagent/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
