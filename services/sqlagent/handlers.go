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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSQL/services/llm"
	"github.com/AleutianAI/AleutianSQL/services/sqlagent/state"
)

// runRequest is the body of POST /v1/sqlagent/run.
type runRequest struct {
	Question string `json:"question" binding:"required"`
}

// runResponse is the successful response body. Entries carry the full
// interaction log so callers can audit how the answer was produced.
type runResponse struct {
	RunID       string        `json:"run_id"`
	FinalAnswer string        `json:"final_answer,omitempty"`
	Complete    bool          `json:"complete"`
	Entries     []state.Entry `json:"entries,omitempty"`
}

// handleRun answers one natural language question with a SQL query.
//
// Description:
//
//	Runs the full pipeline for the posted question. An incomplete run
//	(terminal-tool contract violated, retries exhausted) is still a 200;
//	the complete flag tells the caller to retry. A completion-backend
//	outage is a 502.
func (s *Service) handleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	result, err := s.Run(c.Request.Context(), req.Question)
	if err != nil {
		s.logger.Error("run failed", slog.Any("error", err))
		status := http.StatusInternalServerError
		if errors.Is(err, llm.ErrCompletionUnavailable) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "run failed: completion backend unavailable"})
		return
	}

	c.JSON(http.StatusOK, runResponse{
		RunID:       result.RunID,
		FinalAnswer: result.FinalAnswer,
		Complete:    result.Complete,
		Entries:     result.Entries,
	})
}

// handleHealth reports liveness and index size.
func (s *Service) handleHealth(c *gin.Context) {
	terms := 0
	if s.idx != nil {
		terms = s.idx.Size()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "terms": terms})
}
