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

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches the agent's HTTP surface to the router.
func (s *Service) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1/sqlagent")
	{
		v1.GET("/health", s.handleHealth)
		v1.POST("/run", s.handleRun)
	}
}
