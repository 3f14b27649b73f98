// Copyright 2025 CineGraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file defines the stats endpoint the frontend polls: library size,
// ontology version, and the unsaved-changes surface of the write queue.
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// Dashboard configures the statistics routes.
func Dashboard(r *gin.RouterGroup) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			var lineCount, projectCount int64
			if err := state.bridge.DB().Model(&model.Line{}).Count(&lineCount).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if err := state.bridge.DB().Model(&model.Project{}).Count(&projectCount).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}

			unsaved := state.unsaved.snapshot()
			c.JSON(http.StatusOK, gin.H{
				"lines":            lineCount,
				"projects":         projectCount,
				"ontology_version": state.registry.Current().Version(),
				"unsaved_changes":  len(unsaved),
				"unsaved":          unsaved,
			})
		})
	}
}
