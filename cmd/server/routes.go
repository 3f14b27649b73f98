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

// This file contains the API route definitions: the project and canvas
// command surface, the scoring and suggestion endpoints, the line library
// queries, and the ontology admin operations.
package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/graph"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/services"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/suggest"
)

// storeError maps a graph-store failure onto an HTTP status.
func storeError(c *gin.Context, err error) {
	var capacity *graph.CapacityError
	var structural *graph.StructuralError
	switch {
	case errors.As(err, &capacity):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &structural):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// openStore resolves the project id parameter to a live store, opening the
// project from persistence when it is cold.
func openStore(c *gin.Context) (*graph.Store, bool) {
	store, err := state.projects.Open(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrProjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return store, true
}

// ProjectRouter sets up the project lifecycle and read-model routes.
func ProjectRouter(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.GET("", func(c *gin.Context) {
			out, err := state.projects.List(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, out)
		})

		projects.POST("", func(c *gin.Context) {
			var req struct {
				Name           string  `json:"name" binding:"required"`
				Description    string  `json:"description"`
				Theme          string  `json:"theme"`
				TargetDuration float64 `json:"target_duration"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, err := state.projects.Create(c.Request.Context(), req.Name, req.Description, req.Theme, req.TargetDuration)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, store.Snapshot())
		})

		// The atomic read model: nodes, edges, and sequences from one
		// consistent copy.
		projects.GET("/:id", func(c *gin.Context) {
			store, ok := openStore(c)
			if !ok {
				return
			}
			c.JSON(http.StatusOK, store.Snapshot())
		})

		projects.PATCH("/:id", func(c *gin.Context) {
			var req struct {
				Name           *string  `json:"name"`
				Description    *string  `json:"description"`
				Theme          *string  `json:"theme"`
				Style          *string  `json:"style"`
				ViewportX      *float64 `json:"viewport_x"`
				ViewportY      *float64 `json:"viewport_y"`
				ViewportZoom   *float64 `json:"viewport_zoom"`
				TargetDuration *float64 `json:"target_duration"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			err := store.UpdateProject(graph.ProjectPatch{
				Name:           req.Name,
				Description:    req.Description,
				Theme:          req.Theme,
				Style:          req.Style,
				ViewportX:      req.ViewportX,
				ViewportY:      req.ViewportY,
				ViewportZoom:   req.ViewportZoom,
				TargetDuration: req.TargetDuration,
			})
			if err != nil {
				storeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		projects.DELETE("/:id", func(c *gin.Context) {
			if err := state.projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Status(http.StatusNoContent)
		})

		projects.POST("/:id/close", func(c *gin.Context) {
			state.projects.CloseProject(c.Param("id"))
			c.Status(http.StatusNoContent)
		})

		projects.PUT("/:id/active-node", func(c *gin.Context) {
			var req struct {
				NodeID string `json:"node_id" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			if err := store.SetActiveNode(req.NodeID); err != nil {
				storeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		projects.GET("/:id/score", scoreAssociation)
		projects.POST("/:id/suggest", suggestLines)

		NodeRouter(projects)
		EdgeRouter(projects)
		SequenceRouter(projects)
	}
}

// scoreAssociation scores one library line against one node's neighborhood.
func scoreAssociation(c *gin.Context) {
	lineID := c.Query("line_id")
	nodeID := c.Query("node_id")
	if lineID == "" || nodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "line_id and node_id are required"})
		return
	}
	store, ok := openStore(c)
	if !ok {
		return
	}

	line, err := state.lines.Get(c.Request.Context(), lineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if line == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "line not found"})
		return
	}

	radius := state.config.Graph.NeighborhoodRadius
	hood, err := store.NeighborhoodOf(nodeID, radius, state.lines.TagResolver(c.Request.Context()))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state.lines.Scorer().Score(line, hood))
}

// suggestLines runs the suggestion source for one node.
func suggestLines(c *gin.Context) {
	var req struct {
		NodeID    string `json:"node_id" binding:"required"`
		Direction string `json:"direction"`
		Limit     int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	store, ok := openStore(c)
	if !ok {
		return
	}

	radius := state.config.Graph.NeighborhoodRadius
	hood, err := store.NeighborhoodOf(req.NodeID, radius, state.lines.TagResolver(c.Request.Context()))
	if err != nil {
		storeError(c, err)
		return
	}

	request := suggest.Request{
		Direction:    req.Direction,
		Neighborhood: hood,
		Limit:        req.Limit,
	}
	snap := store.Snapshot()
	for _, node := range snap.Nodes {
		if node.ID == req.NodeID && node.LineID != nil {
			anchor, err := state.lines.Get(c.Request.Context(), *node.LineID)
			if err == nil {
				request.AnchorLine = anchor
			}
			break
		}
	}

	candidates, err := state.suggester.SuggestLines(c.Request.Context(), request)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, candidates)
}

// NodeRouter sets up the node command routes under a project.
func NodeRouter(r *gin.RouterGroup) {
	nodes := r.Group("/:id/nodes")
	{
		nodes.POST("", func(c *gin.Context) {
			var req struct {
				model.CanvasNode
				MediaPath string `json:"media_path"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			node := req.CanvasNode
			if node.ID == "" {
				node.ID = uuid.NewString()
			}
			node.ProjectID = store.ProjectID()
			if node.NodeType == "" {
				node.NodeType = model.NodeTypeClip
			}
			if err := store.AddNode(c.Request.Context(), &node, req.MediaPath); err != nil {
				storeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, node)
		})

		nodes.PATCH("/:nodeId", func(c *gin.Context) {
			var req struct {
				ParentID    *string `json:"parent_id"`
				ClearParent bool    `json:"clear_parent"`

				Title   *string  `json:"title"`
				Content *string  `json:"content"`
				PosX    *float64 `json:"pos_x"`
				PosY    *float64 `json:"pos_y"`
				Width   *float64 `json:"width"`
				Height  *float64 `json:"height"`
				ZIndex  *int     `json:"z_index"`

				TrimStart *float64 `json:"trim_start"`
				TrimEnd   *float64 `json:"trim_end"`
				Volume    *float64 `json:"volume"`

				LineID                *string  `json:"line_id"`
				AssociationSource     *string  `json:"association_source"`
				AssociationConfidence *float64 `json:"association_confidence"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			patch := graph.NodePatch{
				ParentID:              req.ParentID,
				ClearParent:           req.ClearParent,
				Title:                 req.Title,
				Content:               req.Content,
				PosX:                  req.PosX,
				PosY:                  req.PosY,
				Width:                 req.Width,
				Height:                req.Height,
				ZIndex:                req.ZIndex,
				TrimStart:             req.TrimStart,
				TrimEnd:               req.TrimEnd,
				Volume:                req.Volume,
				LineID:                req.LineID,
				AssociationSource:     req.AssociationSource,
				AssociationConfidence: req.AssociationConfidence,
			}
			if err := store.UpdateNode(c.Param("nodeId"), patch); err != nil {
				storeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		// Canvas drags move many nodes at once; one request patches them
		// all. The first unknown node id stops the batch.
		nodes.PUT("/positions", func(c *gin.Context) {
			var req []struct {
				NodeID string  `json:"node_id" binding:"required"`
				PosX   float64 `json:"pos_x"`
				PosY   float64 `json:"pos_y"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			for _, move := range req {
				posX, posY := move.PosX, move.PosY
				if err := store.UpdateNode(move.NodeID, graph.NodePatch{PosX: &posX, PosY: &posY}); err != nil {
					storeError(c, err)
					return
				}
			}
			c.Status(http.StatusNoContent)
		})

		nodes.DELETE("/:nodeId", func(c *gin.Context) {
			store, ok := openStore(c)
			if !ok {
				return
			}
			if err := store.RemoveNode(c.Param("nodeId")); err != nil {
				storeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})
	}
}

// EdgeRouter sets up the narrative edge routes under a project.
func EdgeRouter(r *gin.RouterGroup) {
	edges := r.Group("/:id/edges")
	{
		edges.POST("", func(c *gin.Context) {
			var edge model.CanvasEdge
			if err := c.ShouldBindJSON(&edge); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			if edge.ID == "" {
				edge.ID = uuid.NewString()
			}
			edge.ProjectID = store.ProjectID()
			if err := store.AddEdge(&edge); err != nil {
				storeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, edge)
		})

		edges.DELETE("/:edgeId", func(c *gin.Context) {
			store, ok := openStore(c)
			if !ok {
				return
			}
			if err := store.RemoveEdge(c.Param("edgeId")); err != nil {
				storeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})
	}
}

// SequenceRouter sets up the timeline routes under a project.
func SequenceRouter(r *gin.RouterGroup) {
	sequences := r.Group("/:id/sequences")
	{
		sequences.POST("", func(c *gin.Context) {
			var req struct {
				Name           string  `json:"name"`
				TargetDuration float64 `json:"target_duration"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			if req.Name == "" {
				req.Name = services.DefaultSequenceName
			}
			// The row is created first so the global autoincrement key is
			// assigned before the store adopts it.
			seq := &model.Sequence{
				ProjectID:      store.ProjectID(),
				Name:           req.Name,
				TargetDuration: req.TargetDuration,
			}
			if err := state.bridge.DB().WithContext(c.Request.Context()).Create(seq).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if err := store.AddSequence(seq); err != nil {
				storeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, seq)
		})

		sequences.POST("/:seqId/items", func(c *gin.Context) {
			seqID, err := strconv.ParseUint(c.Param("seqId"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence id"})
				return
			}
			var req struct {
				NodeID       string  `json:"node_id" binding:"required"`
				At           int     `json:"at"`
				TrimStart    float64 `json:"trim_start"`
				TrimEnd      float64 `json:"trim_end"`
				PlaybackRate float64 `json:"playback_rate"`
				Volume       float64 `json:"volume"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			if req.PlaybackRate <= 0 {
				req.PlaybackRate = 1.0
			}
			if req.Volume == 0 {
				req.Volume = 1.0
			}
			// Items carry global autoincrement keys too; allocate through
			// the database so reloads and replays agree on identity.
			item := model.SequenceItem{
				SequenceID:   uint(seqID),
				NodeID:       req.NodeID,
				TrimStart:    req.TrimStart,
				TrimEnd:      req.TrimEnd,
				PlaybackRate: req.PlaybackRate,
				Volume:       req.Volume,
			}
			if err := state.bridge.DB().WithContext(c.Request.Context()).Create(&item).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if err := store.InsertSequenceItem(uint(seqID), item, req.At); err != nil {
				storeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, item)
		})

		sequences.PUT("/:seqId/items/:itemId/position", func(c *gin.Context) {
			seqID, err := strconv.ParseUint(c.Param("seqId"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence id"})
				return
			}
			itemID, err := strconv.ParseUint(c.Param("itemId"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
				return
			}
			var req struct {
				To int `json:"to"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			if err := store.MoveSequenceItem(uint(seqID), uint(itemID), req.To); err != nil {
				storeError(c, err)
				return
			}
			seq, err := store.MaterializeSequence(uint(seqID))
			if err != nil {
				storeError(c, err)
				return
			}
			c.JSON(http.StatusOK, seq)
		})

		sequences.DELETE("/:seqId/items/:itemId", func(c *gin.Context) {
			seqID, err := strconv.ParseUint(c.Param("seqId"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence id"})
				return
			}
			itemID, err := strconv.ParseUint(c.Param("itemId"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			if err := store.RemoveSequenceItem(uint(seqID), uint(itemID)); err != nil {
				storeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		sequences.GET("/:seqId/materialize", func(c *gin.Context) {
			seqID, err := strconv.ParseUint(c.Param("seqId"), 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence id"})
				return
			}
			store, ok := openStore(c)
			if !ok {
				return
			}
			seq, err := store.MaterializeSequence(uint(seqID))
			if err != nil {
				storeError(c, err)
				return
			}
			c.JSON(http.StatusOK, seq)
		})
	}
}

// LineRouter sets up the read-only line library routes.
func LineRouter(r *gin.RouterGroup) {
	lines := r.Group("/lines")
	{
		lines.GET("", func(c *gin.Context) {
			minIntensity, _ := strconv.Atoi(c.DefaultQuery("min_intensity", "0"))
			maxDuration, _ := strconv.ParseFloat(c.DefaultQuery("max_duration", "0"), 64)
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
			out, err := state.lines.Search(c.Request.Context(), services.LineQuery{
				SentenceType:  c.Query("sentence_type"),
				Emotion:       c.Query("emotion"),
				Tone:          c.Query("tone"),
				CharacterType: c.Query("character_type"),
				MinIntensity:  minIntensity,
				MaxDuration:   maxDuration,
				Keyword:       c.Query("q"),
				Limit:         limit,
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, out)
		})

		lines.GET("/hooks", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
			out, err := state.lines.Hooks(c.Request.Context(), limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, out)
		})

		lines.GET("/:lineId", func(c *gin.Context) {
			line, err := state.lines.Get(c.Request.Context(), c.Param("lineId"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if line == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "line not found"})
				return
			}
			c.JSON(http.StatusOK, line)
		})

		lines.GET("/:lineId/next", func(c *gin.Context) {
			anchor, err := state.lines.Get(c.Request.Context(), c.Param("lineId"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if anchor == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "line not found"})
				return
			}
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
			out, err := state.lines.NextLines(c.Request.Context(), anchor, limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

// OntologyRouter sets up the tag ontology admin routes. Every edit rebuilds
// and revalidates the full snapshot; an invalid edit is refused and the
// previous snapshot stays live.
func OntologyRouter(r *gin.RouterGroup) {
	ontologyGroup := r.Group("/ontology")
	{
		ontologyGroup.GET("", func(c *gin.Context) {
			snap := state.registry.Current()
			out := gin.H{"version": snap.Version(), "categories": []gin.H{}}
			categories := make([]gin.H, 0)
			for _, category := range snap.Categories() {
				categories = append(categories, gin.H{
					"category": category,
					"tags":     snap.TagsInCategory(category.ID),
				})
			}
			out["categories"] = categories
			c.JSON(http.StatusOK, out)
		})

		ontologyGroup.PUT("/tags", func(c *gin.Context) {
			var tag model.TagDefinition
			if err := c.ShouldBindJSON(&tag); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			snap, err := state.registry.UpsertTag(tag)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"version": snap.Version()})
		})

		ontologyGroup.DELETE("/tags/:tagId", func(c *gin.Context) {
			snap, err := state.registry.RetireTag(c.Param("tagId"))
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"version": snap.Version()})
		})

		ontologyGroup.PUT("/rules", func(c *gin.Context) {
			var rule model.TagConnectionRule
			if err := c.ShouldBindJSON(&rule); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			snap, err := state.registry.UpsertRule(rule)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"version": snap.Version()})
		})

		ontologyGroup.PUT("/constraints", func(c *gin.Context) {
			var constraint model.TagConstraint
			if err := c.ShouldBindJSON(&constraint); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			snap, err := state.registry.UpsertConstraint(constraint)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"version": snap.Version()})
		})
	}
}
