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

// Package services contains the read-side business logic over the line
// library and the lifecycle of open project graphs. This file defines the
// LineService: tag-filtered search, hook discovery, and connection-rule
// driven next-line lookup over the annotated dialogue lines.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/graph"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/ontology"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/scoring"
)

// Hook thresholds: a line qualifies as an opening hook when it is intense,
// short, and scored hooky by the annotation pipeline.
const (
	HookMinIntensity = 7
	HookMaxDuration  = 3.0
	HookMinScore     = 0.6
)

// DefaultSearchLimit caps result sets when a query leaves Limit zero.
const DefaultSearchLimit = 20

// nextLinePoolSize bounds how many candidate lines NextLines pulls from the
// database before ranking them in memory.
const nextLinePoolSize = 200

// LineQuery is a tag-filtered search over the line library. Zero values
// mean "no filter".
type LineQuery struct {
	SentenceType  string
	Emotion       string
	Tone          string
	CharacterType string
	MinIntensity  int
	MaxDuration   float64
	Keyword       string
	Limit         int
}

// LineService reads the annotated line library. Lines are written by the
// external annotation pipeline; this service never mutates them.
type LineService struct {
	db       *gorm.DB
	registry *ontology.Registry
	scorer   *scoring.Scorer
}

func NewLineService(db *gorm.DB, registry *ontology.Registry) *LineService {
	return &LineService{
		db:       db,
		registry: registry,
		scorer:   scoring.NewScorer(registry),
	}
}

// Get returns the line with the given external id, or nil when the id is
// unknown.
func (s *LineService) Get(ctx context.Context, lineID string) (*model.Line, error) {
	var line model.Line
	err := s.db.WithContext(ctx).First(&line, "line_id = ?", lineID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("line lookup failed: %w", err)
	}
	return &line, nil
}

// Search runs a tag-filtered query over the library, most intense lines
// first.
func (s *LineService) Search(ctx context.Context, q LineQuery) ([]*model.Line, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	tx := s.db.WithContext(ctx).Model(&model.Line{})
	if q.SentenceType != "" {
		tx = tx.Where("sentence_type = ?", q.SentenceType)
	}
	if q.Emotion != "" {
		tx = tx.Where("emotion = ?", q.Emotion)
	}
	if q.Tone != "" {
		tx = tx.Where("tone = ?", q.Tone)
	}
	if q.CharacterType != "" {
		tx = tx.Where("character_type = ?", q.CharacterType)
	}
	if q.MinIntensity > 0 {
		tx = tx.Where("intensity >= ?", q.MinIntensity)
	}
	if q.MaxDuration > 0 {
		tx = tx.Where("duration <= ?", q.MaxDuration)
	}
	if q.Keyword != "" {
		tx = tx.Where("text LIKE ?", "%"+q.Keyword+"%")
	}

	var lines []*model.Line
	err := tx.Order("intensity DESC, hook_score DESC, line_id ASC").Limit(limit).Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("line search failed: %w", err)
	}
	return lines, nil
}

// Hooks returns lines suitable as a short-form opening: high intensity,
// short duration, high hook score, best hooks first.
func (s *LineService) Hooks(ctx context.Context, limit int) ([]*model.Line, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var lines []*model.Line
	err := s.db.WithContext(ctx).
		Where("intensity >= ? AND duration <= ? AND hook_score >= ?", HookMinIntensity, HookMaxDuration, HookMinScore).
		Order("hook_score DESC, intensity DESC, line_id ASC").
		Limit(limit).
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("hook search failed: %w", err)
	}
	return lines, nil
}

// NextLines returns lines that follow the anchor well: for each of the
// anchor's tags it collects the directly connected tags from the ontology,
// pulls lines carrying any of them, and ranks the pool with the association
// scorer against the anchor's tags.
func (s *LineService) NextLines(ctx context.Context, anchor *model.Line, limit int) ([]model.ScoreResult, error) {
	if anchor == nil {
		return nil, fmt.Errorf("next-line lookup needs an anchor line")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	snap := s.registry.Current()
	targetTags := make([]string, 0, 16)
	seen := make(map[string]bool)
	for _, tagID := range anchor.Tags() {
		for _, related := range snap.RelatedTags(tagID, 1) {
			if !seen[related.TagID] {
				seen[related.TagID] = true
				targetTags = append(targetTags, related.TagID)
			}
		}
	}
	if len(targetTags) == 0 {
		return []model.ScoreResult{}, nil
	}

	var pool []*model.Line
	err := s.db.WithContext(ctx).
		Where("line_id <> ?", anchor.LineID).
		Where(s.db.
			Where("sentence_type IN ?", targetTags).
			Or("emotion IN ?", targetTags).
			Or("tone IN ?", targetTags).
			Or("character_type IN ?", targetTags)).
		Limit(nextLinePoolSize).
		Find(&pool).Error
	if err != nil {
		return nil, fmt.Errorf("next-line pool query failed: %w", err)
	}

	hood := model.Neighborhood{AnchorTags: anchor.Tags()}
	ranked := s.scorer.Rank(pool, hood)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// TagResolver adapts the service for the graph store's neighborhood
// assembly: it resolves a line id to its tag set, swallowing lookup
// failures into an empty set so a read-side hiccup never fails a score.
func (s *LineService) TagResolver(ctx context.Context) graph.TagResolver {
	return func(lineID string) []string {
		line, err := s.Get(ctx, lineID)
		if err != nil || line == nil {
			return nil
		}
		return line.Tags()
	}
}

// Lookup adapts the service to the suggestion pipeline's line lookup.
func (s *LineService) Lookup(ctx context.Context) func(lineID string) (*model.Line, error) {
	return func(lineID string) (*model.Line, error) {
		return s.Get(ctx, lineID)
	}
}

// Scorer exposes the service's scorer for the HTTP surface.
func (s *LineService) Scorer() *scoring.Scorer {
	return s.scorer
}
