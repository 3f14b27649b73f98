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

// This file assembles the suggestion sources: the model-backed chain and
// the rule-based fallback.
package suggest

import (
	"context"
	"fmt"
	"sort"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/cor"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/scoring"
)

// DefaultLimit caps the candidate count when a request leaves Limit zero.
const DefaultLimit = 5

// Suggester is a source of next-line candidates for a node. Candidates are
// advisory and already constraint-gated; placing one still goes through the
// normal node-binding path.
type Suggester interface {
	SuggestLines(ctx context.Context, req Request) ([]model.Candidate, error)
}

// GenAISuggester runs the model-backed suggestion chain.
type GenAISuggester struct {
	chain cor.Chain
}

// NewGenAISuggester wires the four-step chain: prompt, generate, parse,
// gate. The template text comes from the prompt_templates config section.
func NewGenAISuggester(templateText string, generator TextGenerator, scorer *scoring.Scorer, lookup LineLookup) (*GenAISuggester, error) {
	promptBuilder, err := NewPromptBuilder("suggest_prompt_builder", templateText)
	if err != nil {
		return nil, err
	}
	chain := cor.NewBaseChain("suggest")
	chain.AddCommand(promptBuilder)
	chain.AddCommand(NewCandidateGenerator("suggest_generate", generator))
	chain.AddCommand(NewCandidatesJSONToStruct("suggest_parse"))
	chain.AddCommand(NewConstraintGate("suggest_gate", scorer, lookup))
	return &GenAISuggester{chain: chain}, nil
}

// SuggestLines executes the chain for one request.
func (s *GenAISuggester) SuggestLines(ctx context.Context, req Request) ([]model.Candidate, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(CtxRequest, req)

	s.chain.Execute(chainCtx)

	if chainCtx.HasErrors() {
		for name, err := range chainCtx.GetErrors() {
			return nil, fmt.Errorf("suggestion chain failed at %s: %w", name, err)
		}
	}
	candidates, ok := chainCtx.Get(CtxCandidates).([]model.Candidate)
	if !ok {
		return nil, fmt.Errorf("suggestion chain produced no candidate list")
	}
	return candidates, nil
}

// StaticSuggester is the rule-based source used offline and in tests. It
// ranks a fixed pool of lines by the strongest connection-rule weight from
// any neighborhood tag to any of the line's tags, breaking ties by hook
// score and then line id, and keeps only constraint-eligible lines.
type StaticSuggester struct {
	scorer *scoring.Scorer
	pool   []*model.Line
}

func NewStaticSuggester(scorer *scoring.Scorer, pool []*model.Line) *StaticSuggester {
	return &StaticSuggester{scorer: scorer, pool: pool}
}

// SuggestLines ranks the pool against the request's neighborhood.
func (s *StaticSuggester) SuggestLines(_ context.Context, req Request) ([]model.Candidate, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	type ranked struct {
		line   *model.Line
		result model.ScoreResult
	}
	scored := make([]ranked, 0, len(s.pool))
	for _, line := range s.pool {
		if req.AnchorLine != nil && line.LineID == req.AnchorLine.LineID {
			continue
		}
		result := s.scorer.Score(line, req.Neighborhood)
		if !result.Eligible {
			continue
		}
		scored = append(scored, ranked{line: line, result: result})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].result.Score != scored[j].result.Score {
			return scored[i].result.Score > scored[j].result.Score
		}
		if scored[i].line.HookScore != scored[j].line.HookScore {
			return scored[i].line.HookScore > scored[j].line.HookScore
		}
		return scored[i].line.LineID < scored[j].line.LineID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]model.Candidate, 0, len(scored))
	for _, r := range scored {
		rationale := "matches the neighborhood by tag connection rules"
		if len(r.result.Reasons) > 0 {
			top := r.result.Reasons[0]
			rationale = fmt.Sprintf("connection %s: %s to %s (weight %.2f)", top.Kind, top.FromTagID, top.ToTagID, top.Weight)
		}
		out = append(out, model.Candidate{LineID: r.line.LineID, Rationale: rationale})
	}
	return out, nil
}
