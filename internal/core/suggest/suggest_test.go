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

// Package suggest_test exercises the suggestion sources with a scripted
// model: candidate ordering, the constraint gate, hallucinated line ids,
// and the rule-based fallback ranking.
package suggest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/ontology"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/scoring"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/suggest"
)

const testPromptTemplate = `Direction: {{.DIRECTION}}
Anchor: {{.ANCHOR_TEXT}} [{{.ANCHOR_TAGS}}]
Neighbors: {{.NEIGHBOR_TAGS}}
Return at most {{.LIMIT}} candidates as JSON like: {{.EXAMPLE_JSON}}`

// scriptedGenerator returns a fixed response, or an error, and records the
// prompt it was given.
type scriptedGenerator struct {
	response string
	err      error
	prompt   string
}

func (g *scriptedGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func buildScorer(t *testing.T) *scoring.Scorer {
	t.Helper()

	exclusion := model.TagConstraint{
		ID:         1,
		CategoryID: "character_type",
		Kind:       model.ConstraintMutualExclusive,
		Message:    "hero and villain lines cannot share a beat",
		Active:     true,
	}
	exclusion.SetTagSet([]string{"char_hero", "char_villain"})

	snap, err := ontology.BuildSnapshot(1,
		[]model.TagCategory{
			{ID: "sentence_type", Name: "Sentence Type", Layer: 1, Active: true},
			{ID: "character_type", Name: "Character Type", Layer: 4, Active: true},
		},
		[]model.TagDefinition{
			{ID: "st_question", CategoryID: "sentence_type", Value: "question", ImportanceScore: 0.7, Active: true},
			{ID: "st_answer", CategoryID: "sentence_type", Value: "answer", ImportanceScore: 0.6, Active: true},
			{ID: "st_threat", CategoryID: "sentence_type", Value: "threat", ImportanceScore: 0.8, Active: true},
			{ID: "char_hero", CategoryID: "character_type", Value: "hero", ImportanceScore: 0.9, Active: true},
			{ID: "char_villain", CategoryID: "character_type", Value: "villain", ImportanceScore: 0.9, Active: true},
		},
		nil,
		[]model.TagConstraint{exclusion},
		[]model.TagConnectionRule{
			{ID: 1, FromTagID: "st_question", ToTagID: "st_answer", Kind: model.ConnectionContinuation, Weight: 0.9, Active: true},
		},
	)
	require.NoError(t, err)
	return scoring.NewScorer(ontology.NewRegistry(snap))
}

func testLibrary() map[string]*model.Line {
	return map[string]*model.Line{
		"mv1_ep1_line_20": {LineID: "mv1_ep1_line_20", SentenceType: "st_answer", HookScore: 0.5},
		"mv1_ep1_line_21": {LineID: "mv1_ep1_line_21", SentenceType: "st_threat", HookScore: 0.9},
		"mv1_ep1_line_30": {LineID: "mv1_ep1_line_30", CharacterType: "char_villain", HookScore: 0.8},
	}
}

func libraryLookup(lib map[string]*model.Line) suggest.LineLookup {
	return func(lineID string) (*model.Line, error) {
		return lib[lineID], nil
	}
}

// TestGenAISuggesterGatesCandidates verifies the full chain: the model's
// answer is parsed, a candidate violating mutual exclusion against the
// anchor is dropped, an unknown line id is dropped, and eligible candidates
// come back in model order.
func TestGenAISuggesterGatesCandidates(t *testing.T) {
	generator := &scriptedGenerator{
		response: "```json\n[" +
			`{"line_id": "mv1_ep1_line_20", "rationale": "answers the question"},` +
			`{"line_id": "mv1_ep1_line_30", "rationale": "villain menace"},` +
			`{"line_id": "mv9_ep9_line_999", "rationale": "made up"},` +
			`{"line_id": "mv1_ep1_line_21", "rationale": "raises the stakes"}` +
			"]\n```",
	}
	suggester, err := suggest.NewGenAISuggester(testPromptTemplate, generator, buildScorer(t), libraryLookup(testLibrary()))
	require.NoError(t, err)

	candidates, err := suggester.SuggestLines(context.Background(), suggest.Request{
		Direction: "keep the interrogation going",
		Neighborhood: model.Neighborhood{
			NodeID:     "node-anchor",
			AnchorTags: []string{"st_question", "char_hero"},
		},
	})
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "mv1_ep1_line_20", candidates[0].LineID)
	assert.Equal(t, "mv1_ep1_line_21", candidates[1].LineID)

	assert.Contains(t, generator.prompt, "keep the interrogation going")
	assert.Contains(t, generator.prompt, "st_question")
}

// TestGenAISuggesterRespectsLimit verifies the request limit truncates the
// gated list.
func TestGenAISuggesterRespectsLimit(t *testing.T) {
	generator := &scriptedGenerator{
		response: `[{"line_id": "mv1_ep1_line_20"}, {"line_id": "mv1_ep1_line_21"}]`,
	}
	suggester, err := suggest.NewGenAISuggester(testPromptTemplate, generator, buildScorer(t), libraryLookup(testLibrary()))
	require.NoError(t, err)

	candidates, err := suggester.SuggestLines(context.Background(), suggest.Request{
		Limit: 1,
		Neighborhood: model.Neighborhood{
			NodeID:     "node-anchor",
			AnchorTags: []string{"st_question"},
		},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "mv1_ep1_line_20", candidates[0].LineID)
}

// TestGenAISuggesterPropagatesModelFailure verifies a generation error
// surfaces to the caller instead of an empty list.
func TestGenAISuggesterPropagatesModelFailure(t *testing.T) {
	generator := &scriptedGenerator{err: errors.New("quota exhausted")}
	suggester, err := suggest.NewGenAISuggester(testPromptTemplate, generator, buildScorer(t), libraryLookup(testLibrary()))
	require.NoError(t, err)

	_, err = suggester.SuggestLines(context.Background(), suggest.Request{
		Neighborhood: model.Neighborhood{NodeID: "node-anchor"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exhausted")
}

// TestGenAISuggesterRejectsMalformedJSON verifies a non-JSON model answer
// is an error, not a silent empty result.
func TestGenAISuggesterRejectsMalformedJSON(t *testing.T) {
	generator := &scriptedGenerator{response: "I cannot help with that."}
	suggester, err := suggest.NewGenAISuggester(testPromptTemplate, generator, buildScorer(t), libraryLookup(testLibrary()))
	require.NoError(t, err)

	_, err = suggester.SuggestLines(context.Background(), suggest.Request{
		Neighborhood: model.Neighborhood{NodeID: "node-anchor"},
	})
	require.Error(t, err)
}

// TestStaticSuggesterRanksByConnection verifies the fallback ranks a line
// reachable by a connection rule from the anchor's tags above unconnected
// lines, and drops ineligible ones entirely.
func TestStaticSuggesterRanksByConnection(t *testing.T) {
	lib := testLibrary()
	pool := []*model.Line{lib["mv1_ep1_line_30"], lib["mv1_ep1_line_21"], lib["mv1_ep1_line_20"]}
	suggester := suggest.NewStaticSuggester(buildScorer(t), pool)

	candidates, err := suggester.SuggestLines(context.Background(), suggest.Request{
		Neighborhood: model.Neighborhood{
			NodeID:     "node-anchor",
			AnchorTags: []string{"st_question", "char_hero"},
		},
	})
	require.NoError(t, err)

	// The villain line is excluded by the hero tag; the answer line wins by
	// the continuation rule; the threat line trails on hook-score tiebreak.
	require.Len(t, candidates, 2)
	assert.Equal(t, "mv1_ep1_line_20", candidates[0].LineID)
	assert.Equal(t, "mv1_ep1_line_21", candidates[1].LineID)
}

// TestStaticSuggesterSkipsAnchorLine verifies the anchor's own line never
// suggests itself.
func TestStaticSuggesterSkipsAnchorLine(t *testing.T) {
	lib := testLibrary()
	anchor := lib["mv1_ep1_line_20"]
	suggester := suggest.NewStaticSuggester(buildScorer(t), []*model.Line{anchor, lib["mv1_ep1_line_21"]})

	candidates, err := suggester.SuggestLines(context.Background(), suggest.Request{
		AnchorLine: anchor,
		Neighborhood: model.Neighborhood{
			NodeID:     "node-anchor",
			AnchorTags: anchor.Tags(),
		},
	})
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, anchor.LineID, c.LineID)
	}
}

// TestStripCodeFence covers the fence shapes models actually produce.
func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, suggest.StripCodeFence("```json\n[{\"a\":1}]\n```"))
	assert.Equal(t, `[{"a":1}]`, suggest.StripCodeFence("```\n[{\"a\":1}]\n```"))
	assert.Equal(t, `[{"a":1}]`, suggest.StripCodeFence(`[{"a":1}]`))
}
