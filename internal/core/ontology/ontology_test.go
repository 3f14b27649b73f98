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

// Package ontology_test contains unit tests for snapshot construction,
// validation, constraint checking, and the traversal queries.
package ontology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/ontology"
)

// testCategories returns the category layers used across these tests.
func testCategories() []model.TagCategory {
	return []model.TagCategory{
		{ID: "sentence_type", Name: "Sentence Type", Layer: 1, Required: true, Active: true},
		{ID: "emotion", Name: "Emotion", Layer: 2, Active: true},
		{ID: "character_type", Name: "Character Type", Layer: 4, Active: true},
	}
}

// testTags returns a small tag set spanning the three categories.
func testTags() []model.TagDefinition {
	return []model.TagDefinition{
		{ID: "st_question", CategoryID: "sentence_type", Value: "question", ImportanceScore: 0.7, Active: true},
		{ID: "st_answer", CategoryID: "sentence_type", Value: "answer", ImportanceScore: 0.6, Active: true},
		{ID: "st_threat", CategoryID: "sentence_type", Value: "threat", ImportanceScore: 0.8, Active: true},
		{ID: "em_angry", CategoryID: "emotion", Value: "angry", ImportanceScore: 0.5, Active: true},
		{ID: "char_hero", CategoryID: "character_type", Value: "hero", ImportanceScore: 0.9, Active: true},
		{ID: "char_villain", CategoryID: "character_type", Value: "villain", ImportanceScore: 0.9, Active: true},
	}
}

func mutualExclusion(id uint, category string, tags []string) model.TagConstraint {
	c := model.TagConstraint{
		ID:         id,
		CategoryID: category,
		Kind:       model.ConstraintMutualExclusive,
		Message:    "tags cannot appear together",
		Active:     true,
	}
	c.SetTagSet(tags)
	return c
}

func buildTestSnapshot(t *testing.T) *ontology.Snapshot {
	t.Helper()
	snap, err := ontology.BuildSnapshot(1,
		testCategories(),
		testTags(),
		[]model.TagHierarchy{
			{ParentTagID: "char_hero", ChildTagID: "st_question", RelationKind: model.RelationRelatedTo, Weight: 0.5},
		},
		[]model.TagConstraint{
			mutualExclusion(1, "character_type", []string{"char_hero", "char_villain"}),
		},
		[]model.TagConnectionRule{
			{ID: 1, FromTagID: "st_question", ToTagID: "st_answer", Kind: model.ConnectionContinuation, Weight: 0.9, Active: true},
			{ID: 2, FromTagID: "st_question", ToTagID: "st_answer", Kind: model.ConnectionContrast, Weight: 0.3, Active: true},
			{ID: 3, FromTagID: "st_answer", ToTagID: "st_threat", Kind: model.ConnectionEscalation, Weight: 0.6, Active: true},
		},
	)
	require.NoError(t, err)
	return snap
}

// TestIsActive verifies that activity requires both an active tag and an
// active category, and that unknown ids are inactive.
func TestIsActive(t *testing.T) {
	snap := buildTestSnapshot(t)

	assert.True(t, snap.IsActive("st_question"))
	assert.False(t, snap.IsActive("no_such_tag"))

	tags := testTags()
	tags[0].Active = false
	snap2, err := ontology.BuildSnapshot(1, testCategories(), tags, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, snap2.IsActive("st_question"))

	categories := testCategories()
	categories[0].Active = false
	snap3, err := ontology.BuildSnapshot(1, categories, testTags(), nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, snap3.IsActive("st_question"))
	assert.True(t, snap3.IsActive("em_angry"))
}

// TestConnectionWeight verifies directional lookup and that the strongest of
// multiple rules between a pair wins.
func TestConnectionWeight(t *testing.T) {
	snap := buildTestSnapshot(t)

	assert.Equal(t, 0.9, snap.ConnectionWeight("st_question", "st_answer"))
	// Rules are directed; the reverse direction has no rule.
	assert.Equal(t, 0.0, snap.ConnectionWeight("st_answer", "st_question"))
	assert.Equal(t, 0.0, snap.ConnectionWeight("st_question", "st_threat"))

	rules := snap.ConnectionsBetween("st_question", "st_answer")
	assert.Len(t, rules, 2)
}

// TestCheckConstraintsSymmetry verifies that mutual-exclusion detection
// depends only on set membership, never on the order tags were added.
func TestCheckConstraintsSymmetry(t *testing.T) {
	snap := buildTestSnapshot(t)

	forward := snap.CheckConstraints([]string{"char_hero", "char_villain", "em_angry"})
	reverse := snap.CheckConstraints([]string{"em_angry", "char_villain", "char_hero"})

	require.Len(t, forward, 1)
	require.Len(t, reverse, 1)
	assert.Equal(t, forward[0].ConstraintID, reverse[0].ConstraintID)
	assert.Equal(t, model.ConstraintMutualExclusive, forward[0].Kind)

	// A single tag from the exclusion set is fine.
	assert.Empty(t, snap.CheckConstraints([]string{"char_hero", "em_angry"}))
}

// TestCheckConstraintsRequires verifies that a requires constraint fires on
// partial presence and stays quiet on full or zero presence.
func TestCheckConstraintsRequires(t *testing.T) {
	requires := model.TagConstraint{ID: 2, CategoryID: "emotion", Kind: model.ConstraintRequires, Active: true}
	requires.SetTagSet([]string{"em_angry", "st_threat"})

	snap, err := ontology.BuildSnapshot(1, testCategories(), testTags(), nil,
		[]model.TagConstraint{requires}, nil)
	require.NoError(t, err)

	assert.Len(t, snap.CheckConstraints([]string{"em_angry"}), 1)
	assert.Empty(t, snap.CheckConstraints([]string{"em_angry", "st_threat"}))
	assert.Empty(t, snap.CheckConstraints([]string{"st_question"}))
}

// TestRelatedTags verifies the bounded traversal: depth limiting and
// cumulative weight along multi-hop paths.
func TestRelatedTags(t *testing.T) {
	snap := buildTestSnapshot(t)

	oneHop := snap.RelatedTags("st_question", 1)
	ids := make(map[string]ontology.RelatedTag)
	for _, rt := range oneHop {
		ids[rt.TagID] = rt
	}
	require.Contains(t, ids, "st_answer")
	assert.Equal(t, 0.9, ids["st_answer"].Weight)
	// Hierarchy edges traverse in both directions.
	require.Contains(t, ids, "char_hero")
	assert.NotContains(t, ids, "st_threat")

	twoHop := snap.RelatedTags("st_question", 2)
	ids2 := make(map[string]ontology.RelatedTag)
	for _, rt := range twoHop {
		ids2[rt.TagID] = rt
	}
	require.Contains(t, ids2, "st_threat")
	assert.InDelta(t, 0.9*0.6, ids2["st_threat"].Weight, 1e-9)
	assert.Equal(t, 2, ids2["st_threat"].Depth)
}

// TestLoadRejectsUnknownReferences verifies that every malformed rule is
// reported and nothing loads partially.
func TestLoadRejectsUnknownReferences(t *testing.T) {
	_, err := ontology.BuildSnapshot(1, testCategories(), testTags(), nil, nil,
		[]model.TagConnectionRule{
			{ID: 1, FromTagID: "st_question", ToTagID: "ghost_tag", Kind: model.ConnectionContinuation, Weight: 0.5, Active: true},
			{ID: 2, FromTagID: "other_ghost", ToTagID: "st_answer", Kind: model.ConnectionContinuation, Weight: 0.5, Active: true},
		})

	require.Error(t, err)
	loadErr, ok := err.(*ontology.LoadError)
	require.True(t, ok)
	// Both offending rules appear in the same error.
	assert.Len(t, loadErr.Problems, 2)
}

// TestLoadRejectsHierarchyCycle verifies that a cycle among is_a edges is a
// load error while the same shape among related_to edges is accepted.
func TestLoadRejectsHierarchyCycle(t *testing.T) {
	cycle := []model.TagHierarchy{
		{ParentTagID: "st_question", ChildTagID: "st_answer", RelationKind: model.RelationIsA, Weight: 1.0},
		{ParentTagID: "st_answer", ChildTagID: "st_threat", RelationKind: model.RelationIsA, Weight: 1.0},
		{ParentTagID: "st_threat", ChildTagID: "st_question", RelationKind: model.RelationIsA, Weight: 1.0},
	}
	_, err := ontology.BuildSnapshot(1, testCategories(), testTags(), cycle, nil, nil)
	require.Error(t, err)

	for i := range cycle {
		cycle[i].RelationKind = model.RelationRelatedTo
	}
	_, err = ontology.BuildSnapshot(1, testCategories(), testTags(), cycle, nil, nil)
	assert.NoError(t, err)
}

// TestLoadRejectsCrossCategoryExclusion verifies that a mutual-exclusion set
// spanning categories is a configuration error.
func TestLoadRejectsCrossCategoryExclusion(t *testing.T) {
	bad := mutualExclusion(1, "character_type", []string{"char_hero", "em_angry"})
	_, err := ontology.BuildSnapshot(1, testCategories(), testTags(), nil,
		[]model.TagConstraint{bad}, nil)
	require.Error(t, err)
}

// TestLoadRejectsDuplicateCategoryValue verifies the one-definition-per-
// (category, value) invariant.
func TestLoadRejectsDuplicateCategoryValue(t *testing.T) {
	tags := append(testTags(), model.TagDefinition{
		ID: "st_question_dup", CategoryID: "sentence_type", Value: "question", Active: true,
	})
	_, err := ontology.BuildSnapshot(1, testCategories(), tags, nil, nil, nil)
	require.Error(t, err)
}

// TestRegistrySwap verifies that administrative edits publish a new
// versioned snapshot while an old reference keeps reading the old state.
func TestRegistrySwap(t *testing.T) {
	reg := ontology.NewRegistry(buildTestSnapshot(t))
	old := reg.Current()

	next, err := reg.UpsertTag(model.TagDefinition{
		ID: "st_plea", CategoryID: "sentence_type", Value: "plea", ImportanceScore: 0.4, Active: true,
	})
	require.NoError(t, err)

	assert.Equal(t, old.Version()+1, next.Version())
	assert.True(t, reg.Current().IsActive("st_plea"))
	// The old snapshot is untouched.
	assert.False(t, old.IsActive("st_plea"))
}

// TestRegistryRejectsInvalidEdit verifies that an edit producing an invalid
// ontology is refused and the published snapshot stays on the old version.
func TestRegistryRejectsInvalidEdit(t *testing.T) {
	reg := ontology.NewRegistry(buildTestSnapshot(t))
	before := reg.Current().Version()

	// Duplicates the (sentence_type, question) pair held by st_question.
	_, err := reg.UpsertTag(model.TagDefinition{
		ID: "st_dupe", CategoryID: "sentence_type", Value: "question", Active: true,
	})
	require.Error(t, err)
	assert.Equal(t, before, reg.Current().Version())
}

// TestRetireTag verifies that retirement deactivates without deleting.
func TestRetireTag(t *testing.T) {
	reg := ontology.NewRegistry(buildTestSnapshot(t))

	_, err := reg.RetireTag("st_threat")
	require.NoError(t, err)

	snap := reg.Current()
	assert.False(t, snap.IsActive("st_threat"))
	_, exists := snap.Tag("st_threat")
	assert.True(t, exists)
}
