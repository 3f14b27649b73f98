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

// Package ontology holds the tag ontology: the constrained, weighted relation
// graph over the semantic labels attached to dialogue lines. This file
// defines Snapshot, the immutable view every reader works against. A
// snapshot is built once by the loader, validated in full, and never mutated
// afterwards, so any number of concurrent scorer calls can read it without
// locking. Administrative edits go through the Registry, which builds a new
// snapshot and swaps it in atomically.
package ontology

import (
	"sort"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// RelatedTag is one tag reached by a bounded traversal from an origin tag.
// Weight is the cumulative product of edge weights along the strongest path
// found, and Kind is the relation kind of the first edge on that path.
type RelatedTag struct {
	TagID  string
	Kind   string
	Weight float64
	Depth  int
}

// constraintEntry is a constraint with its tag set pre-decoded, so constraint
// checks never re-parse JSON on the hot path.
type constraintEntry struct {
	row    model.TagConstraint
	tagSet []string
}

// Snapshot is an immutable, fully validated view of the ontology. All query
// methods are pure reads; none of them ever mutates the receiver.
type Snapshot struct {
	version int64

	categories map[string]model.TagCategory
	tags       map[string]model.TagDefinition

	// Adjacency over hierarchy edges, indexed from both endpoints so the
	// traversal can walk up and down the hierarchy.
	hierarchyOut map[string][]model.TagHierarchy
	hierarchyIn  map[string][]model.TagHierarchy

	// Connection rules indexed by the from-tag for directional lookup.
	rulesByFrom map[string][]model.TagConnectionRule

	constraints []constraintEntry

	// Source rows, retained so the Registry can rebuild a new snapshot from
	// an edited copy of this one.
	srcCategories  []model.TagCategory
	srcTags        []model.TagDefinition
	srcHierarchy   []model.TagHierarchy
	srcConstraints []model.TagConstraint
	srcRules       []model.TagConnectionRule
}

// Version returns the monotonically increasing snapshot version. Version 1
// is the snapshot loaded at session start; each administrative edit bumps it.
func (s *Snapshot) Version() int64 {
	return s.version
}

// Tag returns the definition for the given tag id.
func (s *Snapshot) Tag(tagID string) (model.TagDefinition, bool) {
	t, ok := s.tags[tagID]
	return t, ok
}

// Category returns the category definition for the given category id.
func (s *Snapshot) Category(categoryID string) (model.TagCategory, bool) {
	c, ok := s.categories[categoryID]
	return c, ok
}

// IsActive reports whether the tag exists, is active, and belongs to an
// active category. Retired tags stay in the snapshot so historical lines
// still resolve, but they score as inactive.
func (s *Snapshot) IsActive(tagID string) bool {
	t, ok := s.tags[tagID]
	if !ok || !t.Active {
		return false
	}
	c, ok := s.categories[t.CategoryID]
	return ok && c.Active
}

// Importance returns the importance score of a tag, or 0 for an unknown id.
func (s *Snapshot) Importance(tagID string) float64 {
	if t, ok := s.tags[tagID]; ok {
		return t.ImportanceScore
	}
	return 0
}

// ConnectionWeight returns the strongest active rule weight from one tag to
// another, or 0 when no rule connects them. Rules are directed; callers that
// care about both narrative directions query twice.
func (s *Snapshot) ConnectionWeight(fromTag, toTag string) float64 {
	best := 0.0
	for _, r := range s.rulesByFrom[fromTag] {
		if r.ToTagID == toTag && r.Active && r.Weight > best {
			best = r.Weight
		}
	}
	return best
}

// ConnectionsBetween returns every active rule from one tag to another.
// Multiple kinds between the same pair are independent rules.
func (s *Snapshot) ConnectionsBetween(fromTag, toTag string) []model.TagConnectionRule {
	var out []model.TagConnectionRule
	for _, r := range s.rulesByFrom[fromTag] {
		if r.ToTagID == toTag && r.Active {
			out = append(out, r)
		}
	}
	return out
}

// CheckConstraints returns every constraint the given tag set violates.
// Detection depends only on set membership, never on the order tags were
// added. Constraint kinds behave as follows:
//   - mutual_exclusive, excludes: two or more tags of the set present
//     together is a violation.
//   - requires: some but not all tags of the set present is a violation.
//   - co_occurs: advisory only, never reported as a violation.
func (s *Snapshot) CheckConstraints(tagSet []string) []model.Violation {
	present := make(map[string]bool, len(tagSet))
	for _, id := range tagSet {
		present[id] = true
	}

	var violations []model.Violation
	for _, entry := range s.constraints {
		if !entry.row.Active {
			continue
		}
		hits := 0
		for _, id := range entry.tagSet {
			if present[id] {
				hits++
			}
		}
		violated := false
		switch entry.row.Kind {
		case model.ConstraintMutualExclusive, model.ConstraintExcludes:
			violated = hits >= 2
		case model.ConstraintRequires:
			violated = hits > 0 && hits < len(entry.tagSet)
		}
		if violated {
			violations = append(violations, model.Violation{
				ConstraintID: entry.row.ID,
				CategoryID:   entry.row.CategoryID,
				Kind:         entry.row.Kind,
				TagIDs:       entry.tagSet,
				Message:      entry.row.Message,
			})
		}
	}
	return violations
}

// RelatedTags performs a bounded breadth-first traversal from the origin tag
// across hierarchy edges (in both directions) and connection rules (in rule
// direction), up to maxDepth hops. Each reachable tag is reported once with
// the cumulative product of edge weights along the strongest path found.
// Results are sorted by descending weight, then tag id, for determinism.
func (s *Snapshot) RelatedTags(tagID string, maxDepth int) []RelatedTag {
	if maxDepth < 1 {
		return nil
	}
	if _, ok := s.tags[tagID]; !ok {
		return nil
	}

	type frontierEntry struct {
		tagID  string
		kind   string
		weight float64
	}

	best := make(map[string]RelatedTag)
	frontier := []frontierEntry{{tagID: tagID, weight: 1.0}}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []frontierEntry
		expand := func(to, kind string, edgeWeight, pathWeight float64, firstKind string) {
			if to == tagID {
				return
			}
			w := pathWeight * edgeWeight
			k := firstKind
			if k == "" {
				k = kind
			}
			if cur, seen := best[to]; !seen || w > cur.Weight {
				best[to] = RelatedTag{TagID: to, Kind: k, Weight: w, Depth: depth}
				next = append(next, frontierEntry{tagID: to, kind: k, weight: w})
			}
		}

		for _, f := range frontier {
			for _, h := range s.hierarchyOut[f.tagID] {
				expand(h.ChildTagID, h.RelationKind, h.Weight, f.weight, f.kind)
			}
			for _, h := range s.hierarchyIn[f.tagID] {
				expand(h.ParentTagID, h.RelationKind, h.Weight, f.weight, f.kind)
			}
			for _, r := range s.rulesByFrom[f.tagID] {
				if r.Active {
					expand(r.ToTagID, r.Kind, r.Weight, f.weight, f.kind)
				}
			}
		}
		frontier = next
	}

	out := make([]RelatedTag, 0, len(best))
	for _, rt := range best {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].TagID < out[j].TagID
	})
	return out
}

// Categories returns the category rows sorted by layer then sort order, the
// order the annotation UI presents them in.
func (s *Snapshot) Categories() []model.TagCategory {
	out := make([]model.TagCategory, len(s.srcCategories))
	copy(out, s.srcCategories)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Layer != out[j].Layer {
			return out[i].Layer < out[j].Layer
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

// TagsInCategory returns every tag definition in a category, sorted by id.
func (s *Snapshot) TagsInCategory(categoryID string) []model.TagDefinition {
	var out []model.TagDefinition
	for _, t := range s.srcTags {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
