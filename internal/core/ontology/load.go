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

// This file implements snapshot construction and validation. Loading is
// all-or-nothing: every rule, constraint, and hierarchy edge is validated,
// every problem found is collected, and a single LoadError listing all of
// them is returned when anything is wrong. A partially valid ontology never
// loads.
package ontology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// LoadError reports every validation problem found while building a
// snapshot. It is fatal at startup: a session never begins against a
// malformed ontology.
type LoadError struct {
	Problems []string
}

// Error joins all collected problems into one message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("ontology validation failed with %d problem(s):\n  %s",
		len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// document is the TOML shape of an ontology definition file. Rows that
// carry an active flag use a pointer so an omitted flag defaults to true
// instead of deactivating the row.
type document struct {
	Categories  []categoryDoc   `toml:"categories"`
	Tags        []tagDoc        `toml:"tags"`
	Hierarchy   []hierarchyDoc  `toml:"hierarchy"`
	Constraints []constraintDoc `toml:"constraints"`
	Rules       []ruleDoc       `toml:"rules"`
}

type hierarchyDoc struct {
	ParentTagID  string   `toml:"parent_tag_id"`
	ChildTagID   string   `toml:"child_tag_id"`
	RelationKind string   `toml:"relation_kind"`
	Weight       *float64 `toml:"weight"`
}

type categoryDoc struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Layer       int    `toml:"layer"`
	Required    bool   `toml:"required"`
	MultiSelect bool   `toml:"multi_select"`
	SortOrder   int    `toml:"sort_order"`
	Active      *bool  `toml:"active"`
}

type tagDoc struct {
	ID              string   `toml:"id"`
	CategoryID      string   `toml:"category_id"`
	Value           string   `toml:"value"`
	DisplayName     string   `toml:"display_name"`
	Description     string   `toml:"description"`
	ImportanceScore *float64 `toml:"importance_score"`
	RarityScore     *float64 `toml:"rarity_score"`
	Active          *bool    `toml:"active"`
}

// constraintDoc is the TOML shape of a constraint; the tag set is a plain
// array in the file and JSON-encoded in the row.
type constraintDoc struct {
	CategoryID string   `toml:"category_id"`
	Kind       string   `toml:"kind"`
	Tags       []string `toml:"tags"`
	Message    string   `toml:"message"`
	Active     *bool    `toml:"active"`
}

type ruleDoc struct {
	FromTagID string   `toml:"from_tag_id"`
	ToTagID   string   `toml:"to_tag_id"`
	Kind      string   `toml:"kind"`
	Weight    *float64 `toml:"weight"`
	Active    *bool    `toml:"active"`
}

func boolOrTrue(p *bool) bool {
	return p == nil || *p
}

func floatOrDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// LoadFromFile reads an ontology definition from a TOML file and builds the
// initial snapshot (version 1).
func LoadFromFile(path string) (*Snapshot, error) {
	var doc document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, &LoadError{Problems: []string{fmt.Sprintf("failed to decode ontology file %s: %v", path, err)}}
	}

	categories := make([]model.TagCategory, 0, len(doc.Categories))
	for _, c := range doc.Categories {
		categories = append(categories, model.TagCategory{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Layer:       c.Layer,
			Required:    c.Required,
			MultiSelect: c.MultiSelect,
			SortOrder:   c.SortOrder,
			Active:      boolOrTrue(c.Active),
		})
	}

	tags := make([]model.TagDefinition, 0, len(doc.Tags))
	for _, t := range doc.Tags {
		tags = append(tags, model.TagDefinition{
			ID:              t.ID,
			CategoryID:      t.CategoryID,
			Value:           t.Value,
			DisplayName:     t.DisplayName,
			Description:     t.Description,
			ImportanceScore: floatOrDefault(t.ImportanceScore, 0.5),
			RarityScore:     floatOrDefault(t.RarityScore, 0.5),
			Active:          boolOrTrue(t.Active),
		})
	}

	constraints := make([]model.TagConstraint, 0, len(doc.Constraints))
	for i, c := range doc.Constraints {
		row := model.TagConstraint{
			ID:         uint(i + 1),
			CategoryID: c.CategoryID,
			Kind:       c.Kind,
			Message:    c.Message,
			Active:     boolOrTrue(c.Active),
		}
		row.SetTagSet(c.Tags)
		constraints = append(constraints, row)
	}

	hierarchy := make([]model.TagHierarchy, 0, len(doc.Hierarchy))
	for _, h := range doc.Hierarchy {
		kind := h.RelationKind
		if kind == "" {
			kind = model.RelationIsA
		}
		hierarchy = append(hierarchy, model.TagHierarchy{
			ParentTagID:  h.ParentTagID,
			ChildTagID:   h.ChildTagID,
			RelationKind: kind,
			Weight:       floatOrDefault(h.Weight, 1.0),
		})
	}

	rules := make([]model.TagConnectionRule, 0, len(doc.Rules))
	for i, r := range doc.Rules {
		rules = append(rules, model.TagConnectionRule{
			ID:        uint(i + 1),
			FromTagID: r.FromTagID,
			ToTagID:   r.ToTagID,
			Kind:      r.Kind,
			Weight:    floatOrDefault(r.Weight, 1.0),
			Active:    boolOrTrue(r.Active),
		})
	}

	return BuildSnapshot(1, categories, tags, hierarchy, constraints, rules)
}

// BuildSnapshot validates the given rows and assembles an immutable
// snapshot. All problems are collected before returning, so an operator sees
// the complete list in one pass instead of fixing them one at a time.
func BuildSnapshot(
	version int64,
	categories []model.TagCategory,
	tags []model.TagDefinition,
	hierarchy []model.TagHierarchy,
	constraints []model.TagConstraint,
	rules []model.TagConnectionRule,
) (*Snapshot, error) {
	var problems []string
	addProblem := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	categoryIndex := make(map[string]model.TagCategory, len(categories))
	for _, c := range categories {
		if c.ID == "" {
			addProblem("category with empty id")
			continue
		}
		if _, dup := categoryIndex[c.ID]; dup {
			addProblem("duplicate category id %q", c.ID)
			continue
		}
		categoryIndex[c.ID] = c
	}

	tagIndex := make(map[string]model.TagDefinition, len(tags))
	categoryValues := make(map[string]string)
	for _, t := range tags {
		if t.ID == "" {
			addProblem("tag with empty id (category %q, value %q)", t.CategoryID, t.Value)
			continue
		}
		if _, dup := tagIndex[t.ID]; dup {
			addProblem("duplicate tag id %q", t.ID)
			continue
		}
		if _, ok := categoryIndex[t.CategoryID]; !ok {
			addProblem("tag %q references unknown category %q", t.ID, t.CategoryID)
		}
		pairKey := t.CategoryID + "\x00" + t.Value
		if prev, dup := categoryValues[pairKey]; dup {
			addProblem("tags %q and %q share value %q in category %q", prev, t.ID, t.Value, t.CategoryID)
		}
		categoryValues[pairKey] = t.ID
		if t.ImportanceScore < 0 || t.ImportanceScore > 1 {
			addProblem("tag %q has importance_score %v outside [0,1]", t.ID, t.ImportanceScore)
		}
		if t.RarityScore < 0 || t.RarityScore > 1 {
			addProblem("tag %q has rarity_score %v outside [0,1]", t.ID, t.RarityScore)
		}
		tagIndex[t.ID] = t
	}

	hierarchyOut := make(map[string][]model.TagHierarchy)
	hierarchyIn := make(map[string][]model.TagHierarchy)
	// Per-kind adjacency for the DAG check. Only is_a and part_of edges must
	// be acyclic; related_to edges may form cycles.
	dagAdjacency := map[string]map[string][]string{
		model.RelationIsA:    {},
		model.RelationPartOf: {},
	}
	for _, h := range hierarchy {
		ok := true
		if _, known := tagIndex[h.ParentTagID]; !known {
			addProblem("hierarchy edge references unknown parent tag %q", h.ParentTagID)
			ok = false
		}
		if _, known := tagIndex[h.ChildTagID]; !known {
			addProblem("hierarchy edge references unknown child tag %q", h.ChildTagID)
			ok = false
		}
		if h.ParentTagID == h.ChildTagID {
			addProblem("hierarchy edge %q -> %q is a self-loop", h.ParentTagID, h.ChildTagID)
			ok = false
		}
		switch h.RelationKind {
		case model.RelationIsA, model.RelationPartOf, model.RelationRelatedTo:
		default:
			addProblem("hierarchy edge %q -> %q has unknown relation kind %q", h.ParentTagID, h.ChildTagID, h.RelationKind)
			ok = false
		}
		if h.Weight < 0 || h.Weight > 1 {
			addProblem("hierarchy edge %q -> %q has weight %v outside [0,1]", h.ParentTagID, h.ChildTagID, h.Weight)
			ok = false
		}
		if !ok {
			continue
		}
		hierarchyOut[h.ParentTagID] = append(hierarchyOut[h.ParentTagID], h)
		hierarchyIn[h.ChildTagID] = append(hierarchyIn[h.ChildTagID], h)
		if adj, tracked := dagAdjacency[h.RelationKind]; tracked {
			adj[h.ParentTagID] = append(adj[h.ParentTagID], h.ChildTagID)
		}
	}

	for kind, adjacency := range dagAdjacency {
		for _, cycle := range findCycles(adjacency) {
			addProblem("%s hierarchy contains a cycle: %s", kind, strings.Join(cycle, " -> "))
		}
	}

	constraintEntries := make([]constraintEntry, 0, len(constraints))
	for _, c := range constraints {
		tagSet, err := c.TagSet()
		if err != nil {
			addProblem("constraint %d has a malformed tag set: %v", c.ID, err)
			continue
		}
		ok := true
		for _, id := range tagSet {
			if _, known := tagIndex[id]; !known {
				addProblem("constraint %d references unknown tag %q", c.ID, id)
				ok = false
			}
		}
		switch c.Kind {
		case model.ConstraintMutualExclusive:
			if len(tagSet) < 2 {
				addProblem("mutual_exclusive constraint %d needs at least 2 tags, has %d", c.ID, len(tagSet))
				ok = false
			}
			for _, id := range tagSet {
				if t, known := tagIndex[id]; known && t.CategoryID != c.CategoryID {
					addProblem("mutual_exclusive constraint %d mixes categories: tag %q is in %q, constraint is for %q",
						c.ID, id, t.CategoryID, c.CategoryID)
					ok = false
				}
			}
		case model.ConstraintRequires, model.ConstraintExcludes, model.ConstraintCoOccurs:
			if len(tagSet) < 2 {
				addProblem("%s constraint %d needs at least 2 tags, has %d", c.Kind, c.ID, len(tagSet))
				ok = false
			}
		default:
			addProblem("constraint %d has unknown kind %q", c.ID, c.Kind)
			ok = false
		}
		if ok {
			constraintEntries = append(constraintEntries, constraintEntry{row: c, tagSet: tagSet})
		}
	}

	rulesByFrom := make(map[string][]model.TagConnectionRule)
	for _, r := range rules {
		ok := true
		if _, known := tagIndex[r.FromTagID]; !known {
			addProblem("connection rule %d references unknown from tag %q", r.ID, r.FromTagID)
			ok = false
		}
		if _, known := tagIndex[r.ToTagID]; !known {
			addProblem("connection rule %d references unknown to tag %q", r.ID, r.ToTagID)
			ok = false
		}
		switch r.Kind {
		case model.ConnectionContinuation, model.ConnectionContrast, model.ConnectionEscalation,
			model.ConnectionCauseEffect, model.ConnectionAssociation, model.ConnectionCorrelation,
			model.ConnectionCharacterTypical:
		default:
			addProblem("connection rule %d has unknown kind %q", r.ID, r.Kind)
			ok = false
		}
		if r.Weight < 0 || r.Weight > 1 {
			addProblem("connection rule %d has weight %v outside [0,1]", r.ID, r.Weight)
			ok = false
		}
		if ok {
			rulesByFrom[r.FromTagID] = append(rulesByFrom[r.FromTagID], r)
		}
	}

	if len(problems) > 0 {
		return nil, &LoadError{Problems: problems}
	}

	return &Snapshot{
		version:        version,
		categories:     categoryIndex,
		tags:           tagIndex,
		hierarchyOut:   hierarchyOut,
		hierarchyIn:    hierarchyIn,
		rulesByFrom:    rulesByFrom,
		constraints:    constraintEntries,
		srcCategories:  categories,
		srcTags:        tags,
		srcHierarchy:   hierarchy,
		srcConstraints: constraints,
		srcRules:       rules,
	}, nil
}

// findCycles detects cycles in a directed adjacency map using iterative
// depth-first search with three-color marking. Each cycle found is returned
// as the path of tag ids that closes it.
func findCycles(adjacency map[string][]string) [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var cycles [][]string

	var visit func(node string, path []string)
	visit = func(node string, path []string) {
		color[node] = gray
		path = append(path, node)
		for _, next := range adjacency[node] {
			switch color[next] {
			case white:
				visit(next, path)
			case gray:
				// Found a back edge. Report the portion of the path from the
				// repeated node onward, closed with the repeat.
				start := 0
				for i, id := range path {
					if id == next {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), next)
				cycles = append(cycles, cycle)
			}
		}
		color[node] = black
	}

	// Iterate in sorted order so reported cycles are deterministic.
	nodes := make([]string, 0, len(adjacency))
	for node := range adjacency {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if color[node] == white {
			visit(node, nil)
		}
	}
	return cycles
}
