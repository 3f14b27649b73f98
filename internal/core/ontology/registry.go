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

// This file defines the Registry, the single mutable cell in the ontology.
// Readers call Current and get an immutable snapshot; administrative edits
// rebuild the whole snapshot from an edited copy of the source rows,
// revalidate it, and swap the pointer. A scorer holding the old snapshot
// keeps reading it untorn until it asks for the current one again.
package ontology

import (
	"sync"
	"sync/atomic"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// Registry publishes the current ontology snapshot and serializes
// administrative edits against it.
type Registry struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes edits; readers never take it
}

// NewRegistry creates a registry publishing the given initial snapshot.
func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	r.current.Store(initial)
	return r
}

// Current returns the snapshot readers should use. The returned snapshot is
// immutable and remains valid even after later edits swap in a newer one.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// UpsertTag adds or replaces a tag definition and publishes a new snapshot.
// If the edit would make the ontology invalid the swap is aborted and the
// validation error returned; the published snapshot is unchanged.
func (r *Registry) UpsertTag(tag model.TagDefinition) (*Snapshot, error) {
	return r.rebuild(func(rows *sourceRows) {
		for i := range rows.tags {
			if rows.tags[i].ID == tag.ID {
				rows.tags[i] = tag
				return
			}
		}
		rows.tags = append(rows.tags, tag)
	})
}

// RetireTag marks a tag inactive and publishes a new snapshot. The tag stays
// in the ontology so historical lines still resolve it; it simply stops
// being active for constraint checks and scoring.
func (r *Registry) RetireTag(tagID string) (*Snapshot, error) {
	return r.rebuild(func(rows *sourceRows) {
		for i := range rows.tags {
			if rows.tags[i].ID == tagID {
				rows.tags[i].Active = false
				return
			}
		}
	})
}

// UpsertRule adds or replaces a connection rule (matched by id) and
// publishes a new snapshot.
func (r *Registry) UpsertRule(rule model.TagConnectionRule) (*Snapshot, error) {
	return r.rebuild(func(rows *sourceRows) {
		for i := range rows.rules {
			if rows.rules[i].ID == rule.ID && rule.ID != 0 {
				rows.rules[i] = rule
				return
			}
		}
		if rule.ID == 0 {
			var max uint
			for _, existing := range rows.rules {
				if existing.ID > max {
					max = existing.ID
				}
			}
			rule.ID = max + 1
		}
		rows.rules = append(rows.rules, rule)
	})
}

// UpsertConstraint adds or replaces a constraint (matched by id) and
// publishes a new snapshot.
func (r *Registry) UpsertConstraint(constraint model.TagConstraint) (*Snapshot, error) {
	return r.rebuild(func(rows *sourceRows) {
		for i := range rows.constraints {
			if rows.constraints[i].ID == constraint.ID && constraint.ID != 0 {
				rows.constraints[i] = constraint
				return
			}
		}
		if constraint.ID == 0 {
			var max uint
			for _, existing := range rows.constraints {
				if existing.ID > max {
					max = existing.ID
				}
			}
			constraint.ID = max + 1
		}
		rows.constraints = append(rows.constraints, constraint)
	})
}

// sourceRows is a deep-copied, editable view of a snapshot's source rows.
type sourceRows struct {
	categories  []model.TagCategory
	tags        []model.TagDefinition
	hierarchy   []model.TagHierarchy
	constraints []model.TagConstraint
	rules       []model.TagConnectionRule
}

// rebuild copies the current snapshot's rows, applies the edit, validates
// the result, and swaps it in under the edit lock.
func (r *Registry) rebuild(edit func(rows *sourceRows)) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	rows := &sourceRows{
		categories:  append([]model.TagCategory{}, cur.srcCategories...),
		tags:        append([]model.TagDefinition{}, cur.srcTags...),
		hierarchy:   append([]model.TagHierarchy{}, cur.srcHierarchy...),
		constraints: append([]model.TagConstraint{}, cur.srcConstraints...),
		rules:       append([]model.TagConnectionRule{}, cur.srcRules...),
	}
	edit(rows)

	next, err := BuildSnapshot(cur.version+1, rows.categories, rows.tags, rows.hierarchy, rows.constraints, rows.rules)
	if err != nil {
		return nil, err
	}
	r.current.Store(next)
	return next, nil
}
