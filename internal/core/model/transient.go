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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains struct definitions for data models that
// are only used in memory while a request or workflow executes. They are never
// persisted: the scorer's inputs and outputs, the suggestion candidates flowing
// through the suggestion chain, and the mutation records flowing through the
// persistence write queue.
package model

import "encoding/json"

// NeighborTags carries the tags of one node directly connected to the anchor,
// together with the direction of the connecting edge. Direction matters
// because connection rules are directed: for an incoming neighbor the
// narrative reads neighbor-then-anchor, for an outgoing one anchor-then-
// neighbor.
type NeighborTags struct {
	NodeID   string
	Incoming bool
	Tags     []string
}

// Neighborhood is the scorer's view of the target node: the anchor node's own
// tags plus the tags of every neighbor within the configured radius.
type Neighborhood struct {
	NodeID     string
	AnchorTags []string
	Neighbors  []NeighborTags
}

// Violation reports one violated tag constraint.
type Violation struct {
	ConstraintID uint     `json:"constraint_id"`
	CategoryID   string   `json:"category_id"`
	Kind         string   `json:"kind"`
	TagIDs       []string `json:"tag_ids"`
	Message      string   `json:"message,omitempty"`
}

// ScoreReason is one weighted contribution to an association score: a matched
// connection rule between a candidate tag and a neighborhood tag.
type ScoreReason struct {
	FromTagID  string  `json:"from_tag_id"`
	ToTagID    string  `json:"to_tag_id"`
	Kind       string  `json:"kind"`
	Weight     float64 `json:"weight"`
	Importance float64 `json:"importance"`
}

// ScoreResult is the scorer's answer for one candidate line against one node
// neighborhood. When Eligible is false the candidate was hard-rejected by a
// mutual-exclusion constraint and Score is zero.
type ScoreResult struct {
	LineID     string        `json:"line_id"`
	Score      float64       `json:"score"`
	Eligible   bool          `json:"eligible"`
	Reasons    []ScoreReason `json:"reasons,omitempty"`
	Violations []Violation   `json:"violations,omitempty"`
}

// Candidate is one suggestion returned by a suggestion source: a line id plus
// the source's free-text rationale. Candidates are advisory; they still pass
// through constraint checking before being presented as eligible.
type Candidate struct {
	LineID    string `json:"line_id"`
	Rationale string `json:"rationale,omitempty"`
}

// Mutation ops.
const (
	MutationUpsert = "upsert"
	MutationDelete = "delete"
)

// Entity kinds carried by mutations.
const (
	EntityProject      = "project"
	EntityNode         = "node"
	EntityEdge         = "edge"
	EntitySequence     = "sequence"
	EntitySequenceItem = "sequence_item"
)

// Mutation is one graph-store change queued for persistence. Seq is assigned
// by the store and is strictly monotonic; the write queue never reorders a
// mutation relative to an earlier mutation on the same entity.
type Mutation struct {
	Seq       uint64          `json:"seq"`
	Op        string          `json:"op"`
	Kind      string          `json:"kind"`
	EntityID  string          `json:"entity_id"`
	ProjectID string          `json:"project_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
