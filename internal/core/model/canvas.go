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
// This file contains the canvas entities: the project root aggregate, placed
// nodes (a tree for layout), narrative edges (an arbitrary graph over the same
// node ids), and the linearized playback sequences. The structural parent
// relation and the narrative edge relation are deliberately kept as two
// separate relations over the same node-id space.
package model

import "time"

// Node types for CanvasNode.
const (
	NodeTypeRoot       = "root"
	NodeTypeScene      = "scene"
	NodeTypeClip       = "clip"
	NodeTypeTransition = "transition"
	NodeTypeEffect     = "effect"
	NodeTypeNote       = "note"
)

// Association sources record how a line ended up on a node.
const (
	AssociationManual    = "manual"
	AssociationSuggested = "suggested"
	AssociationSearch    = "search"
)

// RelationManual marks an edge drawn by hand rather than derived from a
// connection rule.
const RelationManual = "manual"

// Project is the root owning entity of a composition. Total duration is
// recomputed from sequence items on every materialization, never cached
// across mutations.
type Project struct {
	ID             string  `gorm:"primaryKey;size:36" json:"id"`
	Name           string  `gorm:"size:200;not null" json:"name"`
	Description    string  `gorm:"type:text" json:"description,omitempty"`
	Theme          string  `gorm:"size:100" json:"theme,omitempty"`
	Style          string  `gorm:"size:50;default:absurd" json:"style,omitempty"`
	ViewportX      float64 `json:"viewport_x"`
	ViewportY      float64 `json:"viewport_y"`
	ViewportZoom   float64 `gorm:"default:1.0" json:"viewport_zoom"`
	TargetDuration float64 `gorm:"default:20.0" json:"target_duration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Nodes     []CanvasNode `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID" json:"nodes,omitempty"`
	Edges     []CanvasEdge `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID" json:"edges,omitempty"`
	Sequences []Sequence   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID" json:"sequences,omitempty"`
}

// CanvasNode is a placed, positionable unit in a project graph, optionally
// bound to an annotated dialogue line. The thumbnail resource handle bound to
// a live node is runtime state owned by the graph store and is not persisted.
type CanvasNode struct {
	ID        string  `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string  `gorm:"size:36;index;not null" json:"project_id"`
	ParentID  *string `gorm:"size:36;index" json:"parent_id,omitempty"`
	LineID    *string `gorm:"size:100;index" json:"line_id,omitempty"`

	NodeType string `gorm:"size:20;default:clip" json:"node_type"`
	Title    string `gorm:"size:200" json:"title,omitempty"`
	Content  string `gorm:"type:text" json:"content,omitempty"`

	OrderIndex int     `json:"order"`
	PosX       float64 `json:"pos_x"`
	PosY       float64 `json:"pos_y"`
	Width      float64 `gorm:"default:200" json:"width"`
	Height     float64 `gorm:"default:100" json:"height"`
	ZIndex     int     `json:"z_index"`
	Color      string  `gorm:"size:20" json:"color,omitempty"`

	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
	Volume    float64 `gorm:"default:1.0" json:"volume"`
	Collapsed bool    `json:"collapsed"`
	Locked    bool    `json:"locked"`

	// How the line binding came to be and, for non-manual bindings, how
	// confident the scorer was. Empty source means no line is bound.
	AssociationSource     string  `gorm:"size:20" json:"association_source,omitempty"`
	AssociationConfidence float64 `json:"association_confidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanvasEdge is a directed narrative relation between two nodes of the same
// project. Source and target must differ.
type CanvasEdge struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string `gorm:"size:36;index;not null" json:"project_id"`
	SourceID  string `gorm:"size:36;index;not null" json:"source"`
	TargetID  string `gorm:"size:36;index;not null" json:"target"`

	SourceAnchor string  `gorm:"size:20;default:output" json:"source_anchor,omitempty"`
	TargetAnchor string  `gorm:"size:20;default:input" json:"target_anchor,omitempty"`
	RelationType string  `gorm:"size:30" json:"relation_type,omitempty"`
	Strength     float64 `gorm:"default:0.5" json:"strength"`
	Label        string  `gorm:"size:100" json:"label,omitempty"`
	Color        string  `gorm:"size:20" json:"color,omitempty"`
}

// Sequence is a named, ordered, trimmed view over a subset of nodes
// representing a playable timeline.
type Sequence struct {
	ID             uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID      string  `gorm:"size:36;index;not null" json:"project_id"`
	Name           string  `gorm:"size:100;default:main" json:"name"`
	TotalDuration  float64 `json:"total_duration"`
	TargetDuration float64 `gorm:"default:20.0" json:"target_duration"`

	Items []SequenceItem `gorm:"constraint:OnDelete:CASCADE;foreignKey:SequenceID" json:"items,omitempty"`
}

// SequenceItem places one node on a timeline. OrderIndex values within a
// sequence always form a dense 0..n-1 permutation; every mutation renumbers.
type SequenceItem struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SequenceID uint   `gorm:"index;not null" json:"sequence_id"`
	NodeID     string `gorm:"size:36;index;not null" json:"node_id"`

	OrderIndex   int     `gorm:"not null" json:"order"`
	TrimStart    float64 `json:"trim_start"`
	TrimEnd      float64 `json:"trim_end"`
	PlaybackRate float64 `gorm:"default:1.0" json:"playback_rate"`
	Volume       float64 `gorm:"default:1.0" json:"volume"`

	TransitionType     string  `gorm:"size:50;default:cut" json:"transition_type"`
	TransitionDuration float64 `json:"transition_duration"`
}

// EffectiveDuration is the play length this item contributes to its sequence:
// the trimmed span divided by the playback rate, clamped at zero. A zero or
// negative rate is treated as 1.0 rather than dividing by zero.
func (it *SequenceItem) EffectiveDuration() float64 {
	rate := it.PlaybackRate
	if rate <= 0 {
		rate = 1.0
	}
	d := (it.TrimEnd - it.TrimStart) / rate
	if d < 0 {
		return 0
	}
	return d
}
