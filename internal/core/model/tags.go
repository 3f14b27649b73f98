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
// This file contains the tag-ontology entities: categories, tag definitions,
// the hierarchy between tags, co-occurrence constraints, and the weighted
// connection rules that drive line-to-line compatibility scoring. These rows
// are loaded once at session start into an immutable ontology snapshot and
// are only written by administrative edits.
package model

import (
	"encoding/json"
	"time"
)

// Relation kinds for TagHierarchy edges. IsA and PartOf edges must form a DAG;
// RelatedTo edges may form cycles.
const (
	RelationIsA       = "is_a"
	RelationPartOf    = "part_of"
	RelationRelatedTo = "related_to"
)

// Constraint kinds for TagConstraint rows.
const (
	ConstraintMutualExclusive = "mutual_exclusive"
	ConstraintRequires        = "requires"
	ConstraintExcludes        = "excludes"
	ConstraintCoOccurs        = "co_occurs"
)

// Connection kinds for TagConnectionRule rows. Continuation, contrast,
// escalation and cause-effect are narrative-directional; association and
// correlation are symmetric in practice even though the rows are stored
// directed.
const (
	ConnectionContinuation     = "continuation"
	ConnectionContrast         = "contrast"
	ConnectionEscalation       = "escalation"
	ConnectionCauseEffect      = "cause_effect"
	ConnectionAssociation      = "association"
	ConnectionCorrelation      = "correlation"
	ConnectionCharacterTypical = "character_typical"
)

// TagCategory groups tag definitions into semantic layers (sentence type,
// emotion, tone, character type, ...). MultiSelect controls whether a line may
// carry more than one value from this category.
type TagCategory struct {
	ID          string `gorm:"primaryKey;size:100" json:"id" toml:"id"`
	Name        string `gorm:"size:200;not null" json:"name" toml:"name"`
	Description string `gorm:"type:text" json:"description,omitempty" toml:"description"`
	Layer       int    `json:"layer" toml:"layer"`
	Required    bool   `json:"required" toml:"required"`
	MultiSelect bool   `json:"multi_select" toml:"multi_select"`
	SortOrder   int    `json:"sort_order" toml:"sort_order"`
	Active      bool   `gorm:"default:true" json:"active" toml:"active"`
}

// TagDefinition is a single semantic label. The (CategoryID, Value) pair is
// unique across the ontology; ID is the stable key used by every other table.
type TagDefinition struct {
	ID              string  `gorm:"primaryKey;size:100" json:"id" toml:"id"`
	CategoryID      string  `gorm:"size:100;not null;index;uniqueIndex:uq_tag_category_value" json:"category_id" toml:"category_id"`
	Value           string  `gorm:"size:100;not null;uniqueIndex:uq_tag_category_value" json:"value" toml:"value"`
	DisplayName     string  `gorm:"size:200" json:"display_name,omitempty" toml:"display_name"`
	Description     string  `gorm:"type:text" json:"description,omitempty" toml:"description"`
	ImportanceScore float64 `gorm:"default:0.5" json:"importance_score" toml:"importance_score"`
	RarityScore     float64 `gorm:"default:0.5" json:"rarity_score" toml:"rarity_score"`
	Active          bool    `gorm:"default:true" json:"active" toml:"active"`
}

// TagHierarchy is a weighted, directed edge between two tag definitions.
type TagHierarchy struct {
	ParentTagID  string  `gorm:"primaryKey;size:100" json:"parent_tag_id" toml:"parent_tag_id"`
	ChildTagID   string  `gorm:"primaryKey;size:100" json:"child_tag_id" toml:"child_tag_id"`
	RelationKind string  `gorm:"primaryKey;size:20;default:is_a" json:"relation_kind" toml:"relation_kind"`
	Weight       float64 `gorm:"default:1.0" json:"weight" toml:"weight"`
}

// TagConstraint forbids or requires co-occurrence of tags within a category.
// TagIDs is stored as a JSON array to match the relational schema.
type TagConstraint struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID string `gorm:"size:100;not null;index" json:"category_id" toml:"category_id"`
	Kind       string `gorm:"size:30;not null" json:"kind" toml:"kind"`
	TagIDs     string `gorm:"type:text;not null" json:"-" toml:"-"`
	Message    string `gorm:"type:text" json:"message,omitempty" toml:"message"`
	Active     bool   `gorm:"default:true" json:"active" toml:"active"`
}

// TagSet decodes the JSON-encoded tag id array of a constraint. A malformed
// payload is reported as a load error by the ontology loader, so callers that
// only see validated snapshots may ignore the error.
func (c *TagConstraint) TagSet() ([]string, error) {
	var ids []string
	if c.TagIDs == "" {
		return ids, nil
	}
	err := json.Unmarshal([]byte(c.TagIDs), &ids)
	return ids, err
}

// SetTagSet encodes the tag id set into the JSON column.
func (c *TagConstraint) SetTagSet(ids []string) {
	b, _ := json.Marshal(ids)
	c.TagIDs = string(b)
}

// TagConnectionRule is a weighted, directed compatibility rule between two
// tags. Multiple rules between the same pair with different kinds are allowed
// and independently weighted.
type TagConnectionRule struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FromTagID string    `gorm:"size:100;not null;index:idx_rule_from_to" json:"from_tag_id" toml:"from_tag_id"`
	ToTagID   string    `gorm:"size:100;not null;index:idx_rule_from_to" json:"to_tag_id" toml:"to_tag_id"`
	Kind      string    `gorm:"size:30;not null" json:"kind" toml:"kind"`
	Weight    float64   `gorm:"default:1.0" json:"weight" toml:"weight"`
	Active    bool      `gorm:"default:true" json:"active" toml:"active"`
	CreatedAt time.Time `json:"created_at"`
}
