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

// Package persist translates graph-store mutations into the relational
// store. Every mutation applies as an idempotent upsert or delete keyed by
// entity id: replaying the same mutation twice yields the same persisted
// state, which is what makes retry-on-failure safe. Deletes cascade
// identically to the in-memory cascade rules (project to nodes, node to
// child nodes, node to touching edges and referencing sequence items).
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// Bridge applies one mutation to the backing store. Apply must be
// idempotent for every mutation it accepts.
type Bridge interface {
	Apply(ctx context.Context, m model.Mutation) error
}

// PersistenceError wraps a failed apply so callers can retry.
type PersistenceError struct {
	Seq uint64
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed for mutation %d: %v", e.Seq, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SQLiteBridge persists mutations into a SQLite database through GORM.
type SQLiteBridge struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path, enables foreign-key
// enforcement, and migrates the full schema.
func Open(path string) (*SQLiteBridge, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	return NewSQLiteBridge(db)
}

// NewSQLiteBridge wraps an existing GORM handle and migrates the schema.
func NewSQLiteBridge(db *gorm.DB) (*SQLiteBridge, error) {
	err := db.AutoMigrate(
		&model.TagCategory{},
		&model.TagDefinition{},
		&model.TagHierarchy{},
		&model.TagConstraint{},
		&model.TagConnectionRule{},
		&model.Line{},
		&model.Project{},
		&model.CanvasNode{},
		&model.CanvasEdge{},
		&model.Sequence{},
		&model.SequenceItem{},
	)
	if err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return &SQLiteBridge{db: db}, nil
}

// DB exposes the underlying handle for the read-side services.
func (b *SQLiteBridge) DB() *gorm.DB {
	return b.db
}

// Apply routes one mutation to its upsert or cascading delete. The whole
// mutation applies inside a transaction so a partial cascade is never
// visible.
func (b *SQLiteBridge) Apply(ctx context.Context, m model.Mutation) error {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch m.Op {
		case model.MutationUpsert:
			return b.applyUpsert(tx, m)
		case model.MutationDelete:
			return b.applyDelete(tx, m)
		default:
			return fmt.Errorf("unknown mutation op %q", m.Op)
		}
	})
	if err != nil {
		return &PersistenceError{Seq: m.Seq, Err: err}
	}
	return nil
}

// applyUpsert decodes the payload for the entity kind and writes it with
// on-conflict-update semantics, so a replay overwrites with identical data.
func (b *SQLiteBridge) applyUpsert(tx *gorm.DB, m model.Mutation) error {
	upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
	switch m.Kind {
	case model.EntityProject:
		var row model.Project
		if err := json.Unmarshal(m.Payload, &row); err != nil {
			return err
		}
		row.Nodes, row.Edges, row.Sequences = nil, nil, nil
		return upsert.Create(&row).Error
	case model.EntityNode:
		var row model.CanvasNode
		if err := json.Unmarshal(m.Payload, &row); err != nil {
			return err
		}
		return upsert.Create(&row).Error
	case model.EntityEdge:
		var row model.CanvasEdge
		if err := json.Unmarshal(m.Payload, &row); err != nil {
			return err
		}
		return upsert.Create(&row).Error
	case model.EntitySequence:
		var row model.Sequence
		if err := json.Unmarshal(m.Payload, &row); err != nil {
			return err
		}
		// Items are replaced wholesale: the row upserts, the old item set
		// is dropped, and the payload's items are reinserted. Replaying
		// leaves the same end state.
		items := row.Items
		row.Items = nil
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("sequence_id = ?", row.ID).Delete(&model.SequenceItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].SequenceID = row.ID
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&items).Error
	case model.EntitySequenceItem:
		var row model.SequenceItem
		if err := json.Unmarshal(m.Payload, &row); err != nil {
			return err
		}
		return upsert.Create(&row).Error
	default:
		return fmt.Errorf("unknown entity kind %q", m.Kind)
	}
}

// applyDelete removes the entity by primary key with the same cascades the
// in-memory store applies. Deleting an entity that is already gone is a
// successful no-op, keeping replays idempotent.
func (b *SQLiteBridge) applyDelete(tx *gorm.DB, m model.Mutation) error {
	switch m.Kind {
	case model.EntityProject:
		if err := deleteProjectGraph(tx, m.EntityID); err != nil {
			return err
		}
		return tx.Delete(&model.Project{}, "id = ?", m.EntityID).Error
	case model.EntityNode:
		return deleteNodeCascade(tx, m.EntityID)
	case model.EntityEdge:
		return tx.Delete(&model.CanvasEdge{}, "id = ?", m.EntityID).Error
	case model.EntitySequence:
		if err := tx.Where("sequence_id = ?", m.EntityID).Delete(&model.SequenceItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Sequence{}, "id = ?", m.EntityID).Error
	case model.EntitySequenceItem:
		return tx.Delete(&model.SequenceItem{}, "id = ?", m.EntityID).Error
	default:
		return fmt.Errorf("unknown entity kind %q", m.Kind)
	}
}

// deleteNodeCascade removes a node, its descendants, edges touching any of
// them, and sequence items referencing any of them.
func deleteNodeCascade(tx *gorm.DB, nodeID string) error {
	var children []model.CanvasNode
	if err := tx.Where("parent_id = ?", nodeID).Find(&children).Error; err != nil {
		return err
	}
	for _, child := range children {
		if err := deleteNodeCascade(tx, child.ID); err != nil {
			return err
		}
	}
	if err := tx.Where("source_id = ? OR target_id = ?", nodeID, nodeID).Delete(&model.CanvasEdge{}).Error; err != nil {
		return err
	}
	if err := tx.Where("node_id = ?", nodeID).Delete(&model.SequenceItem{}).Error; err != nil {
		return err
	}
	return tx.Delete(&model.CanvasNode{}, "id = ?", nodeID).Error
}

// deleteProjectGraph removes every node, edge, sequence, and item owned by
// a project.
func deleteProjectGraph(tx *gorm.DB, projectID string) error {
	var sequences []model.Sequence
	if err := tx.Where("project_id = ?", projectID).Find(&sequences).Error; err != nil {
		return err
	}
	for _, seq := range sequences {
		if err := tx.Where("sequence_id = ?", seq.ID).Delete(&model.SequenceItem{}).Error; err != nil {
			return err
		}
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&model.Sequence{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&model.CanvasEdge{}).Error; err != nil {
		return err
	}
	return tx.Where("project_id = ?", projectID).Delete(&model.CanvasNode{}).Error
}

// LoadProject reads a full project aggregate (nodes, edges, sequences with
// items) for adoption by a graph store. Returns gorm.ErrRecordNotFound when
// the project does not exist.
func (b *SQLiteBridge) LoadProject(ctx context.Context, projectID string) (model.Project, error) {
	var project model.Project
	err := b.db.WithContext(ctx).
		Preload("Nodes").
		Preload("Edges").
		Preload("Sequences.Items").
		First(&project, "id = ?", projectID).Error
	return project, err
}
