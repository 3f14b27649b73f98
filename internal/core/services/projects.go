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

// This file defines the ProjectService, the registry of open project
// graphs. A project is either cold (rows in SQLite) or open (a live graph
// store adopted from those rows); the service owns the transition in both
// directions and makes sure a project is never opened twice.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/graph"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/media"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/persist"
)

// DefaultTargetDuration is the target cut length for new projects, in
// seconds.
const DefaultTargetDuration = 20.0

// DefaultSequenceName names the sequence every new project starts with.
const DefaultSequenceName = "main"

// ErrProjectNotFound is returned for lookups of unknown project ids.
var ErrProjectNotFound = errors.New("project not found")

// ProjectService creates, opens, and closes project graphs. Open stores
// flush their mutations through the shared sink; the service applies the
// project row itself synchronously so the foreign keys exist before the
// queue flushes any node.
type ProjectService struct {
	bridge  *persist.SQLiteBridge
	sink    graph.MutationSink
	factory media.HandleFactory
	ceiling int

	mu   sync.Mutex
	open map[string]*graph.Store
}

func NewProjectService(bridge *persist.SQLiteBridge, sink graph.MutationSink, factory media.HandleFactory, ceiling int) *ProjectService {
	return &ProjectService{
		bridge:  bridge,
		sink:    sink,
		factory: factory,
		ceiling: ceiling,
		open:    make(map[string]*graph.Store),
	}
}

// Create persists a new project and opens it with a root node and an empty
// default sequence.
func (s *ProjectService) Create(ctx context.Context, name, description, theme string, targetDuration float64) (*graph.Store, error) {
	if targetDuration <= 0 {
		targetDuration = DefaultTargetDuration
	}
	project := model.Project{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		Theme:          theme,
		ViewportZoom:   1.0,
		TargetDuration: targetDuration,
	}

	// The project row goes in synchronously so every queued node and
	// sequence write lands on an existing parent row.
	payload, err := marshalMutationPayload(&project)
	if err != nil {
		return nil, err
	}
	err = s.bridge.Apply(ctx, model.Mutation{
		Op:        model.MutationUpsert,
		Kind:      model.EntityProject,
		EntityID:  project.ID,
		ProjectID: project.ID,
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist project: %w", err)
	}

	store := graph.NewStore(project, s.ceiling, s.factory, s.sink)
	root := &model.CanvasNode{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		NodeType:  model.NodeTypeRoot,
		Title:     name,
	}
	if err := store.AddNode(ctx, root, ""); err != nil {
		store.Close()
		return nil, err
	}
	// The sequence id is a global autoincrement key, so the row goes to the
	// database first to get one assigned, then the store adopts it. The
	// upsert the store emits replays the same row.
	mainSeq := &model.Sequence{
		ProjectID:      project.ID,
		Name:           DefaultSequenceName,
		TargetDuration: targetDuration,
	}
	if err := s.bridge.DB().WithContext(ctx).Create(mainSeq).Error; err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create default sequence: %w", err)
	}
	if err := store.AddSequence(mainSeq); err != nil {
		store.Close()
		return nil, err
	}

	s.mu.Lock()
	s.open[project.ID] = store
	s.mu.Unlock()
	return store, nil
}

// Open loads a cold project aggregate from persistence into a live store.
// Opening an already open project returns the existing store.
func (s *ProjectService) Open(ctx context.Context, projectID string) (*graph.Store, error) {
	s.mu.Lock()
	if store, ok := s.open[projectID]; ok {
		s.mu.Unlock()
		return store, nil
	}
	s.mu.Unlock()

	project, err := s.bridge.LoadProject(ctx, projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", projectID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Open may have raced us here; keep the first store.
	if store, ok := s.open[projectID]; ok {
		return store, nil
	}
	store := graph.NewStore(project, s.ceiling, s.factory, s.sink)
	s.open[projectID] = store
	return store, nil
}

// Get returns the open store for a project, or ErrProjectNotFound when the
// project is not open.
func (s *ProjectService) Get(projectID string) (*graph.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.open[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return store, nil
}

// List returns every persisted project row, newest first.
func (s *ProjectService) List(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := s.bridge.DB().WithContext(ctx).Order("updated_at DESC").Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("project listing failed: %w", err)
	}
	return projects, nil
}

// CloseProject releases an open project's runtime resources. The persisted
// rows stay.
func (s *ProjectService) CloseProject(projectID string) {
	s.mu.Lock()
	store, ok := s.open[projectID]
	delete(s.open, projectID)
	s.mu.Unlock()
	if ok {
		store.Close()
	}
}

// Delete closes the project if open and removes it from persistence,
// cascading through its graph. The delete goes through the shared sink, not
// straight to the bridge: node and sequence upserts for this project may
// still sit in the queue, and replaying one of those after the project row
// is gone would fail on the missing parent. FIFO through the queue keeps
// the delete behind everything the project wrote before it.
func (s *ProjectService) Delete(ctx context.Context, projectID string) error {
	s.CloseProject(projectID)
	s.sink.Enqueue(model.Mutation{
		Op:        model.MutationDelete,
		Kind:      model.EntityProject,
		EntityID:  projectID,
		ProjectID: projectID,
	})
	return nil
}

// CloseAll tears down every open store. Used at shutdown.
func (s *ProjectService) CloseAll() {
	s.mu.Lock()
	stores := make([]*graph.Store, 0, len(s.open))
	for id, store := range s.open {
		stores = append(stores, store)
		delete(s.open, id)
	}
	s.mu.Unlock()
	for _, store := range stores {
		store.Close()
	}
}

func marshalMutationPayload(v interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mutation payload: %w", err)
	}
	return payload, nil
}
