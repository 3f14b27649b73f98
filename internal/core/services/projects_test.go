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

package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/graph"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/persist"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/services"
)

// syncSink applies mutations straight through the bridge so the tests see
// persisted rows without a background queue.
type syncSink struct {
	bridge *persist.SQLiteBridge
}

func (s *syncSink) Enqueue(m model.Mutation) {
	_ = s.bridge.Apply(context.Background(), m)
}

func newProjectService(t *testing.T) (*services.ProjectService, *persist.SQLiteBridge) {
	t.Helper()
	bridge := openBridge(t)
	svc := services.NewProjectService(bridge, &syncSink{bridge: bridge}, nil, graph.DefaultNodeCeiling)
	return svc, bridge
}

// TestCreateProjectSeedsRootAndSequence verifies a new project opens with a
// root node and the default sequence, all persisted.
func TestCreateProjectSeedsRootAndSequence(t *testing.T) {
	svc, bridge := newProjectService(t)
	defer svc.CloseAll()

	store, err := svc.Create(context.Background(), "pilot cut", "first assembly", "court intrigue", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.NodeCount())

	var project model.Project
	require.NoError(t, bridge.DB().First(&project, "id = ?", store.ProjectID()).Error)
	assert.Equal(t, "pilot cut", project.Name)
	assert.Equal(t, services.DefaultTargetDuration, project.TargetDuration)

	var nodes []model.CanvasNode
	require.NoError(t, bridge.DB().Where("project_id = ?", store.ProjectID()).Find(&nodes).Error)
	require.Len(t, nodes, 1)
	assert.Equal(t, model.NodeTypeRoot, nodes[0].NodeType)

	var sequences []model.Sequence
	require.NoError(t, bridge.DB().Where("project_id = ?", store.ProjectID()).Find(&sequences).Error)
	require.Len(t, sequences, 1)
	assert.Equal(t, services.DefaultSequenceName, sequences[0].Name)
}

// TestOpenRoundTrip verifies closing a project and reopening it restores
// the graph from persistence.
func TestOpenRoundTrip(t *testing.T) {
	svc, _ := newProjectService(t)
	defer svc.CloseAll()
	ctx := context.Background()

	store, err := svc.Create(ctx, "pilot cut", "", "", 20)
	require.NoError(t, err)
	projectID := store.ProjectID()

	clip := &model.CanvasNode{ID: "n-clip", ProjectID: projectID, NodeType: model.NodeTypeClip, Title: "opening"}
	require.NoError(t, store.AddNode(ctx, clip, ""))

	svc.CloseProject(projectID)
	_, err = svc.Get(projectID)
	assert.ErrorIs(t, err, services.ErrProjectNotFound)

	reopened, err := svc.Open(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.NodeCount())

	snap := reopened.Snapshot()
	require.Len(t, snap.Sequences, 1)
	assert.Equal(t, services.DefaultSequenceName, snap.Sequences[0].Name)
}

// TestOpenIsIdempotent verifies a second Open returns the same live store.
func TestOpenIsIdempotent(t *testing.T) {
	svc, _ := newProjectService(t)
	defer svc.CloseAll()
	ctx := context.Background()

	store, err := svc.Create(ctx, "pilot cut", "", "", 20)
	require.NoError(t, err)

	again, err := svc.Open(ctx, store.ProjectID())
	require.NoError(t, err)
	assert.Same(t, store, again)
}

// TestOpenUnknownProject verifies the not-found error.
func TestOpenUnknownProject(t *testing.T) {
	svc, _ := newProjectService(t)
	defer svc.CloseAll()

	_, err := svc.Open(context.Background(), "no-such-project")
	assert.ErrorIs(t, err, services.ErrProjectNotFound)
}

// TestDeleteProjectCascades verifies deletion removes the graph rows.
func TestDeleteProjectCascades(t *testing.T) {
	svc, bridge := newProjectService(t)
	defer svc.CloseAll()
	ctx := context.Background()

	store, err := svc.Create(ctx, "pilot cut", "", "", 20)
	require.NoError(t, err)
	projectID := store.ProjectID()

	require.NoError(t, svc.Delete(ctx, projectID))

	var count int64
	require.NoError(t, bridge.DB().Model(&model.Project{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, bridge.DB().Model(&model.CanvasNode{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, bridge.DB().Model(&model.Sequence{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

// TestDeleteOrderedBehindQueuedWrites verifies that deleting a project
// while its node upserts still sit in the write queue sequences the delete
// behind them: the flush ends with an empty database and no mutation has to
// burn retries against a missing parent row.
func TestDeleteOrderedBehindQueuedWrites(t *testing.T) {
	bridge := openBridge(t)

	var unsavedMu sync.Mutex
	var unsaved []model.Mutation
	queue := persist.NewWriteQueue(bridge, 2, time.Millisecond, func(m model.Mutation, err error) {
		unsavedMu.Lock()
		unsaved = append(unsaved, m)
		unsavedMu.Unlock()
	})
	defer queue.Close()

	svc := services.NewProjectService(bridge, queue, nil, graph.DefaultNodeCeiling)
	defer svc.CloseAll()
	ctx := context.Background()

	store, err := svc.Create(ctx, "pilot cut", "", "", 20)
	require.NoError(t, err)
	projectID := store.ProjectID()

	// Pile up node writes, then delete before the queue can drain them.
	for i := 0; i < 25; i++ {
		n := &model.CanvasNode{ID: fmt.Sprintf("n-%02d", i), ProjectID: projectID, NodeType: model.NodeTypeClip}
		require.NoError(t, store.AddNode(ctx, n, ""))
	}
	require.NoError(t, svc.Delete(ctx, projectID))

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, queue.Flush(flushCtx))

	unsavedMu.Lock()
	assert.Empty(t, unsaved)
	unsavedMu.Unlock()

	var count int64
	require.NoError(t, bridge.DB().Model(&model.Project{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, bridge.DB().Model(&model.CanvasNode{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
