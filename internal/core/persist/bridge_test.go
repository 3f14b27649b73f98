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

// Package persist_test contains tests for the SQLite bridge: idempotent
// replay, cascading deletes matching the in-memory rules, and aggregate
// reload.
package persist_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/persist"
)

func openTestBridge(t *testing.T) *persist.SQLiteBridge {
	t.Helper()
	bridge, err := persist.Open(filepath.Join(t.TempDir(), "composer.db"))
	require.NoError(t, err)
	return bridge
}

func upsert(t *testing.T, seq uint64, kind, entityID, projectID string, payload interface{}) model.Mutation {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return model.Mutation{Seq: seq, Op: model.MutationUpsert, Kind: kind, EntityID: entityID, ProjectID: projectID, Payload: body}
}

// TestUpsertReplayIdempotent verifies that applying the same upsert
// mutation twice yields the same persisted state as applying it once.
func TestUpsertReplayIdempotent(t *testing.T) {
	bridge := openTestBridge(t)
	ctx := context.Background()

	project := model.Project{ID: "p1", Name: "pilot cut", TargetDuration: 20}
	m1 := upsert(t, 1, model.EntityProject, "p1", "p1", &project)
	require.NoError(t, bridge.Apply(ctx, m1))

	node := model.CanvasNode{ID: "n1", ProjectID: "p1", NodeType: model.NodeTypeClip, Title: "opening hook"}
	m2 := upsert(t, 2, model.EntityNode, "n1", "p1", &node)
	require.NoError(t, bridge.Apply(ctx, m2))
	// Replay.
	require.NoError(t, bridge.Apply(ctx, m2))

	var count int64
	require.NoError(t, bridge.DB().Model(&model.CanvasNode{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var got model.CanvasNode
	require.NoError(t, bridge.DB().First(&got, "id = ?", "n1").Error)
	assert.Equal(t, "opening hook", got.Title)
}

// TestUpsertOverwrites verifies that a later upsert for the same key
// replaces the stored row.
func TestUpsertOverwrites(t *testing.T) {
	bridge := openTestBridge(t)
	ctx := context.Background()

	require.NoError(t, bridge.Apply(ctx, upsert(t, 1, model.EntityProject, "p1", "p1",
		&model.Project{ID: "p1", Name: "pilot cut"})))

	node := model.CanvasNode{ID: "n1", ProjectID: "p1", Title: "before"}
	require.NoError(t, bridge.Apply(ctx, upsert(t, 2, model.EntityNode, "n1", "p1", &node)))
	node.Title = "after"
	require.NoError(t, bridge.Apply(ctx, upsert(t, 3, model.EntityNode, "n1", "p1", &node)))

	var got model.CanvasNode
	require.NoError(t, bridge.DB().First(&got, "id = ?", "n1").Error)
	assert.Equal(t, "after", got.Title)
}

// TestDeleteNodeCascades verifies that node deletion takes child nodes,
// touching edges, and referencing sequence items, mirroring the in-memory
// cascade rules.
func TestDeleteNodeCascades(t *testing.T) {
	bridge := openTestBridge(t)
	ctx := context.Background()

	require.NoError(t, bridge.Apply(ctx, upsert(t, 1, model.EntityProject, "p1", "p1",
		&model.Project{ID: "p1", Name: "pilot cut"})))

	parentA := "n1"
	nodes := []model.CanvasNode{
		{ID: "n1", ProjectID: "p1"},
		{ID: "n2", ProjectID: "p1", ParentID: &parentA},
		{ID: "n3", ProjectID: "p1"},
	}
	for i, n := range nodes {
		require.NoError(t, bridge.Apply(ctx, upsert(t, uint64(2+i), model.EntityNode, n.ID, "p1", &n)))
	}
	require.NoError(t, bridge.Apply(ctx, upsert(t, 5, model.EntityEdge, "e1", "p1",
		&model.CanvasEdge{ID: "e1", ProjectID: "p1", SourceID: "n1", TargetID: "n3"})))
	require.NoError(t, bridge.Apply(ctx, upsert(t, 6, model.EntitySequence, "1", "p1",
		&model.Sequence{ID: 1, ProjectID: "p1", Name: "main", Items: []model.SequenceItem{
			{ID: 1, NodeID: "n1", TrimEnd: 2.0, PlaybackRate: 1.0, OrderIndex: 0},
			{ID: 2, NodeID: "n3", TrimEnd: 3.0, PlaybackRate: 1.0, OrderIndex: 1},
		}})))

	del := model.Mutation{Seq: 7, Op: model.MutationDelete, Kind: model.EntityNode, EntityID: "n1", ProjectID: "p1"}
	require.NoError(t, bridge.Apply(ctx, del))
	// Replaying the delete is a no-op, not an error.
	require.NoError(t, bridge.Apply(ctx, del))

	var nodeCount, edgeCount, itemCount int64
	require.NoError(t, bridge.DB().Model(&model.CanvasNode{}).Count(&nodeCount).Error)
	require.NoError(t, bridge.DB().Model(&model.CanvasEdge{}).Count(&edgeCount).Error)
	require.NoError(t, bridge.DB().Model(&model.SequenceItem{}).Count(&itemCount).Error)
	assert.Equal(t, int64(1), nodeCount) // n3 survives; n2 went with its parent
	assert.Equal(t, int64(0), edgeCount)
	assert.Equal(t, int64(1), itemCount)
}

// TestLoadProjectAggregate verifies the full aggregate reload used when a
// project is opened into a graph store.
func TestLoadProjectAggregate(t *testing.T) {
	bridge := openTestBridge(t)
	ctx := context.Background()

	require.NoError(t, bridge.Apply(ctx, upsert(t, 1, model.EntityProject, "p1", "p1",
		&model.Project{ID: "p1", Name: "pilot cut", TargetDuration: 20})))
	require.NoError(t, bridge.Apply(ctx, upsert(t, 2, model.EntityNode, "n1", "p1",
		&model.CanvasNode{ID: "n1", ProjectID: "p1", NodeType: model.NodeTypeRoot})))
	require.NoError(t, bridge.Apply(ctx, upsert(t, 3, model.EntityNode, "n2", "p1",
		&model.CanvasNode{ID: "n2", ProjectID: "p1", NodeType: model.NodeTypeClip})))
	require.NoError(t, bridge.Apply(ctx, upsert(t, 4, model.EntityEdge, "e1", "p1",
		&model.CanvasEdge{ID: "e1", ProjectID: "p1", SourceID: "n1", TargetID: "n2"})))
	require.NoError(t, bridge.Apply(ctx, upsert(t, 5, model.EntitySequence, "1", "p1",
		&model.Sequence{ID: 1, ProjectID: "p1", Name: "main", Items: []model.SequenceItem{
			{ID: 1, NodeID: "n2", TrimEnd: 2.5, PlaybackRate: 1.0},
		}})))

	project, err := bridge.LoadProject(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, project.Nodes, 2)
	assert.Len(t, project.Edges, 1)
	require.Len(t, project.Sequences, 1)
	assert.Len(t, project.Sequences[0].Items, 1)
}
