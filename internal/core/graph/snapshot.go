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

// This file implements the store's read side: an atomic deep-copy snapshot
// of {project, nodes, edges, sequences} for the UI read model and the
// neighborhood builder backing scorer invocations. A snapshot is taken under
// the store lock in one step, so a reader is never handed a half-mutated
// graph; afterwards the copy is the reader's own and needs no locking.
package graph

import (
	"fmt"
	"sort"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// Snapshot is a self-contained copy of a project graph at one instant.
type Snapshot struct {
	Project   model.Project      `json:"project"`
	Nodes     []model.CanvasNode `json:"nodes"`
	Edges     []model.CanvasEdge `json:"edges"`
	Sequences []model.Sequence   `json:"sequences"`
}

// Snapshot returns an atomic deep copy of the current graph. Nodes sort by
// insertion order, edges and sequences by id, so repeated snapshots of an
// unchanged graph are byte-identical.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Project: s.project}

	snap.Nodes = make([]model.CanvasNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, *n)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool {
		return s.insertSeq[snap.Nodes[i].ID] < s.insertSeq[snap.Nodes[j].ID]
	})

	snap.Edges = make([]model.CanvasEdge, 0, len(s.edges))
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, *e)
	}
	sort.Slice(snap.Edges, func(i, j int) bool { return snap.Edges[i].ID < snap.Edges[j].ID })

	snap.Sequences = make([]model.Sequence, 0, len(s.sequences))
	for _, seq := range s.sequences {
		snap.Sequences = append(snap.Sequences, copySequence(seq))
	}
	sort.Slice(snap.Sequences, func(i, j int) bool { return snap.Sequences[i].ID < snap.Sequences[j].ID })

	return snap
}

// TagResolver maps a line id to its tag definition ids. The store does not
// read the line library itself; the service layer supplies a resolver
// backed by it.
type TagResolver func(lineID string) []string

// NeighborhoodOf assembles the scorer input for a target node: the node's
// own tags as the anchor set plus the tags of every node connected within
// radius hops, each marked with the direction of its connecting edge
// relative to the target. The graph walk happens under the lock; the
// resolver may hit the line library or the database, so it runs only after
// the lock is released and never stalls graph mutations.
func (s *Store) NeighborhoodOf(nodeID string, radius int, resolve TagResolver) (model.Neighborhood, error) {
	type pendingNeighbor struct {
		nodeID   string
		lineID   string
		incoming bool
	}

	s.mu.Lock()

	node, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return model.Neighborhood{}, &StructuralError{Op: "neighborhoodOf", Detail: fmt.Sprintf("node %q is not tracked", nodeID)}
	}
	if radius < 1 {
		radius = 1
	}

	var anchorLineID string
	if node.LineID != nil {
		anchorLineID = *node.LineID
	}

	// Breadth-first over edges in both directions. Incoming is recorded
	// relative to the target node: a neighbor whose frontier edge pointed
	// toward the target reads neighbor-then-target in narrative order.
	type frontierEntry struct {
		id       string
		incoming bool
	}
	visited := map[string]bool{nodeID: true}
	frontier := []frontierEntry{{id: nodeID}}
	var found []pendingNeighbor

	for depth := 1; depth <= radius && len(frontier) > 0; depth++ {
		var next []frontierEntry
		for _, f := range frontier {
			for _, e := range s.edges {
				var neighborID string
				var incoming bool
				switch f.id {
				case e.TargetID:
					neighborID, incoming = e.SourceID, true
				case e.SourceID:
					neighborID, incoming = e.TargetID, false
				default:
					continue
				}
				if visited[neighborID] {
					continue
				}
				visited[neighborID] = true
				next = append(next, frontierEntry{id: neighborID, incoming: incoming})

				neighbor := s.nodes[neighborID]
				if neighbor == nil || neighbor.LineID == nil {
					continue
				}
				found = append(found, pendingNeighbor{nodeID: neighborID, lineID: *neighbor.LineID, incoming: incoming})
			}
		}
		frontier = next
	}
	s.mu.Unlock()

	hood := model.Neighborhood{NodeID: nodeID}
	if anchorLineID != "" {
		hood.AnchorTags = resolve(anchorLineID)
	}
	for _, p := range found {
		hood.Neighbors = append(hood.Neighbors, model.NeighborTags{
			NodeID:   p.nodeID,
			Incoming: p.incoming,
			Tags:     resolve(p.lineID),
		})
	}

	sort.Slice(hood.Neighbors, func(i, j int) bool { return hood.Neighbors[i].NodeID < hood.Neighbors[j].NodeID })
	return hood, nil
}

// copySequence deep-copies a sequence including its items.
func copySequence(seq *model.Sequence) model.Sequence {
	out := *seq
	out.Items = make([]model.SequenceItem, len(seq.Items))
	copy(out.Items, seq.Items)
	return out
}
