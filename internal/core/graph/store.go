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

// Package graph owns the live in-memory representation of one project: the
// node tree, the narrative edges, and the playback sequences. It enforces
// the hard node-count ceiling with FIFO-except-active eviction, guarantees
// that every thumbnail handle a node ever held is released exactly once on
// every path that stops tracking the node, and emits an ordered mutation
// stream for the persistence bridge.
//
// Concurrency: a single mutex serializes all mutations (single logical
// writer per project). Readers take the same mutex only long enough to
// deep-copy a snapshot, so scorer calls and persistence flushes always see
// a complete, untorn graph. Thumbnail acquisition is the only suspending
// operation; it runs on its own goroutine and re-checks node liveness under
// the lock before attaching, draining and releasing the handle if the node
// disappeared while the fetch was in flight.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/media"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
)

// DefaultNodeCeiling bounds a project graph when no ceiling is configured.
const DefaultNodeCeiling = 500

// MutationSink receives the store's ordered mutation stream. Enqueue must
// not call back into the store.
type MutationSink interface {
	Enqueue(m model.Mutation)
}

// Store is the live graph of one project. All exported methods are safe for
// concurrent use; mutating methods serialize on one internal lock.
type Store struct {
	mu sync.Mutex

	project   model.Project
	nodes     map[string]*model.CanvasNode
	edges     map[string]*model.CanvasEdge
	sequences map[uint]*model.Sequence

	// Runtime state, never persisted.
	handles      map[string]*media.Handle
	mediaPaths   map[string]string // node id -> source clip, kept for lazy re-acquisition
	fetching     map[string]bool   // node ids with a fetch in flight
	insertSeq    map[string]uint64 // node id -> insertion order, drives FIFO eviction
	nextInsert   uint64
	activeNodeID string
	closed       bool

	ceiling     int
	factory     media.HandleFactory
	sink        MutationSink
	mutationSeq uint64

	// Thumbnail fetches outlive the request that triggered them, so they
	// run under the store's own context rather than the caller's.
	fetchCtx    context.Context
	fetchCancel context.CancelFunc
	pending     sync.WaitGroup // in-flight thumbnail fetches
}

// NewStore creates a store for the given project. Nodes, edges, and
// sequences already present on the project (loaded from persistence) are
// adopted in their stored order and sanitized: a node whose parent is not
// in the aggregate is detached, and a graph over the ceiling is trimmed by
// the usual eviction policy. factory may be nil when the environment has no
// media library; sink may be nil to run without persistence.
func NewStore(project model.Project, ceiling int, factory media.HandleFactory, sink MutationSink) *Store {
	if ceiling <= 0 {
		ceiling = DefaultNodeCeiling
	}
	fetchCtx, fetchCancel := context.WithCancel(context.Background())
	s := &Store{
		project:     project,
		nodes:       make(map[string]*model.CanvasNode),
		edges:       make(map[string]*model.CanvasEdge),
		sequences:   make(map[uint]*model.Sequence),
		handles:     make(map[string]*media.Handle),
		mediaPaths:  make(map[string]string),
		fetching:    make(map[string]bool),
		insertSeq:   make(map[string]uint64),
		ceiling:     ceiling,
		factory:     factory,
		sink:        sink,
		fetchCtx:    fetchCtx,
		fetchCancel: fetchCancel,
	}
	for i := range project.Nodes {
		n := project.Nodes[i]
		s.nodes[n.ID] = &n
		s.nextInsert++
		s.insertSeq[n.ID] = s.nextInsert
	}
	for i := range project.Edges {
		e := project.Edges[i]
		s.edges[e.ID] = &e
	}
	for i := range project.Sequences {
		seq := project.Sequences[i]
		s.sequences[seq.ID] = &seq
	}
	s.project.Nodes = nil
	s.project.Edges = nil
	s.project.Sequences = nil

	// Stored rows are not trusted: a dangling parent reference would break
	// every ancestor walk, so detach it and persist the repair.
	for _, n := range s.nodes {
		if n.ParentID == nil {
			continue
		}
		if _, ok := s.nodes[*n.ParentID]; !ok {
			slog.Warn("detaching node with missing parent",
				"project_id", s.project.ID, "node_id", n.ID, "parent_id", *n.ParentID)
			n.ParentID = nil
			s.emitUpsertLocked(model.EntityNode, n.ID, n)
		}
	}
	if len(s.nodes) > s.ceiling {
		if _, err := s.evictListLocked(0); err != nil {
			slog.Warn("adopted graph exceeds ceiling with nothing evictable",
				"project_id", s.project.ID, "ceiling", s.ceiling, "count", len(s.nodes))
		}
	}
	return s
}

// ProjectID returns the id of the project this store owns.
func (s *Store) ProjectID() string {
	return s.project.ID
}

// AddNode validates capacity and structure, adopts the node, and, when
// mediaPath is non-empty, starts an asynchronous thumbnail acquisition. A
// media failure never blocks or fails the structural mutation: the node
// simply stays without a handle and is retried lazily on next access.
func (s *Store) AddNode(ctx context.Context, node *model.CanvasNode, mediaPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StructuralError{Op: "addNode", Detail: "store is closed"}
	}
	if node.ProjectID != s.project.ID {
		return &StructuralError{Op: "addNode", Detail: fmt.Sprintf("node belongs to project %q, store owns %q", node.ProjectID, s.project.ID)}
	}
	if _, exists := s.nodes[node.ID]; exists {
		return &StructuralError{Op: "addNode", Detail: fmt.Sprintf("node %q already exists", node.ID)}
	}
	if node.ParentID != nil {
		if _, ok := s.nodes[*node.ParentID]; !ok {
			return &StructuralError{Op: "addNode", Detail: fmt.Sprintf("parent node %q is not tracked", *node.ParentID)}
		}
	}

	if err := s.evictToCapacityLocked(1); err != nil {
		return err
	}

	stored := *node
	s.nodes[stored.ID] = &stored
	s.nextInsert++
	s.insertSeq[stored.ID] = s.nextInsert
	s.emitUpsertLocked(model.EntityNode, stored.ID, &stored)

	if mediaPath != "" && s.factory != nil {
		s.mediaPaths[stored.ID] = mediaPath
		s.fetchThumbnailLocked(stored.ID, mediaPath)
	}
	return nil
}

// RemoveNode deletes a node and cascades: child nodes (recursively), edges
// touching any removed node, and sequence items referencing one. Every
// removed node's handle is released.
func (s *Store) RemoveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return &StructuralError{Op: "removeNode", Detail: fmt.Sprintf("node %q is not tracked", id)}
	}
	s.removeSubtreeLocked(id)
	return nil
}

// NodePatch carries the mutable fields of updateNode. Nil pointers leave
// the field untouched; ClearParent detaches the node from its parent.
type NodePatch struct {
	ParentID    *string
	ClearParent bool

	Title   *string
	Content *string
	PosX    *float64
	PosY    *float64
	Width   *float64
	Height  *float64
	ZIndex  *int

	TrimStart *float64
	TrimEnd   *float64
	Volume    *float64

	LineID                *string
	AssociationSource     *string
	AssociationConfidence *float64
}

// UpdateNode applies a patch to a tracked node. A parent change that would
// introduce a cycle in the node tree is refused with a StructuralError and
// the node is left exactly as it was.
func (s *Store) UpdateNode(id string, patch NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return &StructuralError{Op: "updateNode", Detail: fmt.Sprintf("node %q is not tracked", id)}
	}

	// Validate the structural part before touching anything.
	if patch.ParentID != nil && !patch.ClearParent {
		newParent := *patch.ParentID
		if newParent == id {
			return &StructuralError{Op: "updateNode", Detail: "node cannot be its own parent"}
		}
		if _, ok := s.nodes[newParent]; !ok {
			return &StructuralError{Op: "updateNode", Detail: fmt.Sprintf("parent node %q is not tracked", newParent)}
		}
		// Walk up from the proposed parent; reaching the node itself means
		// the change closes a cycle.
		for cursor := newParent; cursor != ""; {
			if cursor == id {
				return &StructuralError{Op: "updateNode", Detail: fmt.Sprintf("parent %q is a descendant of node %q", newParent, id)}
			}
			n := s.nodes[cursor]
			if n == nil || n.ParentID == nil {
				break
			}
			cursor = *n.ParentID
		}
	}

	if patch.ClearParent {
		node.ParentID = nil
	} else if patch.ParentID != nil {
		parent := *patch.ParentID
		node.ParentID = &parent
	}
	if patch.Title != nil {
		node.Title = *patch.Title
	}
	if patch.Content != nil {
		node.Content = *patch.Content
	}
	if patch.PosX != nil {
		node.PosX = *patch.PosX
	}
	if patch.PosY != nil {
		node.PosY = *patch.PosY
	}
	if patch.Width != nil {
		node.Width = *patch.Width
	}
	if patch.Height != nil {
		node.Height = *patch.Height
	}
	if patch.ZIndex != nil {
		node.ZIndex = *patch.ZIndex
	}
	if patch.TrimStart != nil {
		node.TrimStart = *patch.TrimStart
	}
	if patch.TrimEnd != nil {
		node.TrimEnd = *patch.TrimEnd
	}
	if patch.Volume != nil {
		node.Volume = *patch.Volume
	}
	if patch.LineID != nil {
		lineID := *patch.LineID
		if lineID == "" {
			node.LineID = nil
			node.AssociationSource = ""
			node.AssociationConfidence = 0
		} else {
			node.LineID = &lineID
		}
	}
	if patch.AssociationSource != nil {
		node.AssociationSource = *patch.AssociationSource
	}
	if patch.AssociationConfidence != nil {
		node.AssociationConfidence = *patch.AssociationConfidence
	}

	s.emitUpsertLocked(model.EntityNode, node.ID, node)
	return nil
}

// AddEdge validates and adds a narrative edge. Self-loops and endpoints the
// store does not track are refused.
func (s *Store) AddEdge(edge *model.CanvasEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edge.ProjectID != s.project.ID {
		return &StructuralError{Op: "addEdge", Detail: fmt.Sprintf("edge belongs to project %q, store owns %q", edge.ProjectID, s.project.ID)}
	}
	if edge.SourceID == edge.TargetID {
		return &StructuralError{Op: "addEdge", Detail: "edge source and target are the same node"}
	}
	if _, ok := s.nodes[edge.SourceID]; !ok {
		return &StructuralError{Op: "addEdge", Detail: fmt.Sprintf("source node %q is not tracked", edge.SourceID)}
	}
	if _, ok := s.nodes[edge.TargetID]; !ok {
		return &StructuralError{Op: "addEdge", Detail: fmt.Sprintf("target node %q is not tracked", edge.TargetID)}
	}
	if _, exists := s.edges[edge.ID]; exists {
		return &StructuralError{Op: "addEdge", Detail: fmt.Sprintf("edge %q already exists", edge.ID)}
	}

	stored := *edge
	s.edges[stored.ID] = &stored
	s.emitUpsertLocked(model.EntityEdge, stored.ID, &stored)
	return nil
}

// RemoveEdge deletes an edge by id.
func (s *Store) RemoveEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return &StructuralError{Op: "removeEdge", Detail: fmt.Sprintf("edge %q is not tracked", id)}
	}
	delete(s.edges, id)
	s.emitDeleteLocked(model.EntityEdge, id)
	return nil
}

// ProjectPatch carries the mutable fields of updateProject. Nil pointers
// leave the field untouched.
type ProjectPatch struct {
	Name           *string
	Description    *string
	Theme          *string
	Style          *string
	ViewportX      *float64
	ViewportY      *float64
	ViewportZoom   *float64
	TargetDuration *float64
}

// UpdateProject applies a patch to the project row itself, typically the
// viewport state saved on every pan or zoom.
func (s *Store) UpdateProject(patch ProjectPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StructuralError{Op: "updateProject", Detail: "store is closed"}
	}
	if patch.Name != nil {
		s.project.Name = *patch.Name
	}
	if patch.Description != nil {
		s.project.Description = *patch.Description
	}
	if patch.Theme != nil {
		s.project.Theme = *patch.Theme
	}
	if patch.Style != nil {
		s.project.Style = *patch.Style
	}
	if patch.ViewportX != nil {
		s.project.ViewportX = *patch.ViewportX
	}
	if patch.ViewportY != nil {
		s.project.ViewportY = *patch.ViewportY
	}
	if patch.ViewportZoom != nil {
		s.project.ViewportZoom = *patch.ViewportZoom
	}
	if patch.TargetDuration != nil {
		s.project.TargetDuration = *patch.TargetDuration
	}
	s.emitUpsertLocked(model.EntityProject, s.project.ID, &s.project)
	return nil
}

// AddSequence adopts a new, empty sequence.
func (s *Store) AddSequence(seq *model.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq.ProjectID != s.project.ID {
		return &StructuralError{Op: "addSequence", Detail: fmt.Sprintf("sequence belongs to project %q, store owns %q", seq.ProjectID, s.project.ID)}
	}
	if _, exists := s.sequences[seq.ID]; exists {
		return &StructuralError{Op: "addSequence", Detail: fmt.Sprintf("sequence %d already exists", seq.ID)}
	}
	stored := *seq
	s.sequences[stored.ID] = &stored
	s.emitUpsertLocked(model.EntitySequence, fmt.Sprint(stored.ID), &stored)
	return nil
}

// InsertSequenceItem places a node on a sequence timeline at the given
// position (clamped to the item count) and renumbers the sequence dense.
func (s *Store) InsertSequenceItem(sequenceID uint, item model.SequenceItem, at int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[sequenceID]
	if !ok {
		return &StructuralError{Op: "insertSequenceItem", Detail: fmt.Sprintf("sequence %d is not tracked", sequenceID)}
	}
	if _, ok := s.nodes[item.NodeID]; !ok {
		return &StructuralError{Op: "insertSequenceItem", Detail: fmt.Sprintf("node %q is not tracked", item.NodeID)}
	}

	if at < 0 {
		at = 0
	}
	if at > len(seq.Items) {
		at = len(seq.Items)
	}
	item.SequenceID = sequenceID
	seq.Items = append(seq.Items, model.SequenceItem{})
	copy(seq.Items[at+1:], seq.Items[at:])
	seq.Items[at] = item

	s.materializeLocked(seq)
	return nil
}

// RemoveSequenceItem removes one timeline placement and renumbers.
func (s *Store) RemoveSequenceItem(sequenceID uint, itemID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[sequenceID]
	if !ok {
		return &StructuralError{Op: "removeSequenceItem", Detail: fmt.Sprintf("sequence %d is not tracked", sequenceID)}
	}
	idx := -1
	for i := range seq.Items {
		if seq.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &StructuralError{Op: "removeSequenceItem", Detail: fmt.Sprintf("item %d is not in sequence %d", itemID, sequenceID)}
	}
	s.emitDeleteLocked(model.EntitySequenceItem, fmt.Sprint(itemID))
	seq.Items = append(seq.Items[:idx], seq.Items[idx+1:]...)

	s.materializeLocked(seq)
	return nil
}

// MoveSequenceItem shifts one timeline placement to a new position (clamped
// to the item count) and renumbers the sequence dense.
func (s *Store) MoveSequenceItem(sequenceID uint, itemID uint, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[sequenceID]
	if !ok {
		return &StructuralError{Op: "moveSequenceItem", Detail: fmt.Sprintf("sequence %d is not tracked", sequenceID)}
	}
	idx := -1
	for i := range seq.Items {
		if seq.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &StructuralError{Op: "moveSequenceItem", Detail: fmt.Sprintf("item %d is not in sequence %d", itemID, sequenceID)}
	}
	if to < 0 {
		to = 0
	}
	if to > len(seq.Items)-1 {
		to = len(seq.Items) - 1
	}
	item := seq.Items[idx]
	seq.Items = append(seq.Items[:idx], seq.Items[idx+1:]...)
	seq.Items = append(seq.Items, model.SequenceItem{})
	copy(seq.Items[to+1:], seq.Items[to:])
	seq.Items[to] = item

	s.materializeLocked(seq)
	return nil
}

// MaterializeSequence recomputes a sequence's item ordering as a dense
// 0..n-1 permutation and its total duration as the sum of each item's
// effective play length.
func (s *Store) MaterializeSequence(sequenceID uint) (model.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[sequenceID]
	if !ok {
		return model.Sequence{}, &StructuralError{Op: "materializeSequence", Detail: fmt.Sprintf("sequence %d is not tracked", sequenceID)}
	}
	s.materializeLocked(seq)
	return copySequence(seq), nil
}

// SetActiveNode pins the node currently open in the inspector; the pinned
// node is exempt from capacity eviction. An empty id clears the pin.
func (s *Store) SetActiveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.nodes[id]; !ok {
			return &StructuralError{Op: "setActiveNode", Detail: fmt.Sprintf("node %q is not tracked", id)}
		}
	}
	s.activeNodeID = id
	return nil
}

// EvictToCapacity evicts oldest-inserted, non-exempt nodes until the node
// count is at or below the ceiling. Returns the evicted node ids in
// eviction order.
func (s *Store) EvictToCapacity() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictListLocked(0)
}

// NodeCount returns the number of tracked nodes.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Handle returns the thumbnail handle currently bound to a node, or nil.
// A node whose acquisition failed earlier still remembers its clip path;
// asking for its handle starts a fresh acquisition in the background, so a
// transient media failure heals on a later access.
func (s *Store) Handle(nodeID string) *media.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.handles[nodeID]; h != nil {
		return h
	}
	if s.closed || s.factory == nil || s.fetching[nodeID] {
		return nil
	}
	if path, ok := s.mediaPaths[nodeID]; ok {
		if _, alive := s.nodes[nodeID]; alive {
			s.fetchThumbnailLocked(nodeID, path)
		}
	}
	return nil
}

// Close tears the store down: it stops accepting mutations, waits for any
// in-flight thumbnail fetches to drain, and releases every handle. After
// Close returns, every handle the store ever attached has been released
// exactly once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// In-flight fetches observe closed under the lock and release their
	// own results; canceling their context and waiting here guarantees
	// none outlive the store.
	s.fetchCancel()
	s.pending.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		h.Release()
		delete(s.handles, id)
	}
}

// --- internal ---

// fetchThumbnailLocked starts the asynchronous thumbnail acquisition for a
// node. Caller holds the lock. The fetch runs under the store's own context
// so it survives the request that triggered it. The goroutine re-checks
// liveness before attaching: if the node was removed or the store closed
// while the fetch was in flight, the result is drained and released, never
// leaked.
func (s *Store) fetchThumbnailLocked(nodeID, mediaPath string) {
	s.fetching[nodeID] = true
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		handle, err := s.factory.Acquire(s.fetchCtx, mediaPath)

		s.mu.Lock()
		delete(s.fetching, nodeID)
		if err != nil {
			s.mu.Unlock()
			slog.Warn("thumbnail acquisition failed",
				"project_id", s.project.ID, "node_id", nodeID, "error", err)
			return
		}
		_, alive := s.nodes[nodeID]
		if !alive || s.closed {
			s.mu.Unlock()
			handle.Release()
			return
		}
		if prev := s.handles[nodeID]; prev != nil {
			prev.Release()
		}
		s.handles[nodeID] = handle
		s.mu.Unlock()
	}()
}

// removeSubtreeLocked removes a node and, recursively, its children, then
// cascades to edges and sequence items. Caller holds the lock.
func (s *Store) removeSubtreeLocked(id string) {
	// Children first, matching the parent-cascade rule in persistence.
	var children []string
	for _, n := range s.nodes {
		if n.ParentID != nil && *n.ParentID == id {
			children = append(children, n.ID)
		}
	}
	for _, child := range children {
		s.removeSubtreeLocked(child)
	}

	if h := s.handles[id]; h != nil {
		h.Release()
		delete(s.handles, id)
	}

	for edgeID, e := range s.edges {
		if e.SourceID == id || e.TargetID == id {
			delete(s.edges, edgeID)
			s.emitDeleteLocked(model.EntityEdge, edgeID)
		}
	}

	for _, seq := range s.sequences {
		kept := seq.Items[:0]
		changed := false
		for _, item := range seq.Items {
			if item.NodeID == id {
				changed = true
				s.emitDeleteLocked(model.EntitySequenceItem, fmt.Sprint(item.ID))
				continue
			}
			kept = append(kept, item)
		}
		if changed {
			seq.Items = kept
			s.materializeLocked(seq)
		}
	}

	delete(s.nodes, id)
	delete(s.insertSeq, id)
	delete(s.mediaPaths, id)
	if s.activeNodeID == id {
		s.activeNodeID = ""
	}
	s.emitDeleteLocked(model.EntityNode, id)
}

// evictToCapacityLocked frees enough slots for extra incoming nodes,
// returning a CapacityError when it cannot.
func (s *Store) evictToCapacityLocked(extra int) error {
	_, err := s.evictListLocked(extra)
	return err
}

// evictListLocked evicts until len(nodes)+extra <= ceiling. The victim each
// round is the oldest-inserted node whose subtree holds neither the active
// node nor a root: eviction cascades through descendants, so the active
// node's whole ancestor chain is as untouchable as the active node itself.
// With no active node the policy degrades to plain FIFO over non-root
// subtrees.
func (s *Store) evictListLocked(extra int) ([]string, error) {
	exempt := make(map[string]bool)
	protectChain := func(id string) {
		for id != "" && !exempt[id] {
			exempt[id] = true
			n := s.nodes[id]
			if n == nil || n.ParentID == nil {
				return
			}
			id = *n.ParentID
		}
	}
	if s.activeNodeID != "" {
		protectChain(s.activeNodeID)
	}
	for id, n := range s.nodes {
		if n.NodeType == model.NodeTypeRoot {
			protectChain(id)
		}
	}

	var evicted []string
	for len(s.nodes)+extra > s.ceiling {
		victim := ""
		var oldest uint64
		for id, seq := range s.insertSeq {
			if exempt[id] {
				continue
			}
			if victim == "" || seq < oldest {
				victim = id
				oldest = seq
			}
		}
		if victim == "" {
			return evicted, &CapacityError{ProjectID: s.project.ID, Ceiling: s.ceiling, Count: len(s.nodes)}
		}
		slog.Info("evicting node at capacity",
			"project_id", s.project.ID, "node_id", victim, "ceiling", s.ceiling)
		s.removeSubtreeLocked(victim)
		evicted = append(evicted, victim)
	}
	return evicted, nil
}

// materializeLocked renumbers a sequence's items dense 0..n-1 in their
// current order and recomputes the total duration. Caller holds the lock.
func (s *Store) materializeLocked(seq *model.Sequence) {
	total := 0.0
	for i := range seq.Items {
		seq.Items[i].OrderIndex = i
		total += seq.Items[i].EffectiveDuration()
	}
	seq.TotalDuration = total
	s.emitUpsertLocked(model.EntitySequence, fmt.Sprint(seq.ID), seq)
}

// emitUpsertLocked queues an upsert mutation. Caller holds the lock.
func (s *Store) emitUpsertLocked(kind, entityID string, payload interface{}) {
	if s.sink == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode mutation payload",
			"project_id", s.project.ID, "kind", kind, "entity_id", entityID, "error", err)
		return
	}
	s.mutationSeq++
	s.sink.Enqueue(model.Mutation{
		Seq:       s.mutationSeq,
		Op:        model.MutationUpsert,
		Kind:      kind,
		EntityID:  entityID,
		ProjectID: s.project.ID,
		Payload:   body,
	})
}

// emitDeleteLocked queues a delete mutation. Caller holds the lock.
func (s *Store) emitDeleteLocked(kind, entityID string) {
	if s.sink == nil {
		return
	}
	s.mutationSeq++
	s.sink.Enqueue(model.Mutation{
		Seq:       s.mutationSeq,
		Op:        model.MutationDelete,
		Kind:      kind,
		EntityID:  entityID,
		ProjectID: s.project.ID,
	})
}
