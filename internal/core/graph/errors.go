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

// This file defines the error types the graph store reports. Both are
// refusals: the operation did not happen and the in-memory graph is exactly
// as it was before the call.
package graph

import "fmt"

// CapacityError reports that the node ceiling was reached and eviction could
// not free enough slots (every remaining node was exempt from eviction).
type CapacityError struct {
	ProjectID string
	Ceiling   int
	Count     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("project %s is at its node ceiling (%d of %d) and no node is evictable",
		e.ProjectID, e.Count, e.Ceiling)
}

// StructuralError reports a mutation that would corrupt graph structure: a
// parent change introducing a cycle, a self-loop edge, an edge crossing
// projects, or a reference to an untracked entity.
type StructuralError struct {
	Op     string
	Detail string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s refused: %s", e.Op, e.Detail)
}
