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

// Package scoring implements the association scorer: given a candidate
// dialogue line and the tag neighborhood of a target node, it produces a
// bounded compatibility score with a ranked explanation of why the line
// fits. The same scorer backs manual search ranking and the gate that
// AI-suggested placements must pass before being presented as eligible.
//
// Algorithm:
//  1. Merge the candidate's tags with the anchor node's tags and check
//     constraints. A mutual-exclusion hit involving a tag from each side is
//     a hard rejection: the candidate is ineligible, not merely low-scored.
//  2. For every (candidate tag, neighborhood tag) pair, look up connection
//     rules in the narrative direction implied by the edge direction:
//     incoming neighbors read neighbor-then-candidate, outgoing neighbors
//     candidate-then-neighbor, and the anchor's own tags both ways.
//  3. Sum the matched rule weights and squash the sum into [0,1) with
//     1-exp(-sum), so more corroborating rules always help but the score
//     stays bounded.
//  4. Every remaining soft violation multiplies the score by a collapse
//     factor, pulling it toward zero rather than subtracting linearly.
//
// All reads go against one immutable ontology snapshot taken at call entry,
// so a concurrent administrative edit can never tear a scoring pass.
package scoring

import (
	"math"
	"sort"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/ontology"
)

// violationCollapseFactor multiplies the score once per soft violation.
// Two violations leave under a tenth of the original score.
const violationCollapseFactor = 0.25

// Scorer scores candidate lines against node neighborhoods. It is stateless
// apart from the ontology registry and safe for concurrent use.
type Scorer struct {
	registry *ontology.Registry
}

// NewScorer creates a scorer reading ontology snapshots from the registry.
func NewScorer(registry *ontology.Registry) *Scorer {
	return &Scorer{registry: registry}
}

// Score evaluates one candidate line against the neighborhood of the target
// node and returns the explained result.
func (s *Scorer) Score(line *model.Line, hood model.Neighborhood) model.ScoreResult {
	snap := s.registry.Current()
	return scoreWithSnapshot(snap, line, hood)
}

// Rank scores every candidate against the same neighborhood and returns the
// results ordered best-first: eligible before ineligible, then higher score,
// with ties broken by the importance of the strongest contributing tags and
// finally by line id so the ordering is deterministic.
func (s *Scorer) Rank(lines []*model.Line, hood model.Neighborhood) []model.ScoreResult {
	snap := s.registry.Current()

	results := make([]model.ScoreResult, 0, len(lines))
	for _, line := range lines {
		results = append(results, scoreWithSnapshot(snap, line, hood))
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ai, bi := topImportance(a), topImportance(b)
		if ai != bi {
			return ai > bi
		}
		return a.LineID < b.LineID
	})
	return results
}

// scoreWithSnapshot runs the scoring algorithm against one pinned snapshot.
func scoreWithSnapshot(snap *ontology.Snapshot, line *model.Line, hood model.Neighborhood) model.ScoreResult {
	result := model.ScoreResult{LineID: line.LineID, Eligible: true}

	candidateTags := activeTags(snap, line.Tags())
	anchorTags := activeTags(snap, hood.AnchorTags)

	// Constraint gate: check the candidate's tags as if merged onto the
	// anchor node.
	merged := append(append([]string{}, anchorTags...), candidateTags...)
	violations := snap.CheckConstraints(merged)
	for _, v := range violations {
		result.Violations = append(result.Violations, v)
		if v.Kind == model.ConstraintMutualExclusive && crossesSides(v.TagIDs, anchorTags, candidateTags) {
			// Hard rejection: the candidate cannot coexist with a tag the
			// anchor already carries.
			result.Eligible = false
		}
	}
	if !result.Eligible {
		result.Score = 0
		result.Reasons = nil
		return result
	}

	// Contribution pass over every candidate tag against every tag visible
	// in the neighborhood, honoring edge direction.
	var sum float64
	for _, ct := range candidateTags {
		for _, at := range anchorTags {
			// The anchor's own tags have no narrative direction; both
			// readings contribute.
			sum += collectReasons(snap, at, ct, &result.Reasons)
			sum += collectReasons(snap, ct, at, &result.Reasons)
		}
		for _, neighbor := range hood.Neighbors {
			for _, nt := range activeTags(snap, neighbor.Tags) {
				if neighbor.Incoming {
					// Edge points neighbor -> target: the narrative reads
					// neighbor first, candidate second.
					sum += collectReasons(snap, nt, ct, &result.Reasons)
				} else {
					sum += collectReasons(snap, ct, nt, &result.Reasons)
				}
			}
		}
	}

	score := 1 - math.Exp(-sum)
	for range result.Violations {
		score *= violationCollapseFactor
	}
	result.Score = score

	sort.SliceStable(result.Reasons, func(i, j int) bool {
		a, b := result.Reasons[i], result.Reasons[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if a.FromTagID != b.FromTagID {
			return a.FromTagID < b.FromTagID
		}
		return a.ToTagID < b.ToTagID
	})
	return result
}

// collectReasons appends one reason per active rule from one tag to another
// and returns the summed rule weight.
func collectReasons(snap *ontology.Snapshot, fromTag, toTag string, reasons *[]model.ScoreReason) float64 {
	var sum float64
	for _, rule := range snap.ConnectionsBetween(fromTag, toTag) {
		sum += rule.Weight
		*reasons = append(*reasons, model.ScoreReason{
			FromTagID:  rule.FromTagID,
			ToTagID:    rule.ToTagID,
			Kind:       rule.Kind,
			Weight:     rule.Weight,
			Importance: math.Max(snap.Importance(rule.FromTagID), snap.Importance(rule.ToTagID)),
		})
	}
	return sum
}

// activeTags filters a tag list down to tags the snapshot considers active.
// Retired or unknown tags never influence a score.
func activeTags(snap *ontology.Snapshot, in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		if snap.IsActive(id) {
			out = append(out, id)
		}
	}
	return out
}

// crossesSides reports whether the violated set has at least one tag from
// each side of the merge.
func crossesSides(violated, anchor, candidate []string) bool {
	inAnchor, inCandidate := false, false
	anchorSet := toSet(anchor)
	candidateSet := toSet(candidate)
	for _, id := range violated {
		if anchorSet[id] {
			inAnchor = true
		}
		if candidateSet[id] {
			inCandidate = true
		}
	}
	return inAnchor && inCandidate
}

// topImportance returns the importance of a result's strongest reason.
func topImportance(r model.ScoreResult) float64 {
	if len(r.Reasons) == 0 {
		return 0
	}
	return r.Reasons[0].Importance
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, id := range in {
		out[id] = true
	}
	return out
}
