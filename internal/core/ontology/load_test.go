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

package ontology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/ontology"
	"github.com/y232457250/CineGraph-AI-sub001/internal/testutil"
)

// TestLoadFromFile verifies the TOML loader end to end against the seed
// ontology: snapshot version, pointer-field defaults for omitted values,
// and that rules and constraints land queryable.
func TestLoadFromFile(t *testing.T) {
	path := testutil.WriteSeedOntology(t, t.TempDir())

	snap, err := ontology.LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1), snap.Version())

	// Omitted active flags default to true.
	assert.True(t, snap.IsActive("st_question"))
	assert.True(t, snap.IsActive("char_villain"))

	assert.InDelta(t, 0.9, snap.ConnectionWeight("st_question", "st_answer"), 1e-9)
	rules := snap.ConnectionsBetween("st_question", "st_answer")
	require.NotEmpty(t, rules)
	assert.Equal(t, model.ConnectionContinuation, rules[0].Kind)

	violations := snap.CheckConstraints([]string{"char_hero", "char_villain"})
	require.Len(t, violations, 1)
	assert.Equal(t, model.ConstraintMutualExclusive, violations[0].Kind)
}

// TestLoadFromFileMissing verifies that a nonexistent path surfaces a
// LoadError rather than a zero snapshot.
func TestLoadFromFileMissing(t *testing.T) {
	_, err := ontology.LoadFromFile("no/such/ontology.toml")
	var loadErr *ontology.LoadError
	require.ErrorAs(t, err, &loadErr)
}
