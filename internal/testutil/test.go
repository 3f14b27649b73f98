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

// Package testutil provides helpers for the test suite: a cached test
// configuration loaded from the test TOML files, and a small seed ontology
// written to a temp file for loaders that read from disk.
package testutil

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/y232457250/CineGraph-AI-sub001/internal/config"
)

// StateManager caches the test configuration so it loads once per run.
type StateManager struct {
	config *config.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is non-nil.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// SetupOS points the config loader at the test configuration files.
func SetupOS() (err error) {
	err = os.Setenv(config.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	err = os.Setenv(config.EnvConfigRuntime, "test")
	return err
}

// GetConfig is a singleton accessor for the test configuration.
func GetConfig() *config.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		cfg := config.NewConfig()
		config.LoadConfig(&cfg)
		state.config = cfg
	}
	return state.config
}

// WriteSeedOntology writes a small, valid ontology TOML file into dir and
// returns its path. The seed covers two categories, a continuation rule,
// and a mutual-exclusion constraint, enough to exercise loading, scoring,
// and gating end to end.
func WriteSeedOntology(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ontology.toml")
	if err := os.WriteFile(path, []byte(SeedOntologyTOML()), 0o644); err != nil {
		t.Fatalf("failed to write seed ontology: %v", err)
	}
	return path
}

// SeedOntologyTOML returns the seed ontology document.
func SeedOntologyTOML() string {
	return `
[[categories]]
id = "sentence_type"
name = "Sentence Type"
layer = 1

[[categories]]
id = "character_type"
name = "Character Type"
layer = 4

[[tags]]
id = "st_question"
category_id = "sentence_type"
value = "question"
importance_score = 0.7

[[tags]]
id = "st_answer"
category_id = "sentence_type"
value = "answer"
importance_score = 0.6

[[tags]]
id = "char_hero"
category_id = "character_type"
value = "hero"
importance_score = 0.9

[[tags]]
id = "char_villain"
category_id = "character_type"
value = "villain"
importance_score = 0.9

[[rules]]
from_tag_id = "st_question"
to_tag_id = "st_answer"
kind = "continuation"
weight = 0.9

[[constraints]]
category_id = "character_type"
kind = "mutual_exclusive"
tags = ["char_hero", "char_villain"]
message = "hero and villain lines cannot share a beat"
`
}
