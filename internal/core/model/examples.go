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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides factory functions for creating hardcoded example
// instances of the data models. The examples serve two purposes: they are
// embedded in suggestion prompts as "few-shot" guidance so the language model
// returns parsable JSON, and they seed test fixtures.
package model

// GetExampleCandidates creates a sample candidate list. It is injected into
// the suggestion prompt so the model mirrors the expected JSON array shape:
// each element carries a known line id and a one-sentence rationale.
func GetExampleCandidates() []Candidate {
	return []Candidate{
		{
			LineID:    "mv100231_ep3_line_042",
			Rationale: "Answers the anchor's question and keeps the emperor/official power dynamic.",
		},
		{
			LineID:    "mv100231_ep7_line_118",
			Rationale: "Escalates from calm to rage, matching the requested contrast cut.",
		},
	}
}

// GetExampleLine creates a sample annotated line used by fixtures and by the
// suggestion prompt to show the model what an annotated line looks like.
func GetExampleLine() *Line {
	l := &Line{
		LineID:        "mv100231_ep3_line_042",
		MovieID:       "mv100231",
		EpisodeNumber: 3,
		Text:          "You dare question me in my own hall?",
		CharacterName: "The Chancellor",
		StartTime:     412.4,
		EndTime:       415.1,
		Duration:      2.7,
		SentenceType:  "st_counter_question",
		Emotion:       "em_angry",
		Tone:          "tn_strong",
		CharacterType: "char_emperor",
		Intensity:     8,
		HookScore:     0.7,
		Confidence:    0.92,
	}
	l.SetExtraTags([]string{"fn_conflict_open"})
	return l
}
