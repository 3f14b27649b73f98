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

// Package model defines the core data structures for the application.
// This file contains the annotated dialogue line. Lines are produced by the
// external annotation pipeline and are read-only to this core: the composer
// places them on the canvas and scores them, it never edits them.
package model

import (
	"encoding/json"
	"time"
)

// Line is a single annotated dialogue line from the library. LineID is the
// stable external key ("{movie}_ep{N}_line_{idx}"); the tag columns hold one
// tag definition id per single-valued category, ExtraTags holds the rest as a
// JSON array for multi-valued categories.
type Line struct {
	ID            uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	LineID        string  `gorm:"size:100;uniqueIndex;not null" json:"id"`
	MovieID       string  `gorm:"size:50;index" json:"movie_id"`
	EpisodeNumber int     `json:"episode_number,omitempty"`
	Text          string  `gorm:"type:text;not null" json:"text"`
	CharacterName string  `gorm:"size:100" json:"character,omitempty"`
	StartTime     float64 `json:"start"`
	EndTime       float64 `json:"end"`
	Duration      float64 `json:"duration"`

	// One tag definition id per single-valued category.
	SentenceType  string `gorm:"size:100;index" json:"sentence_type,omitempty"`
	Emotion       string `gorm:"size:100;index" json:"emotion,omitempty"`
	Tone          string `gorm:"size:100;index" json:"tone,omitempty"`
	CharacterType string `gorm:"size:100;index" json:"character_type,omitempty"`
	ExtraTags     string `gorm:"type:text" json:"-"`

	// Composition metrics carried over from the annotation pipeline.
	Intensity  int     `gorm:"default:5" json:"intensity"`
	HookScore  float64 `gorm:"default:0.5" json:"hook_score"`
	Confidence float64 `gorm:"default:1.0" json:"annotation_confidence"`

	AnnotatedAt *time.Time `json:"annotated_at,omitempty"`
	CreatedAt   time.Time  `json:"-"`
}

// Tags returns every tag definition id attached to the line, single-valued
// categories first, then the decoded multi-valued extras. The result never
// contains empty strings or duplicates.
func (l *Line) Tags() []string {
	seen := make(map[string]bool, 8)
	out := make([]string, 0, 8)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(l.SentenceType)
	add(l.Emotion)
	add(l.Tone)
	add(l.CharacterType)
	if l.ExtraTags != "" {
		var extras []string
		if err := json.Unmarshal([]byte(l.ExtraTags), &extras); err == nil {
			for _, id := range extras {
				add(id)
			}
		}
	}
	return out
}

// SetExtraTags encodes the multi-valued tag ids into the JSON column.
func (l *Line) SetExtraTags(ids []string) {
	b, _ := json.Marshal(ids)
	l.ExtraTags = string(b)
}
