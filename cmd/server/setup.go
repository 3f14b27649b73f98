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

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/y232457250/CineGraph-AI-sub001/internal/config"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/media"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/ontology"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/persist"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/services"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/suggest"
)

// suggestModelKey is the agent_models entry the suggestion pipeline uses.
const suggestModelKey = "suggest"

// StateManager holds the shared components of the server.
type StateManager struct {
	config    *config.Config
	registry  *ontology.Registry
	bridge    *persist.SQLiteBridge
	queue     *persist.WriteQueue
	projects  *services.ProjectService
	lines     *services.LineService
	suggester suggest.Suggester
	unsaved   *unsavedTracker
}

var state = &StateManager{}

// unsavedTracker collects mutations the write queue gave up on, so the
// frontend can warn about unsaved changes.
type unsavedTracker struct {
	mu    sync.Mutex
	items []model.Mutation
}

func (u *unsavedTracker) record(m model.Mutation, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items = append(u.items, m)
	slog.Error("change could not be saved", "seq", m.Seq, "kind", m.Kind, "entity_id", m.EntityID, "error", err)
}

func (u *unsavedTracker) snapshot() []model.Mutation {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]model.Mutation, len(u.items))
	copy(out, u.items)
	return out
}

func SetupOS() (err error) {
	err = os.Setenv(config.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	err = os.Setenv(config.EnvConfigRuntime, "local")
	return err
}

func GetConfig() *config.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment: %v\n", err)
		}
		cfg := config.NewConfig()
		config.LoadConfig(&cfg)
		state.config = cfg
	}
	return state.config
}

// InitState wires the persistence, graph, ontology, and suggestion
// components from the loaded configuration.
func InitState(ctx context.Context) {
	cfg := GetConfig()

	snapshot, err := ontology.LoadFromFile(cfg.Ontology.Path)
	if err != nil {
		log.Fatalf("failed to load tag ontology: %v\n", err)
	}
	state.registry = ontology.NewRegistry(snapshot)

	bridge, err := persist.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v\n", err)
	}
	state.bridge = bridge

	state.unsaved = &unsavedTracker{}
	state.queue = persist.NewWriteQueue(
		bridge,
		cfg.Database.MaxWriteRetries,
		time.Duration(cfg.Database.RetryBaseMillis)*time.Millisecond,
		state.unsaved.record,
	)

	provider := media.NewFFmpegProvider(cfg.Storage)
	state.projects = services.NewProjectService(bridge, state.queue, provider, cfg.Graph.NodeCeiling)
	state.lines = services.NewLineService(bridge.DB(), state.registry)

	// Warm the thumbnail cache in the background so the first canvas load
	// does not pay the extraction cost.
	go func() {
		count, err := provider.WarmCache(ctx, cfg.Application.ThreadPoolSize)
		if err != nil {
			slog.Warn("thumbnail cache warm aborted", "error", err)
			return
		}
		slog.Info("thumbnail cache warm finished", "clips", count)
	}()

	state.suggester = buildSuggester(ctx, cfg)
}

// buildSuggester prefers the model-backed source and falls back to the
// rule-based one when no model is configured or the client cannot be
// created.
func buildSuggester(ctx context.Context, cfg *config.Config) suggest.Suggester {
	modelCfg, hasModel := cfg.AgentModels[suggestModelKey]
	if !hasModel || cfg.Application.GoogleProjectId == "" {
		slog.Info("no suggestion model configured, using the rule-based source")
		return newStaticSuggester(ctx)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Application.GoogleProjectId,
		Location: cfg.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		slog.Error("failed to create genai client, using the rule-based source", "error", err)
		return newStaticSuggester(ctx)
	}

	generator := suggest.NewQuotaAwareModel(client.Models, modelCfg)
	suggester, err := suggest.NewGenAISuggester(
		cfg.PromptTemplates.SuggestPrompt,
		generator,
		state.lines.Scorer(),
		state.lines.Lookup(ctx),
	)
	if err != nil {
		slog.Error("failed to build suggestion chain, using the rule-based source", "error", err)
		return newStaticSuggester(ctx)
	}
	return suggester
}

// newStaticSuggester seeds the fallback with the hookiest slice of the
// library.
func newStaticSuggester(ctx context.Context) suggest.Suggester {
	pool, err := state.lines.Search(ctx, services.LineQuery{Limit: 200})
	if err != nil {
		slog.Error("failed to seed the rule-based suggestion pool", "error", err)
	}
	return suggest.NewStaticSuggester(state.lines.Scorer(), pool)
}

// ShutdownState drains the graph stores and the write queue.
func ShutdownState() {
	if state.projects != nil {
		state.projects.CloseAll()
	}
	if state.queue != nil {
		state.queue.Close()
	}
}
