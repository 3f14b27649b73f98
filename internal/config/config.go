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

// Package config defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings
// for the media library, the project graph, the SQLite store, AI models,
// and prompt templates.
//
// Structs:
//   - Storage: Locations of the media library, thumbnail cache, and ffmpeg binaries.
//   - Database: SQLite database settings.
//   - Graph: Capacity and traversal limits for in-memory project graphs.
//   - Ontology: Location of the tag ontology definition file.
//   - LLMModel: Configuration for a generative model used for line suggestions.
//   - PromptTemplates: Text templates for prompts sent to generative models.
//   - Config: The top-level struct that aggregates everything above.
//
// Functions:
//   - NewConfig: A constructor that initializes a new Config object with empty maps.
package config

// Storage holds the filesystem locations the service reads media from and
// writes derived artifacts to.
type Storage struct {
	MediaRoot         string `toml:"media_root"`          // The directory containing the source video clips.
	ThumbnailCacheDir string `toml:"thumbnail_cache_dir"` // The directory thumbnails are extracted into.
	FFmpegPath        string `toml:"ffmpeg_path"`         // Path to the ffmpeg binary. Defaults to "ffmpeg" on the PATH.
	FFprobePath       string `toml:"ffprobe_path"`        // Path to the ffprobe binary. Defaults to "ffprobe" on the PATH.
	ProbeTimeoutSecs  int    `toml:"probe_timeout_secs"`  // Timeout in seconds for a single ffmpeg/ffprobe invocation.
	MaxProbesPerSec   int    `toml:"max_probes_per_sec"`  // Rate limit for concurrent media probing.
}

// Database holds the SQLite persistence settings.
type Database struct {
	Path            string `toml:"path"`              // Path to the SQLite database file.
	MaxWriteRetries int    `toml:"max_write_retries"` // Attempts before a queued write is surfaced as unsaved.
	RetryBaseMillis int    `toml:"retry_base_millis"` // Base delay for exponential write retry backoff.
}

// Graph holds capacity and traversal limits for in-memory project graphs.
type Graph struct {
	NodeCeiling        int `toml:"node_ceiling"`        // Maximum nodes a single project graph may hold before eviction.
	NeighborhoodRadius int `toml:"neighborhood_radius"` // Edge hops collected when building a scoring neighborhood.
}

// Ontology holds the location of the tag ontology definition.
type Ontology struct {
	Path string `toml:"path"` // Path to the TOML file defining categories, tags, rules, and constraints.
}

// LLMModel represents the configuration for a generative large language model.
type LLMModel struct {
	Model              string  `toml:"model"`               // The model identifier.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter.
	TopP               float32 `toml:"top_p"`               // The top_p parameter.
	TopK               float32 `toml:"top_k"`               // The top_k parameter.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of output tokens.
	OutputFormat       string  `toml:"output_format"`       // The desired response MIME type (e.g., "application/json").
	RateLimit          int     `toml:"rate_limit"`          // Requests per second allowed against the model.
}

// PromptTemplates holds the templates for different prompt types.
type PromptTemplates struct {
	SuggestPrompt string `toml:"suggest"` // The template for next-line suggestion prompts.
	HookPrompt    string `toml:"hook"`    // The template for opening-hook suggestion prompts.
}

// Config represents the overall configuration for the application, loaded
// from TOML files. It is the root container for all other config structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name            string `toml:"name"`              // The name of the application.
		GoogleProjectId string `toml:"google_project_id"` // Google Cloud project for GenAI access.
		GoogleLocation  string `toml:"location"`          // Google Cloud location for GenAI access.
		ThreadPoolSize  int    `toml:"thread_pool_size"`  // Worker pool size for parallel ingest tasks.
	} `toml:"application"`
	Storage         Storage             `toml:"storage"`          // Filesystem locations.
	Database        Database            `toml:"database"`         // SQLite persistence settings.
	Graph           Graph               `toml:"graph"`            // Project graph limits.
	Ontology        Ontology            `toml:"ontology"`         // Tag ontology source.
	PromptTemplates PromptTemplates     `toml:"prompt_templates"` // Prompt templates configuration.
	AgentModels     map[string]LLMModel `toml:"agent_models"`     // LLM models keyed by a logical name (e.g., "suggest-flash").
}

// NewConfig creates a new, initialized Config instance. The maps are
// initialized up front so the TOML decoder never writes into a nil map.
func NewConfig() *Config {
	return &Config{
		AgentModels: make(map[string]LLMModel),
	}
}
