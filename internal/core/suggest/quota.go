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

// Package suggest produces next-line candidates for a canvas node. The
// primary source is a generative model behind a rate-limited wrapper; a
// rule-based source covers tests and offline runs. Every candidate from
// either source passes through the constraint gate before it is surfaced,
// so a model hallucination can never place an ineligible line.
//
// This file wraps the generative model client with a rate limiter and a
// retry loop so the suggestion pipeline cannot exceed the model's request
// quota and survives transient API failures.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/y232457250/CineGraph-AI-sub001/internal/config"
)

// maxGenerateRetries bounds how many times a single generation request is
// retried before the pipeline gives up.
const maxGenerateRetries = 3

// generateRetryBackoff is the pause between generation retries.
const generateRetryBackoff = 2 * time.Second

// DefaultSafetySettings turns off content blocking for every harm category.
// The prompt material is annotated drama dialogue from a trusted library, and
// blocked responses would otherwise surface as empty candidate lists.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// TextGenerator is the narrow model surface the suggestion pipeline depends
// on. Tests substitute a scripted implementation.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// QuotaAwareModel decorates a generative model handle with a token-bucket
// rate limiter and a bounded retry loop. All suggestion traffic to the model
// goes through this wrapper.
type QuotaAwareModel struct {
	name    string
	handle  *genai.Models
	config  *genai.GenerateContentConfig
	limit   *rate.Limiter
	backoff time.Duration
}

// NewQuotaAwareModel builds the wrapper from an LLM config entry. The
// generation settings (temperature, top_p, top_k, max tokens, system
// instructions, response MIME type) all come from the config; the rate
// limiter allows cfg.RateLimit requests per second with an equal burst.
func NewQuotaAwareModel(handle *genai.Models, cfg config.LLMModel) *QuotaAwareModel {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 1
	}
	genConfig := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](cfg.Temperature),
		TopP:              genai.Ptr[float32](cfg.TopP),
		TopK:              genai.Ptr[float32](cfg.TopK),
		MaxOutputTokens:   cfg.MaxTokens,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstructions}}},
		SafetySettings:    DefaultSafetySettings,
		ResponseMIMEType:  cfg.OutputFormat,
	}
	return &QuotaAwareModel{
		name:    cfg.Model,
		handle:  handle,
		config:  genConfig,
		limit:   rate.NewLimiter(rate.Limit(rps), rps),
		backoff: generateRetryBackoff,
	}
}

// GenerateText sends one text prompt to the model and returns the flattened
// text of the response. Each attempt waits for a rate-limiter token first;
// a failed attempt backs off and retries until the budget is spent.
func (q *QuotaAwareModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxGenerateRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(q.backoff):
			}
		}
		if err := q.limit.Wait(ctx); err != nil {
			return "", err
		}
		resp, err := q.handle.GenerateContent(ctx, q.name, genai.Text(prompt), q.config)
		if err != nil {
			lastErr = err
			continue
		}
		return flattenResponseText(resp), nil
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", maxGenerateRetries+1, lastErr)
}

// flattenResponseText concatenates the text parts of every candidate and
// strips the markdown code fence the model sometimes wraps JSON in.
func flattenResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return StripCodeFence(sb.String())
}

// StripCodeFence removes a surrounding ```json fence, if present, and trims
// whitespace.
func StripCodeFence(in string) string {
	out := strings.TrimSpace(in)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
