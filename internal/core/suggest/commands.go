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

// This file contains the commands of the suggestion chain. The chain pipes
// a Request through four steps: build the prompt from the template, send it
// to the model, parse the JSON candidate list, and gate each candidate
// against the tag constraints of the anchor's neighborhood.
package suggest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/cor"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/model"
	"github.com/y232457250/CineGraph-AI-sub001/internal/core/scoring"
)

// CtxRequest is the context key the suggestion Request is stored under for
// the whole chain. The flip-flop CtxIn/CtxOut slots carry the per-step
// payloads; the gate at the end still needs the original request.
const CtxRequest = "__SUGGEST_REQUEST__"

// CtxCandidates is the context key the gated candidate list lands under at
// the end of the chain. The flip-flop slots are cleared between steps, so
// the chain's caller reads the result from this key.
const CtxCandidates = "__SUGGEST_CANDIDATES__"

// Request is one suggestion query: the user's free-text direction, the line
// bound to the anchor node (may be nil for an empty node), the anchor's
// neighborhood as the scorer sees it, and the maximum number of candidates
// to return.
type Request struct {
	Direction    string
	AnchorLine   *model.Line
	Neighborhood model.Neighborhood
	Limit        int
}

// LineLookup resolves a line id from the library. A nil line with a nil
// error means the id is unknown (a hallucinated candidate).
type LineLookup func(lineID string) (*model.Line, error)

// PromptBuilder renders the suggestion prompt template with the request's
// direction, the anchor line, the neighborhood tags, and a few-shot JSON
// example of the expected output shape.
type PromptBuilder struct {
	cor.BaseCommand
	template *template.Template
}

// NewPromptBuilder parses the template text and returns the command.
func NewPromptBuilder(name string, templateText string) (*PromptBuilder, error) {
	tmpl, err := template.New(name).Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse suggestion prompt template: %w", err)
	}
	out := &PromptBuilder{BaseCommand: *cor.NewBaseCommand(name), template: tmpl}
	// The chain starts with an empty CtxIn slot; this command reads the
	// request key instead so the executability check passes.
	out.InputParamName = CtxRequest
	return out, nil
}

// GenerateParams builds the substitution map for the prompt template.
func (t *PromptBuilder) GenerateParams(req Request) map[string]interface{} {
	params := make(map[string]interface{})
	params["DIRECTION"] = req.Direction
	params["LIMIT"] = req.Limit

	if req.AnchorLine != nil {
		params["ANCHOR_TEXT"] = req.AnchorLine.Text
		params["ANCHOR_TAGS"] = strings.Join(req.AnchorLine.Tags(), ", ")
	} else {
		params["ANCHOR_TEXT"] = ""
		params["ANCHOR_TAGS"] = strings.Join(req.Neighborhood.AnchorTags, ", ")
	}

	neighborTags := make([]string, 0, len(req.Neighborhood.Neighbors))
	for _, n := range req.Neighborhood.Neighbors {
		direction := "follows"
		if n.Incoming {
			direction = "precedes"
		}
		neighborTags = append(neighborTags, fmt.Sprintf("%s anchor: %s", direction, strings.Join(n.Tags, ", ")))
	}
	params["NEIGHBOR_TAGS"] = strings.Join(neighborTags, "; ")

	exampleCandidates, _ := json.Marshal(model.GetExampleCandidates())
	params["EXAMPLE_JSON"] = string(exampleCandidates)
	exampleLine, _ := json.Marshal(model.GetExampleLine())
	params["EXAMPLE_LINE"] = string(exampleLine)
	return params
}

func (t *PromptBuilder) Execute(context cor.Context) {
	req, ok := context.Get(t.GetInputParam()).(Request)
	if !ok {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("no suggestion request in context"))
		return
	}

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(req)); err != nil {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}

	t.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(t.GetOutputParam(), buffer.String())
}

// CandidateGenerator sends the rendered prompt to the model and places the
// raw response text in the context for the parser.
type CandidateGenerator struct {
	cor.BaseCommand
	generator TextGenerator
}

func NewCandidateGenerator(name string, generator TextGenerator) *CandidateGenerator {
	return &CandidateGenerator{BaseCommand: *cor.NewBaseCommand(name), generator: generator}
}

func (t *CandidateGenerator) Execute(context cor.Context) {
	prompt, ok := context.Get(t.GetInputParam()).(string)
	if !ok {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("no prompt in context"))
		return
	}

	out, err := t.generator.GenerateText(context.GetContext(), prompt)
	if err != nil {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("generation request failed: %w", err))
		return
	}

	t.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(t.GetOutputParam(), out)
}

// CandidatesJSONToStruct parses the model's JSON response into a candidate
// list.
type CandidatesJSONToStruct struct {
	cor.BaseCommand
}

func NewCandidatesJSONToStruct(name string) *CandidatesJSONToStruct {
	return &CandidatesJSONToStruct{BaseCommand: *cor.NewBaseCommand(name)}
}

func (s *CandidatesJSONToStruct) Execute(context cor.Context) {
	in, ok := context.Get(s.GetInputParam()).(string)
	if !ok {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), fmt.Errorf("no response text in context"))
		return
	}

	var candidates []model.Candidate
	if err := json.Unmarshal([]byte(StripCodeFence(in)), &candidates); err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), fmt.Errorf("failed to unmarshal candidate JSON: %w", err))
		return
	}

	s.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(s.GetOutputParam(), candidates)
}

// ConstraintGate resolves each candidate line and drops the ones the scorer
// rejects against the anchor's neighborhood: unknown line ids and
// mutual-exclusion hits never reach the caller. Survivors keep the model's
// ordering, truncated to the request limit.
type ConstraintGate struct {
	cor.BaseCommand
	scorer *scoring.Scorer
	lookup LineLookup
}

func NewConstraintGate(name string, scorer *scoring.Scorer, lookup LineLookup) *ConstraintGate {
	out := &ConstraintGate{BaseCommand: *cor.NewBaseCommand(name), scorer: scorer, lookup: lookup}
	out.OutputParamName = CtxCandidates
	return out
}

func (t *ConstraintGate) Execute(context cor.Context) {
	candidates, ok := context.Get(t.GetInputParam()).([]model.Candidate)
	if !ok {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("no candidate list in context"))
		return
	}
	req, ok := context.Get(CtxRequest).(Request)
	if !ok {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("no suggestion request in context"))
		return
	}

	kept := make([]model.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		line, err := t.lookup(candidate.LineID)
		if err != nil {
			t.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(t.GetName(), fmt.Errorf("line lookup failed for %q: %w", candidate.LineID, err))
			return
		}
		if line == nil {
			continue
		}
		if result := t.scorer.Score(line, req.Neighborhood); !result.Eligible {
			continue
		}
		kept = append(kept, candidate)
		if req.Limit > 0 && len(kept) == req.Limit {
			break
		}
	}

	t.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(t.GetOutputParam(), kept)
	context.Add(cor.CtxOut, kept)
}
