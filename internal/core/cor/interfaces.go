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

// Package cor (Chain of Responsibility) provides the building blocks for
// composing workflows out of small commands: the suggestion pipeline
// (prompt -> generate -> parse -> constraint gate) and the thumbnail ingest
// path are both assembled from these pieces. This file defines the core
// interfaces; the Base* types in the sibling files are the default
// implementations.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys a chain uses to pipe data between commands:
// after each command runs, the value it stored under CtxOut becomes the next
// command's CtxIn.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state bag passed through a chain: arbitrary key/value
// data, errors keyed by the command that produced them, temp files to clean
// up, and the standard Go context carrying cancellation and trace spans.
type Context interface {
	// SetContext sets the standard Go context (cancellation, tracing).
	SetContext(ctx context.Context)

	// GetContext returns the standard Go context.
	GetContext() context.Context

	// Add stores a key/value pair; returns the Context for chaining.
	Add(key string, value interface{}) Context

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes the value stored under key.
	Remove(key string)

	// AddError records an error under the name of the failing command.
	AddError(key string, err error)

	// GetErrors returns every error recorded so far.
	GetErrors() map[string]error

	// HasErrors reports whether any command has failed.
	HasErrors() bool

	// AddTempFile registers a file for cleanup when the context closes.
	AddTempFile(file string)

	// GetTempFiles lists every registered temp file.
	GetTempFiles() []string

	// Close removes registered temp files. Defer it at workflow start.
	Close()
}

// Executable is anything with a single execution step against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is an atomic unit of work inside a chain. Commands read their input
// from the context, do one thing, and write their output back.
type Command interface {
	Executable

	// GetName identifies the command in logs, spans and error maps.
	GetName() string

	// GetInputParam is the context key the command reads its input from.
	GetInputParam() string

	// GetOutputParam is the context key the command writes its output to.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	// GetTracer returns the command's OpenTelemetry tracer.
	GetTracer() trace.Tracer

	// GetMeter returns the command's OpenTelemetry meter.
	GetMeter() metric.Meter

	// GetSuccessCounter counts successful executions.
	GetSuccessCounter() metric.Int64Counter

	// GetErrorCounter counts failed executions.
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command composed of other Commands, executed in order. Being a
// Command itself, a chain can nest inside another chain.
type Chain interface {
	Command

	// ContinueOnFailure keeps executing subsequent commands after one fails.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
