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

package cor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/y232457250/CineGraph-AI-sub001/internal/core/cor"
	"github.com/zeebo/assert"
)

// appendCommand appends its own name to the string flowing through the chain.
// With no explicit input key it reads from CtxIn, so it exercises the default
// flip-flop piping.
type appendCommand struct {
	cor.BaseCommand
}

func newAppendCommand(name string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *appendCommand) Execute(ctx cor.Context) {
	in := ctx.Get(c.GetInputParam()).(string)
	ctx.Add(c.GetOutputParam(), in+"."+c.GetName())
}

// failingCommand records an error and produces no output.
type failingCommand struct {
	cor.BaseCommand
}

func newFailingCommand(name string) *failingCommand {
	return &failingCommand{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *failingCommand) Execute(ctx cor.Context) {
	ctx.AddError(c.GetName(), errors.New("boom"))
}

// TestChainPipesOutputToInput verifies that each command's CtxOut value
// becomes the next command's CtxIn, and that a named output key set by the
// final command survives the end-of-step cleanup.
func TestChainPipesOutputToInput(t *testing.T) {
	first := newAppendCommand("first")
	first.InputParamName = "seed"

	last := newAppendCommand("last")
	last.OutputParamName = "result"

	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(first)
	chain.AddCommand(newAppendCommand("second"))
	chain.AddCommand(last)

	ctx := cor.NewBaseContext()
	defer ctx.Close()
	ctx.SetContext(context.Background())
	ctx.Add("seed", "start")

	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, "start.first.second.last", ctx.Get("result"))
	// The chain clears the piping keys after the final command.
	assert.Nil(t, ctx.Get(cor.CtxOut))
}

// TestChainHaltsOnError verifies that with the default error handling, a
// failure stops the chain before later commands run.
func TestChainHaltsOnError(t *testing.T) {
	broken := newFailingCommand("broken")
	broken.InputParamName = "seed"
	tail := newAppendCommand("tail")
	tail.InputParamName = "seed"

	chain := cor.NewBaseChain("halting")
	chain.AddCommand(broken)
	chain.AddCommand(tail)

	ctx := cor.NewBaseContext()
	defer ctx.Close()
	ctx.SetContext(context.Background())
	ctx.Add("seed", "start")

	chain.Execute(ctx)

	assert.True(t, ctx.HasErrors())
	assert.Error(t, ctx.GetErrors()["broken"])
	// The tail command never ran, so its output was never produced.
	assert.Nil(t, ctx.Get(cor.CtxOut))
	assert.Nil(t, ctx.Get("result"))
}

// TestChainContinueOnFailure verifies that a chain configured to continue
// still runs commands after a failure.
func TestChainContinueOnFailure(t *testing.T) {
	tail := newAppendCommand("tail")
	tail.InputParamName = "seed"
	tail.OutputParamName = "result"

	broken := newFailingCommand("broken")
	broken.InputParamName = "seed"

	chain := cor.NewBaseChain("tolerant")
	chain.ContinueOnFailure(true)
	chain.AddCommand(broken)
	chain.AddCommand(tail)

	ctx := cor.NewBaseContext()
	defer ctx.Close()
	ctx.SetContext(context.Background())
	ctx.Add("seed", "start")

	chain.Execute(ctx)

	assert.True(t, ctx.HasErrors())
	result, ok := ctx.Get("result").(string)
	assert.True(t, ok)
	assert.True(t, strings.HasSuffix(result, ".tail"))
}

// TestChainSkipsCommandWithoutInput verifies the IsExecutable precondition:
// a command whose input key is absent from the context is skipped rather
// than executed against nil input.
func TestChainSkipsCommandWithoutInput(t *testing.T) {
	orphan := newAppendCommand("orphan")
	orphan.InputParamName = "never-set"
	orphan.OutputParamName = "result"

	chain := cor.NewBaseChain("skipping")
	chain.AddCommand(orphan)

	ctx := cor.NewBaseContext()
	defer ctx.Close()
	ctx.SetContext(context.Background())

	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Nil(t, ctx.Get("result"))
}
