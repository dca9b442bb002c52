package agent

import (
	"fmt"

	"github.com/cyberx-ai/supplymesh/core"
)

// BaseAgent bundles the identity and data-contract declaration shared by all
// step implementations. Embed it in concrete steps and supply a Run method
// to satisfy core.Step.
type BaseAgent struct {
	name        string
	description string
	kind        core.StepKind
	reads       []string
	writes      string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string, kind core.StepKind) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		kind:        kind,
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// Kind categorizes the step implementation.
func (b *BaseAgent) Kind() core.StepKind { return b.kind }

// Reads returns the context keys this step depends on.
func (b *BaseAgent) Reads() []string { return b.reads }

// Writes returns the single context key this step produces.
func (b *BaseAgent) Writes() string { return b.writes }

// SetContract declares the read/write context keys for this step.
func (b *BaseAgent) SetContract(reads []string, writes string) {
	b.reads = reads
	b.writes = writes
}
