package agent

import "github.com/cyberx-ai/supplymesh/core"

// InstructionProvider generates dynamic instructions from the run context.
type InstructionProvider func(rc *core.RunContext) string

// Instruction holds either a static instruction string or a provider that
// produces one per run. Exactly one of the two should be set.
type Instruction struct {
	Static   string
	Provider InstructionProvider
}

// NewInstruction creates a static instruction.
func NewInstruction(text string) *Instruction {
	return &Instruction{Static: text}
}

// NewProviderInstruction creates a dynamic instruction.
func NewProviderInstruction(provider InstructionProvider) *Instruction {
	return &Instruction{Provider: provider}
}

// Resolve returns the instruction text for the given run context.
func (i *Instruction) Resolve(rc *core.RunContext) string {
	if i == nil {
		return ""
	}
	if i.Provider != nil {
		return i.Provider(rc)
	}
	return i.Static
}
