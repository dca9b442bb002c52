package core

// Agent is the core interface for every processing unit: generative steps,
// deterministic steps, and the pipelines composing them.
//
// Agents receive a RunContext, emit events through it, and stage state
// mutations that the runner persists. Implementations must respect context
// cancellation and emit at most one terminal event per run.
type Agent interface {
	Name() string
	Description() string
	Run(rc *RunContext) error
}

// StepKind categorizes a step implementation.
type StepKind string

const (
	// StepGenerative marks a step that invokes the generation capability.
	StepGenerative StepKind = "generative"
	// StepDeterministic marks a pure or network step without generation.
	StepDeterministic StepKind = "deterministic"
)

// Step is an Agent with a declared data contract: the context keys it reads
// and the single key it writes. Pipelines use the declaration to detect
// missing dependencies before running the step.
type Step interface {
	Agent
	Kind() StepKind
	Reads() []string
	Writes() string
}

// MissingReads reports the declared read keys absent from the session state.
func MissingReads(s Step, rc *RunContext) []string {
	var missing []string
	for _, key := range s.Reads() {
		if _, ok := rc.GetState(key); !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// AgentInfo carries identifying details about an agent used in contexts and
// events.
type AgentInfo struct{ Name, Type string }
