package agent

import (
	"fmt"
	"strings"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

// SequentialAgent executes its child steps one after another over the shared
// run context. Before each step it checks the step's declared reads against
// the session state; an unsatisfied dependency aborts the remainder of the
// pipeline with a single explanatory event rather than running steps whose
// inputs are missing.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
	logger   logging.Logger
}

// SequentialOption configures a SequentialAgent.
type SequentialOption func(*SequentialAgent)

// WithSequentialLogger sets the logger used for pipeline diagnostics.
func WithSequentialLogger(logger logging.Logger) SequentialOption {
	return func(s *SequentialAgent) { s.logger = logger }
}

// NewSequentialAgent creates a sequential pipeline over the given children.
func NewSequentialAgent(name string, children []core.Agent, opts ...SequentialOption) *SequentialAgent {
	s := &SequentialAgent{
		BaseAgent: NewBaseAgent(name, core.StepDeterministic),
		children:  children,
		logger:    logging.NoOpLogger{},
	}
	s.SetDescription(fmt.Sprintf("Sequential pipeline %s (%d steps)", name, len(children)))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Children returns the child agents in execution order.
func (s *SequentialAgent) Children() []core.Agent { return s.children }

// Run executes the children in order, stopping early on dependency gaps,
// step failures, or context cancellation.
func (s *SequentialAgent) Run(rc *core.RunContext) error {
	for _, child := range s.children {
		select {
		case <-rc.Context.Done():
			return rc.Context.Err()
		default:
		}

		if step, ok := child.(core.Step); ok {
			if missing := core.MissingReads(step, rc); len(missing) > 0 {
				s.logger.Warn("aborting pipeline on missing dependency",
					"pipeline", s.Name(), "step", child.Name(), "missing", missing)
				msg := fmt.Sprintf("步骤 %s 缺少前置结果: %s，流程中断。",
					child.Name(), strings.Join(missing, ", "))
				ev := core.NewFailureEvent(s.Name(), core.NewFailure(core.FailureMissingDependency, "%s", msg))
				if err := rc.EmitEvent(ev); err != nil {
					return err
				}
				return nil
			}
		}

		if err := child.Run(rc); err != nil {
			if failure, ok := core.AsFailure(err); ok {
				s.logger.Warn("aborting pipeline on step failure",
					"pipeline", s.Name(), "step", child.Name(),
					"kind", string(failure.Kind), "error", failure.Message)
				return nil
			}
			return fmt.Errorf("step %s: %w", child.Name(), err)
		}
	}
	return nil
}
