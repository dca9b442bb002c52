package agent

import (
	"fmt"
	"sync"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

// ParallelAgent executes its child steps concurrently. Children must declare
// disjoint write keys; state deltas are applied to the shared session as each
// child emits, while the emitted events themselves are buffered and flushed
// in declaration order once all children finish, so observers always see a
// deterministic event sequence regardless of goroutine scheduling.
type ParallelAgent struct {
	BaseAgent
	children []core.Agent
	logger   logging.Logger
}

// ParallelOption configures a ParallelAgent.
type ParallelOption func(*ParallelAgent)

// WithParallelLogger sets the logger used for pipeline diagnostics.
func WithParallelLogger(logger logging.Logger) ParallelOption {
	return func(p *ParallelAgent) { p.logger = logger }
}

// NewParallelAgent creates a concurrent fan-out over the given children.
func NewParallelAgent(name string, children []core.Agent, opts ...ParallelOption) *ParallelAgent {
	p := &ParallelAgent{
		BaseAgent: NewBaseAgent(name, core.StepDeterministic),
		children:  children,
		logger:    logging.NoOpLogger{},
	}
	p.SetDescription(fmt.Sprintf("Parallel fan-out %s (%d branches)", name, len(children)))
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Children returns the child agents.
func (p *ParallelAgent) Children() []core.Agent { return p.children }

// Run fans the children out on goroutines, buffers their events per branch,
// and replays the buffers in child order after all branches complete. The
// first branch error is returned.
func (p *ParallelAgent) Run(rc *core.RunContext) error {
	n := len(p.children)
	buffers := make([][]core.Event, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i, child := range p.children {
		emit := make(chan core.Event, 16)
		branch := fmt.Sprintf("%s.%s", p.Name(), child.Name())
		childRC := rc.NewChildRunContext(emit, branch)
		childRC.Agent = core.AgentInfo{Name: child.Name(), Type: "branch"}

		done := make(chan struct{})
		go func(idx int) {
			defer close(done)
			for ev := range emit {
				buffers[idx] = append(buffers[idx], ev)
			}
		}(i)

		wg.Add(1)
		go func(idx int, a core.Agent) {
			defer wg.Done()
			defer func() { <-done }()
			defer close(emit)
			if step, ok := a.(core.Step); ok {
				if missing := core.MissingReads(step, childRC); len(missing) > 0 {
					p.logger.Warn("skipping branch on missing dependency",
						"pipeline", p.Name(), "branch", a.Name(), "missing", missing)
					return
				}
			}
			if err := a.Run(childRC); err != nil {
				if _, ok := core.AsFailure(err); !ok {
					errs[idx] = fmt.Errorf("branch %s: %w", a.Name(), err)
				}
			}
		}(i, child)
	}
	wg.Wait()

	for _, buf := range buffers {
		for _, ev := range buf {
			select {
			case rc.Emit <- ev:
			case <-rc.Context.Done():
				return rc.Context.Err()
			}
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
