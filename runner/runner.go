// Package runner drives chain runs: one in-flight run per session, event
// persistence, cancellation, and the single-terminal-event guarantee.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

// ErrRunInProgress is returned when a second run is requested for a session
// that already has one in flight.
var ErrRunInProgress = errors.New("run already in progress for session")

// SynthesizedTerminalMessage is emitted when a chain run ends without any
// step producing a terminal event.
const SynthesizedTerminalMessage = "处理结束，但未收到最终确认。"

// TerminalSynthesizer produces the content of a synthesized terminal event
// from the post-run session state.
type TerminalSynthesizer func(sess *core.Session) string

// Runner executes chain runs over the backing stores. Events flow from the
// chain through the runner to the caller in production order; the runner
// persists each event and its state delta, admits at most one terminal event
// per run, and synthesizes one if the chain produced none.
type Runner struct {
	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	synthesize    TerminalSynthesizer
	logger        logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithTerminalSynthesizer overrides the content of synthesized terminal
// events.
func WithTerminalSynthesizer(s TerminalSynthesizer) Option {
	return func(r *Runner) { r.synthesize = s }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner over the given stores.
func New(sessionStore core.SessionStore, artifactStore core.ArtifactStore, opts ...Option) *Runner {
	r := &Runner{
		sessionStore:  sessionStore,
		artifactStore: artifactStore,
		synthesize:    func(*core.Session) string { return SynthesizedTerminalMessage },
		logger:        logging.NoOpLogger{},
		active:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts agent a for the session with the given user message and
// optional caller-supplied initial state (e.g. wallet overrides). It returns
// a channel delivering the run's events in production order, closed after
// the single terminal event. A second concurrent run for the same session id
// is rejected with ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, a core.Agent, sessionID, message string, initialState map[string]any) (<-chan core.Event, error) {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if _, inFlight := r.active[sessionID]; inFlight {
		r.mu.Unlock()
		cancel()
		return nil, ErrRunInProgress
	}
	r.active[sessionID] = cancel
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.active, sessionID)
		r.mu.Unlock()
		cancel()
	}

	sess, err := r.sessionStore.Get(sessionID)
	if err != nil {
		release()
		return nil, err
	}

	runID := core.NewID()
	if len(initialState) > 0 {
		if err := r.sessionStore.ApplyDelta(sessionID, "user", initialState); err != nil {
			release()
			return nil, err
		}
		if err := sess.ApplyStateDelta("user", initialState); err != nil {
			release()
			return nil, err
		}
	}

	userEv := core.NewUserMessageEvent(runID, message)
	if err := r.sessionStore.AppendEvent(sessionID, userEv); err != nil {
		release()
		return nil, err
	}
	sess.AddEvent(userEv)

	emit := make(chan core.Event, 16)
	out := make(chan core.Event, 16)
	runErr := make(chan error, 1)

	rc := core.NewRunContext(
		runCtx, sessionID, runID,
		core.AgentInfo{Name: a.Name(), Type: "chain"},
		*core.NewTextContent("user", message),
		emit, sess, r.sessionStore, r.artifactStore, r.logger,
	)

	r.logger.Info("run started", "session", sessionID, "run", runID, "agent", a.Name())

	go func() {
		defer close(emit)
		runErr <- a.Run(rc)
	}()

	go func() {
		defer release()
		defer close(out)

		var sawTerminal bool
		for ev := range emit {
			if ev.IsTerminal() {
				if sawTerminal {
					// The guarantee is one terminal event per run; demote
					// any extras to plain events.
					ev.TurnComplete = nil
				} else {
					sawTerminal = true
				}
			}
			r.persist(sessionID, ev)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		err := <-runErr
		if err != nil {
			r.logger.Error("run failed", "session", sessionID, "run", runID, "error", err)
		} else {
			r.logger.Info("run finished", "session", sessionID, "run", runID)
		}
		if sawTerminal {
			return
		}

		final := r.terminalFor(a, runID, err, sess)
		r.persist(sessionID, final)
		select {
		case out <- final:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

func (r *Runner) terminalFor(a core.Agent, runID string, err error, sess *core.Session) core.Event {
	var ev core.Event
	if err != nil {
		failure, ok := core.AsFailure(err)
		if !ok {
			failure = core.NewFailure(core.FailureExternalCall, "%v", err)
		}
		ev = core.NewFailureEvent(a.Name(), failure)
	} else {
		ev = core.NewMessageEvent(a.Name(), r.synthesize(sess))
	}
	ev.RunID = runID
	ev.MarkTerminal()
	return ev
}

func (r *Runner) persist(sessionID string, ev core.Event) {
	if err := r.sessionStore.AppendEvent(sessionID, ev); err != nil {
		r.logger.Warn("appending event failed", "session", sessionID, "error", err)
	}
	if len(ev.Actions.StateDelta) > 0 {
		if err := r.sessionStore.ApplyDelta(sessionID, ev.Author, ev.Actions.StateDelta); err != nil {
			r.logger.Warn("persisting state delta failed", "session", sessionID,
				"author", ev.Author, "error", err)
		}
	}
}

// Cancel stops the in-flight run for a session, if any. Already-applied
// state and executed payments are left as-is.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.active[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveRuns reports the number of sessions with a run in flight.
func (r *Runner) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
