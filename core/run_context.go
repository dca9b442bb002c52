package core

import (
	"context"
	"fmt"

	"maps"

	"github.com/cyberx-ai/supplymesh/logging"
)

// RunContext carries execution state & helpers for one chain run. It
// encapsulates the mutable, per-run scope passed to an Agent's Run method:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, RunID, Agent info)
//   - Input user Content
//   - The Emit channel delivering events to the runner
//   - Backing stores (session, artifact) for persistence concerns
//   - A working Session snapshot and pending StateDelta to commit
//   - Branch label for nested pipelines
//
// State mutations performed via SetState accumulate in StateDelta until an
// emitted event carries them; EmitEvent also applies the delta to the
// working session snapshot so later steps in the same run observe earlier
// steps' writes immediately.
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	Agent            AgentInfo
	UserContent      Content
	Emit             chan<- Event
	SessionStore     SessionStore
	ArtifactStore    ArtifactStore
	Session          *Session
	StateDelta       map[string]any
	Artifacts        []string
	Branch           string
	Logger           logging.Logger
}

// NewRunContext constructs a RunContext with empty state and artifact deltas.
func NewRunContext(
	ctx context.Context,
	sessionID, runID string,
	agent AgentInfo,
	userContent Content,
	emit chan<- Event,
	sess *Session,
	sessionStore SessionStore,
	artifactStore ArtifactStore,
	logger logging.Logger,
) *RunContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		Emit:          emit,
		Session:       sess,
		SessionStore:  sessionStore,
		ArtifactStore: artifactStore,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Logger:        logger,
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged (delta) value if present, else the working
// session value. The boolean reports whether a value was found.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		return v, true
	}
	if rc.Session != nil {
		return rc.Session.GetState(k)
	}
	return nil, false
}

// GetStateString returns the state value rendered as a string, or "".
func (rc *RunContext) GetStateString(k string) string {
	v, ok := rc.GetState(k)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// SetState stages a state mutation in the in-memory delta buffer. The change
// is carried by the next emitted event.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// StateSnapshot returns a flat copy of the visible state: working session
// values overlaid with staged delta values. Used for prompt template
// rendering.
func (rc *RunContext) StateSnapshot() map[string]any {
	snap := map[string]any{}
	if rc.Session != nil {
		rc.Session.mu.RLock()
		for k, v := range rc.Session.State {
			snap[k] = v
		}
		rc.Session.mu.RUnlock()
	}
	for k, v := range rc.StateDelta {
		snap[k] = v
	}
	return snap
}

// AddArtifact stages an artifact id to be attached to the next emitted event.
func (rc *RunContext) AddArtifact(id string) { rc.Artifacts = append(rc.Artifacts, id) }

// SaveArtifact stores bytes in the ArtifactStore and stages the id for the
// next emitted event.
func (rc *RunContext) SaveArtifact(id string, data []byte) error {
	if rc.ArtifactStore == nil {
		return fmt.Errorf("artifact store not configured")
	}
	if err := rc.ArtifactStore.Save(rc.SessionID, id, data); err != nil {
		return err
	}
	rc.AddArtifact(id)
	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}
	return rc.Session.GetEvents()
}

// NewChildRunContext derives a context for a nested pipeline branch. It
// shares the working session and stores, replaces the Emit channel, resets
// pending buffers, and optionally sets a branch label.
func (rc *RunContext) NewChildRunContext(emit chan<- Event, branch string) *RunContext {
	finalBranch := rc.Branch
	if branch != "" {
		finalBranch = branch
	}
	return &RunContext{
		Context:       rc.Context,
		SessionID:     rc.SessionID,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		Emit:          emit,
		SessionStore:  rc.SessionStore,
		ArtifactStore: rc.ArtifactStore,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Branch:        finalBranch,
		Logger:        rc.Logger,
	}
}

// EmitEvent merges pending StateDelta / Artifacts into ev.Actions, applies
// the delta to the working session (so subsequent steps observe it), sends
// the event on the Emit channel, then resets the buffers. The producer guard
// is enforced here with ev.Author as the writing author; a violation is
// returned to the caller and nothing is emitted.
func (rc *RunContext) EmitEvent(ev Event) error {
	if ev.RunID == "" {
		ev.RunID = rc.RunID
	}
	if ev.Branch == "" {
		ev.Branch = rc.Branch
	}
	if len(rc.StateDelta) > 0 {
		if rc.Session != nil {
			if err := rc.Session.ApplyStateDelta(ev.Author, rc.StateDelta); err != nil {
				return err
			}
		}
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}
	if len(rc.Artifacts) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for _, id := range rc.Artifacts {
			ev.Actions.ArtifactDelta[id] = 1
		}
	}
	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}
	rc.StateDelta = map[string]any{}
	rc.Artifacts = []string{}
	return nil
}
