package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

type recordingStep struct {
	BaseAgent
	runs   *[]string
	output string
	err    error
}

func newRecordingStep(name string, runs *[]string, reads []string, writes string) *recordingStep {
	s := &recordingStep{BaseAgent: NewBaseAgent(name, core.StepDeterministic), runs: runs, output: name + "-output"}
	s.SetContract(reads, writes)
	return s
}

func (s *recordingStep) Run(rc *core.RunContext) error {
	*s.runs = append(*s.runs, s.Name())
	if s.err != nil {
		if emitErr := rc.EmitEvent(core.NewFailureEvent(s.Name(), core.NewFailure(core.FailureGeneration, "%s", s.err.Error()))); emitErr != nil {
			return emitErr
		}
		return s.err
	}
	if s.Writes() != "" {
		rc.SetState(s.Writes(), s.output)
	}
	return rc.EmitEvent(core.NewMessageEvent(s.Name(), s.output))
}

func newTestRunContext(t *testing.T, emit chan core.Event) *core.RunContext {
	t.Helper()
	sess := core.NewSession("session-1")
	return core.NewRunContext(
		context.Background(),
		"session-1", "run-1",
		core.AgentInfo{Name: "test", Type: "pipeline"},
		*core.NewTextContent("user", "开始模拟"),
		emit, sess, nil, nil, logging.NoOpLogger{},
	)
}

func drain(emit chan core.Event) []core.Event {
	close(emit)
	var events []core.Event
	for ev := range emit {
		events = append(events, ev)
	}
	return events
}

func TestSequentialAgent_RunsChildrenInOrder(t *testing.T) {
	var runs []string
	first := newRecordingStep("first", &runs, nil, "first_result")
	second := newRecordingStep("second", &runs, []string{"first_result"}, "second_result")

	seq := NewSequentialAgent("pipeline", []core.Agent{first, second})
	emit := make(chan core.Event, 16)
	rc := newTestRunContext(t, emit)

	require.NoError(t, seq.Run(rc))
	assert.Equal(t, []string{"first", "second"}, runs)

	events := drain(emit)
	require.Len(t, events, 2)
	assert.Equal(t, "first", events[0].Author)
	assert.Equal(t, "second", events[1].Author)
	assert.Equal(t, map[string]any{"first_result": "first-output"}, events[0].Actions.StateDelta)
}

func TestSequentialAgent_AbortsOnMissingDependency(t *testing.T) {
	var runs []string
	dependent := newRecordingStep("dependent", &runs, []string{"absent_key"}, "dep_result")
	after := newRecordingStep("after", &runs, nil, "after_result")

	seq := NewSequentialAgent("pipeline", []core.Agent{dependent, after})
	emit := make(chan core.Event, 16)
	rc := newTestRunContext(t, emit)

	require.NoError(t, seq.Run(rc))
	assert.Empty(t, runs, "no child should run after a dependency gap")

	events := drain(emit)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].FailureKind)
	assert.Equal(t, core.FailureMissingDependency, *events[0].FailureKind)
	assert.Contains(t, events[0].Text(), "absent_key")
}

func TestSequentialAgent_StopsAfterStepFailure(t *testing.T) {
	var runs []string
	failing := newRecordingStep("failing", &runs, nil, "fail_result")
	failing.err = core.NewFailure(core.FailureGeneration, "boom")
	after := newRecordingStep("after", &runs, nil, "after_result")

	seq := NewSequentialAgent("pipeline", []core.Agent{failing, after})
	emit := make(chan core.Event, 16)
	rc := newTestRunContext(t, emit)

	require.NoError(t, seq.Run(rc), "step failures stop the pipeline without surfacing an error")
	assert.Equal(t, []string{"failing"}, runs)
}

func TestSequentialAgent_LaterStepSeesEarlierWrite(t *testing.T) {
	var runs []string
	first := newRecordingStep("first", &runs, nil, "first_result")
	second := newRecordingStep("second", &runs, []string{"first_result"}, "second_result")

	seq := NewSequentialAgent("pipeline", []core.Agent{first, second})
	emit := make(chan core.Event, 16)
	rc := newTestRunContext(t, emit)

	require.NoError(t, seq.Run(rc))

	v, ok := rc.Session.GetState("first_result")
	require.True(t, ok)
	assert.Equal(t, "first-output", v)
	producer, ok := rc.Session.Producer("first_result")
	require.True(t, ok)
	assert.Equal(t, "first", producer)
}
