package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ProducerGuard(t *testing.T) {
	s := NewSession("s1")

	require.NoError(t, s.SetState("planner", "plan_result", "500 辆"))

	// The producer may overwrite its own key.
	require.NoError(t, s.SetState("planner", "plan_result", "600 辆"))
	v, ok := s.GetState("plan_result")
	require.True(t, ok)
	assert.Equal(t, "600 辆", v)

	// Any other author is rejected.
	err := s.SetState("transporter", "plan_result", "劫持")
	require.ErrorIs(t, err, ErrKeyOwned)
	v, _ = s.GetState("plan_result")
	assert.Equal(t, "600 辆", v, "value unchanged after rejected write")

	producer, ok := s.Producer("plan_result")
	require.True(t, ok)
	assert.Equal(t, "planner", producer)
}

func TestSession_ApplyStateDeltaIsAtomicPerKey(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.SetState("planner", "plan_result", "x"))

	err := s.ApplyStateDelta("thief", map[string]any{"other": 1, "plan_result": "y"})
	require.ErrorIs(t, err, ErrKeyOwned)

	v, _ := s.GetState("plan_result")
	assert.Equal(t, "x", v)
}

func TestSession_CloneKeepsProducers(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.SetState("planner", "plan_result", "x"))
	s.AddEvent(NewMessageEvent("planner", "计划完成"))

	clone := s.Clone()
	require.ErrorIs(t, clone.SetState("thief", "plan_result", "y"), ErrKeyOwned)
	assert.Len(t, clone.GetEvents(), 1)

	// Mutating the clone leaves the original untouched.
	require.NoError(t, clone.SetState("planner", "plan_result", "z"))
	v, _ := s.GetState("plan_result")
	assert.Equal(t, "x", v)
}

func TestSession_ConversationHistorySkipsPartials(t *testing.T) {
	s := NewSession("s1")
	s.AddEvent(NewUserMessageEvent("run-1", "你好"))
	s.AddEvent(NewPartialEvent("assistant", "正在"))
	s.AddEvent(NewMessageEvent("assistant", "正在处理"))
	control := NewEvent("run-1", "chain")
	s.AddEvent(control)

	history := s.GetConversationHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "你好", history[0].Text())
	assert.Equal(t, "正在处理", history[1].Text())
}

func TestEvent_TerminalAndPartialFlags(t *testing.T) {
	ev := NewMessageEvent("chain", "完成")
	assert.False(t, ev.IsTerminal())
	assert.False(t, ev.IsPartial())

	ev.MarkTerminal()
	assert.True(t, ev.IsTerminal())

	partial := NewPartialEvent("chain", "片段")
	assert.True(t, partial.IsPartial())
}

func TestNewFailureEvent(t *testing.T) {
	f := NewFailure(FailureMissingDependency, "missing %s", "plan_result")
	ev := NewFailureEvent("pipeline", f)

	require.NotNil(t, ev.FailureKind)
	assert.Equal(t, FailureMissingDependency, *ev.FailureKind)
	assert.Contains(t, ev.Text(), "plan_result")
}
