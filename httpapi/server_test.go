package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberx-ai/supplymesh/artifact"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/runner"
	"github.com/cyberx-ai/supplymesh/session"
)

type echoChain struct{ terminal bool }

func (echoChain) Name() string        { return "echo_chain" }
func (echoChain) Description() string { return "echoes the input" }
func (e echoChain) Run(rc *core.RunContext) error {
	if err := rc.EmitEvent(core.NewMessageEvent("echo", "收到："+rc.UserContent.Text())); err != nil {
		return err
	}
	if e.terminal {
		ev := core.NewMessageEvent("echo", "完成")
		ev.MarkTerminal()
		return rc.EmitEvent(ev)
	}
	return nil
}

func newTestServer(t *testing.T, chain core.Agent, agents []AgentSummary) *Server {
	t.Helper()
	store := session.NewInMemoryStore()
	t.Cleanup(store.Close)

	srv, err := NewServer(Config{
		Card: AgentCard{
			Name:               "echo_chain",
			Description:        "echoes the input",
			URL:                "http://localhost:10005/",
			Version:            "1.0.0",
			DefaultInputModes:  DefaultModes,
			DefaultOutputModes: DefaultModes,
			Capabilities:       Capabilities{Streaming: true},
			Skills: []Skill{{
				ID: "echo", Name: "回声", Description: "重复输入",
				Tags: []string{"demo"}, Examples: []string{"你好"},
			}},
		},
		Chain:             chain,
		ProcessingMessage: "处理中...",
		Runner:            runner.New(store, artifact.NewInMemoryStore()),
		MessagePath:       "/AgentApi/getmessages/",
		Agents:            agents,
	})
	require.NoError(t, err)
	return srv
}

func postMessage(t *testing.T, handler http.Handler, contextID, text string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"params": map[string]any{
			"message": map[string]any{
				"contextId": contextID,
				"parts":     []map[string]any{{"text": text}},
			},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/AgentApi/getmessages/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeFrames(t *testing.T, body io.Reader) []Frame {
	t.Helper()
	var frames []Frame
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var frame Frame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestServer_DescriptorIsByteIdentical(t *testing.T) {
	srv := newTestServer(t, echoChain{terminal: true}, nil)

	read := func() []byte {
		req := httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.Bytes()
	}

	first := read()
	second := read()
	assert.Equal(t, first, second)

	var card AgentCard
	require.NoError(t, json.Unmarshal(first, &card))
	assert.Equal(t, "echo_chain", card.Name)
	assert.True(t, card.Capabilities.Streaming)
	require.Len(t, card.Skills, 1)
}

func TestServer_StreamEndsWithSingleTerminalFrame(t *testing.T) {
	srv := newTestServer(t, echoChain{terminal: true}, nil)

	rec := postMessage(t, srv.Handler(), "ctx-1", "你好")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	frames := decodeFrames(t, rec.Body)
	require.Len(t, frames, 2)
	assert.False(t, frames[0].IsTaskComplete)
	assert.Equal(t, "收到：你好", frames[0].Content)
	assert.True(t, frames[1].IsTaskComplete)

	var terminals int
	for _, f := range frames {
		if f.IsTaskComplete {
			terminals = terminals + 1
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestServer_SynthesizedTerminalFrame(t *testing.T) {
	srv := newTestServer(t, echoChain{terminal: false}, nil)

	rec := postMessage(t, srv.Handler(), "ctx-1", "你好")
	frames := decodeFrames(t, rec.Body)
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	assert.True(t, last.IsTaskComplete)
	assert.Equal(t, runner.SynthesizedTerminalMessage, last.Content)
}

func TestServer_AgentListing(t *testing.T) {
	agents := []AgentSummary{
		{Name: "factory_planner", Description: "生产计划"},
		{Name: "轮胎供应商", Description: "轮胎报价"},
	}
	srv := newTestServer(t, echoChain{terminal: true}, agents)

	req := httptest.NewRequest(http.MethodGet, "/AgentApi/agents", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TotalAgents int            `json:"total_agents"`
		Agents      []AgentSummary `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalAgents)
	assert.Equal(t, "factory_planner", resp.Agents[0].Name)
}

func TestServer_RejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, echoChain{terminal: true}, nil)
	rec := postMessage(t, srv.Handler(), "ctx-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, echoChain{terminal: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
