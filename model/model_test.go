package model

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberx-ai/supplymesh/core"
)

func userContent(text string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}
}

func collect(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()
	var responses []Response
	for resp := range respCh {
		responses = append(responses, resp)
	}
	return responses, <-errCh
}

func TestMockModel_CannedResponse(t *testing.T) {
	m := NewMockModel("test-model", "mock")
	m.AddResponse("生产500辆汽车", "生产计划已生成。")

	respCh, errCh := m.Generate(context.Background(), Request{
		Contents: []core.Content{userContent("生产500辆汽车")},
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Partial)
	assert.Equal(t, "生产计划已生成。", responses[0].Content.Text())
	assert.Equal(t, "stop", responses[0].FinishReason)
}

func TestMockModel_EchoFallback(t *testing.T) {
	m := NewMockModel("test-model", "mock")

	respCh, errCh := m.Generate(context.Background(), Request{
		Contents: []core.Content{userContent("unknown prompt")},
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Content.Text(), "unknown prompt")
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("test-model", "mock")
	m.AddResponse("hi", "hello")

	respCh, errCh := m.Generate(context.Background(), Request{
		Contents: []core.Content{userContent("hi")},
		Stream:   true,
	})
	responses, err := collect(t, respCh, errCh)
	require.NoError(t, err)
	// One partial per rune plus the final response.
	require.Len(t, responses, len("hello")+1)

	var sb strings.Builder
	for _, resp := range responses[:len(responses)-1] {
		assert.True(t, resp.Partial)
		sb.WriteString(resp.Content.Text())
	}
	assert.Equal(t, "hello", sb.String())

	final := responses[len(responses)-1]
	assert.False(t, final.Partial)
	assert.Equal(t, "hello", final.Content.Text())
}

func TestMockModel_EmptyContents(t *testing.T) {
	m := NewMockModel("test-model", "mock")

	respCh, errCh := m.Generate(context.Background(), Request{})
	responses, err := collect(t, respCh, errCh)
	assert.Empty(t, responses)
	assert.Error(t, err)
}

func TestMockModel_Info(t *testing.T) {
	m := NewMockModel("sim-model", "mock")
	assert.Equal(t, Info{Name: "sim-model", Provider: "mock"}, m.Info())
}
