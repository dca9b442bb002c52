package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/model"
)

func completionServer(t *testing.T, gotAuth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "好的"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4},
		})
	}))
}

func TestNewModel_UsesConfiguredAPIKey(t *testing.T) {
	var gotAuth string
	srv := completionServer(t, &gotAuth)
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "sk-configured"
		o.BaseURL = srv.URL
	})

	respCh, errCh := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{{Role: "user", Parts: []core.Part{core.TextPart{Text: "你好"}}}},
	})
	var final *model.Response
	for resp := range respCh {
		r := resp
		final = &r
	}
	require.NoError(t, <-errCh)

	require.NotNil(t, final)
	assert.Equal(t, "好的", final.Content.Text())
	assert.Equal(t, "Bearer sk-configured", gotAuth)
}
