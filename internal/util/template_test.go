package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_Substitution(t *testing.T) {
	out, err := RenderTemplate("生产计划：{{.plan_result}}", map[string]any{
		"plan_result": "500辆汽车需要2000个轮胎",
	})
	require.NoError(t, err)
	assert.Equal(t, "生产计划：500辆汽车需要2000个轮胎", out)
}

func TestRenderTemplate_NoMarkersFastPath(t *testing.T) {
	out, err := RenderTemplate("plain instruction", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain instruction", out)
}

func TestRenderTemplate_MissingKeyRendersEmpty(t *testing.T) {
	out, err := RenderTemplate("结果：{{.absent}}。", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "结果：。", out)
}

func TestRenderTemplate_Funcs(t *testing.T) {
	out, err := RenderTemplate(`{{upper .code}} {{default "none" .missing}}`, map[string]any{
		"code": "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC none", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{if", nil)
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"array payload", "```json\n[1,2]\n```", `[1,2]`},
		{"plain text untouched", "总价为 960000 元", "总价为 960000 元"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}
