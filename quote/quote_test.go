package quote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StructuredConfirmed(t *testing.T) {
	text := `{"status":"confirmed","quote":{"unit_price":500,"total_price":1000000,"currency":"元","supplier_name":"轮胎供应商A","wallet_address":"0xaaa"}}`

	q, ok := Parse(text, "fallback", "0xfallback")
	require.True(t, ok)
	assert.Equal(t, 500.0, q.UnitPrice)
	assert.Equal(t, 1000000.0, q.TotalPrice)
	assert.Equal(t, "轮胎供应商A", q.SupplierName)
	assert.Equal(t, "0xaaa", q.WalletAddress)
}

func TestParse_StructuredRoundTrip(t *testing.T) {
	original := map[string]any{
		"status": "confirmed",
		"quote":  map[string]any{"unit_price": 500.0, "total_price": 1000000.0},
	}
	encoded, err := json.Marshal(original)
	require.NoError(t, err)

	q, ok := Parse(string(encoded), "供应商", "0xabc")
	require.True(t, ok)
	assert.Equal(t, 500.0, q.UnitPrice)
	assert.Equal(t, 1000000.0, q.TotalPrice)
}

func TestParse_CodeFencedStructured(t *testing.T) {
	text := "```json\n{\"status\":\"confirmed\",\"quote\":{\"unit_price\":480,\"total_price\":960000}}\n```"

	q, ok := Parse(text, "供应商B", "0xbbb")
	require.True(t, ok)
	assert.Equal(t, 960000.0, q.TotalPrice)
	assert.Equal(t, "供应商B", q.SupplierName, "omitted name falls back to the caller's")
}

func TestParse_RejectionIsNeverACandidate(t *testing.T) {
	cases := []string{
		`{"status":"rejected","rejection_message":"库存不足"}`,
		`{"status":"confirmed","quote":{"unit_price":0,"total_price":0}}`,
		"抱歉，库存不足，无法报价。",
	}
	for _, text := range cases {
		_, ok := Parse(text, "供应商", "0x0")
		assert.False(t, ok, "text %q must not yield a candidate", text)
	}
}

func TestParse_FreeTextFallback(t *testing.T) {
	q, ok := Parse("好的，2000 个轮胎的总价为 960000 元。", "轮胎供应商A", "0xaaa")
	require.True(t, ok)
	assert.Equal(t, 960000.0, q.TotalPrice)
	assert.Equal(t, "元", q.Currency)
	assert.Equal(t, "轮胎供应商A", q.SupplierName)

	q, ok = Parse("总价为 1200 星火令", "供应商C", "0xccc")
	require.True(t, ok)
	assert.Equal(t, "星火令", q.Currency)
	assert.Equal(t, 1200.0, q.TotalPrice)
}

func TestSelectBest_FirstMinimalWins(t *testing.T) {
	candidates := []Quote{
		{SupplierName: "A", TotalPrice: 500},
		{SupplierName: "B", TotalPrice: 300},
		{SupplierName: "C", TotalPrice: 300},
	}
	best, ok := SelectBest(candidates)
	require.True(t, ok)
	assert.Equal(t, "B", best.SupplierName)
}

func TestSelectBest_Empty(t *testing.T) {
	_, ok := SelectBest(nil)
	assert.False(t, ok)
}
