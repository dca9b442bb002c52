package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model"
	"github.com/cyberx-ai/supplymesh/spark"
)

type failingModel struct{}

func (failingModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	errCh <- context.DeadlineExceeded
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (failingModel) Info() model.Info { return model.Info{Name: "failing", Provider: "mock"} }

func chainServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transfer":
			var req spark.TransferRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(map[string]any{
				"code":    code,
				"message": "ok",
				"data": map[string]any{
					"hash":          "0xhash",
					"senderAddress": req.SenderAddress,
					"destAddress":   req.DestAddress,
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func runChain(t *testing.T, chain *Chain, query string) ([]core.Event, *core.Session) {
	t.Helper()
	emit := make(chan core.Event, 16)
	var events []core.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range emit {
			events = append(events, ev)
		}
	}()

	sess := core.NewSession("session-1")
	rc := core.NewRunContext(
		context.Background(),
		"session-1", "run-1",
		core.AgentInfo{Name: chain.Name(), Type: "chain"},
		*core.NewTextContent("user", query),
		emit, sess, nil, nil, logging.NoOpLogger{},
	)

	require.NoError(t, chain.Run(rc))
	close(emit)
	<-done
	return events, sess
}

func terminalEvents(events []core.Event) []core.Event {
	var terminals []core.Event
	for _, ev := range events {
		if ev.IsTerminal() {
			terminals = append(terminals, ev)
		}
	}
	return terminals
}

func TestChain_ProducesFiveHundredVehicleSettlement(t *testing.T) {
	srv := chainServer(t, 0)
	defer srv.Close()

	mock := model.NewMockModel("mock", "mock")
	mock.AddResponse("生产500辆汽车", "生产 500 辆汽车：需要 2000 个轮胎、500 个电池、500 个车架。")

	chain := NewChain(mock, spark.NewClient(srv.URL, srv.URL), spark.Wallet{
		SenderAddress: "0xsender", PrivateKey: "pk", Amount: 1, GasPrice: 1, FeeLimit: 100,
	})
	events, _ := runChain(t, chain, "生产500辆汽车")

	terminals := terminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, terminals[0].ID, events[len(events)-1].ID, "terminal event is last")
	assert.Equal(t, "工厂模拟完成。", terminals[0].Text())

	var sawTireQuote, sawTireTrade bool
	for _, ev := range events {
		if ev.Author == "轮胎供应商" {
			assert.Contains(t, ev.Text(), "总价为 960000 元")
			sawTireQuote = true
		}
		if ev.Author == "tire_trader" {
			assert.Contains(t, ev.Text(), "采购成功")
			sawTireTrade = true
		}
	}
	assert.True(t, sawTireQuote, "tire supplier quote event expected")
	assert.True(t, sawTireTrade, "tire trade event expected")
}

func TestChain_AbortsWithoutProductionPlan(t *testing.T) {
	srv := chainServer(t, 0)
	defer srv.Close()

	chain := NewChain(failingModel{}, spark.NewClient(srv.URL, srv.URL), spark.Wallet{SenderAddress: "0xsender"})
	events, _ := runChain(t, chain, "生产500辆汽车")

	terminals := terminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, "错误：无法生成生产计划，工作流中断。", terminals[0].Text())

	for _, ev := range events {
		assert.NotContains(t, ev.Text(), "总价为", "no supply step may run without a plan")
	}
}

func TestChain_FailedTransferNeverConfirmsPurchase(t *testing.T) {
	srv := chainServer(t, 1001)
	defer srv.Close()

	mock := model.NewMockModel("mock", "mock")
	mock.AddResponse("生产500辆汽车", "生产 500 辆汽车。")

	chain := NewChain(mock, spark.NewClient(srv.URL, srv.URL), spark.Wallet{SenderAddress: "0xsender"})
	events, _ := runChain(t, chain, "生产500辆汽车")

	var sawFailure bool
	for _, ev := range events {
		assert.NotContains(t, ev.Text(), "采购成功")
		if ev.Author == "tire_trader" {
			assert.Contains(t, ev.Text(), "支付失败")
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)
	require.Len(t, terminalEvents(events), 1)
}

func TestChain_ParallelCommoditiesKeepPerCommodityOrder(t *testing.T) {
	srv := chainServer(t, 0)
	defer srv.Close()

	mock := model.NewMockModel("mock", "mock")
	mock.AddResponse("生产500辆汽车", "生产 500 辆汽车。")

	chain := NewChain(mock, spark.NewClient(srv.URL, srv.URL),
		spark.Wallet{SenderAddress: "0xsender"},
		WithParallelCommodities(),
	)
	events, _ := runChain(t, chain, "生产500辆汽车")

	require.Len(t, terminalEvents(events), 1)

	// Within each commodity the quote precedes the trade; with the default
	// commodity set the tire chain's events all precede the battery chain's.
	var order []string
	for _, ev := range events {
		switch ev.Author {
		case "轮胎供应商", "tire_trader", "电池供应商", "battery_trader":
			order = append(order, ev.Author)
		}
	}
	assert.Equal(t, []string{"轮胎供应商", "tire_trader", "电池供应商", "battery_trader"}, order)
}

func TestChain_ManifestListsRolesInPipelineOrder(t *testing.T) {
	mock := model.NewMockModel("mock", "mock")
	chain := NewChain(mock, spark.NewClient("http://chain", "http://registry"), spark.Wallet{})

	manifest := chain.Manifest()
	require.Len(t, manifest, 14)
	assert.Equal(t, "factory_planner", manifest[0].Name)
	assert.Equal(t, "轮胎供应商", manifest[1].Name)
	assert.Equal(t, "tire_trade_summary", manifest[4].Name)
	assert.Equal(t, "settlement_summarizer", manifest[13].Name)
}

func TestChain_TradeSummaryFollowsReceipt(t *testing.T) {
	srv := chainServer(t, 0)
	defer srv.Close()

	mock := model.NewMockModel("mock", "mock")
	mock.AddResponse("生产500辆汽车", "生产 500 辆汽车。")

	chain := NewChain(mock, spark.NewClient(srv.URL, srv.URL), spark.Wallet{SenderAddress: "0xsender", Amount: 1})
	events, sess := runChain(t, chain, "生产500辆汽车")

	receipt, ok := sess.GetState("tire_trade_receipt")
	require.True(t, ok, "trade step records the raw receipt")
	assert.Contains(t, receipt.(string), `"status":"completed"`)
	assert.Contains(t, receipt.(string), "0xhash")

	rendered, ok := sess.GetState("tire_trade_result")
	require.True(t, ok, "trade summary renders the receipt")
	assert.NotEmpty(t, rendered.(string))
	assert.NotEqual(t, receipt, rendered)

	var sawSummary bool
	for i, ev := range events {
		if ev.Author != "tire_trade_summary" {
			continue
		}
		sawSummary = true
		// The summary comes after the trade event in the transcript.
		var tradeIdx int
		for j, prev := range events[:i] {
			if prev.Author == "tire_trader" {
				tradeIdx = j
			}
		}
		assert.Greater(t, i, tradeIdx)
	}
	assert.True(t, sawSummary, "per-commodity trade summary event expected")
}
