package search

import (
	"encoding/json"
	"time"

	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model"
	"github.com/cyberx-ai/supplymesh/quote"
	"github.com/cyberx-ai/supplymesh/spark"
)

const (
	// ChainName identifies the search coordinator.
	ChainName = "search_and_verify_chain"

	doneMessage       = "供应商搜索与采购流程完成。"
	processingMessage = "正在搜索并验证智能体，请稍候..."

	// DefaultBuyerDID identifies the demo buyer when none is configured.
	DefaultBuyerDID = "did:spark:buyer"
	// DefaultGoods is the demo goods label used in drafted contracts.
	DefaultGoods = "轮胎"
)

// PaymentNotification is an externally executed payment reported back to the
// coordinator instead of a procurement query.
type PaymentNotification struct {
	SenderName        string          `json:"senderName"`
	TransactionResult json.RawMessage `json:"transactionResult"`
}

// ParsePaymentNotification recognizes a payment-result request. Both fields
// must be present.
func ParsePaymentNotification(text string) (*PaymentNotification, bool) {
	var n PaymentNotification
	if err := json.Unmarshal([]byte(text), &n); err != nil {
		return nil, false
	}
	if n.SenderName == "" || len(n.TransactionResult) == 0 {
		return nil, false
	}
	return &n, true
}

// Chain is the supplier discovery coordinator: search the registry, verify
// credentials, collect quotes, draft the contract and pay the winner. A
// payment-notification request short-circuits the pipeline and acknowledges
// the reported transaction.
type Chain struct {
	name     string
	steps    []core.Agent
	pipeline *agent.SequentialAgent
	buyerDID string
	goods    string
	logger   logging.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithBuyerDID sets the buyer identity used in drafted contracts.
func WithBuyerDID(did string) Option {
	return func(c *Chain) { c.buyerDID = did }
}

// WithGoods sets the goods label used in drafted contracts.
func WithGoods(goods string) Option {
	return func(c *Chain) { c.goods = goods }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// NewChain assembles the discovery pipeline over the given model, chain
// client, quote fetcher and wallet. The model drives the routing step that
// matches registry candidates against the user request.
func NewChain(m model.Model, client *spark.Client, fetcher *quote.Fetcher, wallet spark.Wallet, opts ...Option) *Chain {
	c := &Chain{
		name:     ChainName,
		buyerDID: DefaultBuyerDID,
		goods:    DefaultGoods,
		logger:   logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.steps = []core.Agent{
		newSearchStep(client, c.logger),
		newRouterStep(m, c.logger),
		newVerifyStep(client, c.logger),
		newQuoteStep(fetcher, c.logger),
		newContractStep(c.buyerDID, c.goods, c.logger),
		newTradeStep(client, wallet, c.logger),
	}
	c.pipeline = agent.NewSequentialAgent(c.name+"_pipeline", c.steps,
		agent.WithSequentialLogger(c.logger))
	return c
}

// Name implements core.Agent.
func (c *Chain) Name() string { return c.name }

// Description implements core.Agent.
func (c *Chain) Description() string {
	return "供应商发现流程：搜索智能体、验证凭证、收集报价、起草合同并执行支付。"
}

// ProcessingMessage is streamed while the pipeline works on non-content
// events.
func (c *Chain) ProcessingMessage() string { return processingMessage }

// Manifest lists the pipeline roles in execution order.
func (c *Chain) Manifest() []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(c.steps))
	for _, step := range c.steps {
		entries = append(entries, ManifestEntry{Name: step.Name(), Description: step.Description()})
	}
	return entries
}

// ManifestEntry names one pipeline role for the agent listing endpoint.
type ManifestEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Run drives the pipeline, or acknowledges a reported payment when the
// request carries one.
func (c *Chain) Run(rc *core.RunContext) error {
	if notification, ok := ParsePaymentNotification(rc.UserContent.Text()); ok {
		return c.acknowledgePayment(rc, notification)
	}

	if err := c.pipeline.Run(rc); err != nil {
		return err
	}

	message := doneMessage
	if _, routed := rc.GetState(KeyRouteResult); routed && len(decodeCandidates(rc.GetStateString(KeyRouteResult))) == 0 {
		message = "未能匹配到合适的供应商智能体，采购流程终止。"
	} else if result := decodeQuoteResult(rc.GetStateString(KeyQuoteResult)); result.Status == "no_quotes" {
		message = "未收到任何有效报价，采购流程终止。"
	}
	ev := core.NewMessageEvent(c.name, message)
	ev.MarkTerminal()
	return rc.EmitEvent(ev)
}

func (c *Chain) acknowledgePayment(rc *core.RunContext, n *PaymentNotification) error {
	c.logger.Info("payment notification received", "sender", n.SenderName)
	summary, err := json.Marshal(map[string]any{
		"senderName":        n.SenderName,
		"transactionResult": n.TransactionResult,
		"receivedAt":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	rc.SetState(KeyPaymentResult, string(summary))
	ev := core.NewMessageEvent(c.name, string(summary))
	ev.MarkTerminal()
	return rc.EmitEvent(ev)
}
