// Package factory implements the automotive factory supply-chain pipeline:
// a planning step, three commodity sub-chains (supply quote, transport plan,
// trade execution, trade summary) and a settlement summary, all over one
// shared session.
package factory

import (
	"fmt"

	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model"
	"github.com/cyberx-ai/supplymesh/spark"
)

// State keys produced by the top-level steps.
const (
	KeyPlanResult    = "plan_result"
	KeySummaryResult = "summary_result"
)

const (
	// ChainName identifies the factory coordinator.
	ChainName = "factory_chain"

	planAbortMessage  = "错误：无法生成生产计划，工作流中断。"
	doneMessage       = "工厂模拟完成。"
	processingMessage = "工厂正在运转，请稍候..."

	settlementArtifactID = "settlement_summary"
)

const plannerInstruction = `你是汽车工厂的生产计划专家。根据用户提出的生产目标，输出一份简明的生产计划：
1. 明确需要生产的汽车数量（格式如 "500 辆"）。
2. 给出各组件需求：轮胎（每辆 4 个）、电池（每辆 1 个）、车架（每辆 1 个），格式如 "2000 个轮胎"。
直接输出计划文本，不要附加解释。`

const summaryInstruction = `你是工厂结算专家。以下是三条供应链的交易结果，请汇总成一份结算摘要，说明每个组件的采购状态、金额与交易哈希（如有）：
轮胎：{{.tire_trade_result}}
电池：{{.battery_trade_result}}
车架：{{.frame_trade_result}}`

// ManifestEntry names one pipeline role for the agent listing endpoint.
type ManifestEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Chain is the factory coordinator pipeline. The planning step is required:
// without a production plan the chain aborts with a single explanatory
// terminal event. The three commodity sub-chains are data-independent and
// run sequentially by default; WithParallelCommodities fans them out.
type Chain struct {
	name           string
	commodities    []Commodity
	planner        *agent.PromptAgent
	commodityPipes []core.Agent
	summary        *agent.PromptAgent
	parallel       bool
	logger         logging.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithCommodities replaces the default commodity set.
func WithCommodities(commodities []Commodity) Option {
	return func(c *Chain) { c.commodities = commodities }
}

// WithParallelCommodities runs the commodity sub-chains concurrently. Event
// order stays deterministic per commodity.
func WithParallelCommodities() Option {
	return func(c *Chain) { c.parallel = true }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// NewChain assembles the factory pipeline over the given model, chain client
// and wallet.
func NewChain(m model.Model, client *spark.Client, wallet spark.Wallet, opts ...Option) *Chain {
	c := &Chain{
		name:        ChainName,
		commodities: DefaultCommodities(),
		logger:      logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.planner = agent.NewPromptAgent("factory_planner", m,
		agent.WithInstruction(plannerInstruction),
		agent.WithContract(nil, KeyPlanResult),
		agent.WithRequired(),
		agent.WithHistory(),
		agent.WithPromptLogger(c.logger),
	)

	summaryReads := make([]string, 0, len(c.commodities))
	for _, commodity := range c.commodities {
		c.commodityPipes = append(c.commodityPipes, c.buildCommodityPipe(commodity, m, client, wallet))
		summaryReads = append(summaryReads, commodity.TradeKey())
	}

	c.summary = agent.NewPromptAgent("settlement_summarizer", m,
		agent.WithInstruction(summaryInstruction),
		agent.WithContract(summaryReads, KeySummaryResult),
		agent.WithStreaming(),
		agent.WithPromptLogger(c.logger),
	)
	return c
}

func (c *Chain) buildCommodityPipe(commodity Commodity, m model.Model, client *spark.Client, wallet spark.Wallet) core.Agent {
	transport := agent.NewPromptAgent(commodity.Key+"_transporter", m,
		agent.WithInstruction(fmt.Sprintf(
			"你是物流专家。根据以下%s报价结果安排运输方案，简要说明运输方式与时效：\n{{.%s}}",
			commodity.Label, commodity.SupplyKey())),
		agent.WithContract([]string{commodity.SupplyKey()}, commodity.TransportKey()),
		agent.WithPromptLogger(c.logger),
	)
	tradeSummary := agent.NewPromptAgent(commodity.Key+"_trade_summary", m,
		agent.WithInstruction(fmt.Sprintf(
			"你是交易结算专员。根据以下%s采购交易回执（JSON），用一段中文说明支付结果、金额与交易哈希（如有）：\n{{.%s}}",
			commodity.Label, commodity.ReceiptKey())),
		agent.WithContract([]string{commodity.ReceiptKey()}, commodity.TradeKey()),
		agent.WithPromptLogger(c.logger),
	)
	return agent.NewSequentialAgent(commodity.Key+"_supply_chain", []core.Agent{
		newSupplyStep(commodity, c.logger),
		transport,
		newTradeStep(commodity, client, wallet, c.logger),
		tradeSummary,
	}, agent.WithSequentialLogger(c.logger))
}

// Name implements core.Agent.
func (c *Chain) Name() string { return c.name }

// Description implements core.Agent.
func (c *Chain) Description() string {
	return "汽车工厂供应链模拟：生产计划、组件采购、运输安排与交易结算。"
}

// ProcessingMessage is streamed while the pipeline works on non-content
// events.
func (c *Chain) ProcessingMessage() string { return processingMessage }

// Manifest lists the pipeline roles in execution order.
func (c *Chain) Manifest() []ManifestEntry {
	entries := []ManifestEntry{{Name: c.planner.Name(), Description: c.planner.Description()}}
	for _, pipe := range c.commodityPipes {
		if seq, ok := pipe.(*agent.SequentialAgent); ok {
			for _, child := range seq.Children() {
				entries = append(entries, ManifestEntry{Name: child.Name(), Description: child.Description()})
			}
		}
	}
	entries = append(entries, ManifestEntry{Name: c.summary.Name(), Description: c.summary.Description()})
	return entries
}

// Run drives the pipeline: plan, commodity sub-chains, settlement summary,
// terminal event.
func (c *Chain) Run(rc *core.RunContext) error {
	if err := c.planner.Run(rc); err != nil {
		if _, ok := core.AsFailure(err); !ok {
			return err
		}
	}
	if rc.GetStateString(KeyPlanResult) == "" {
		c.logger.Warn("no production plan, aborting", "session", rc.SessionID)
		ev := core.NewMessageEvent(c.name, planAbortMessage)
		ev.MarkTerminal()
		return rc.EmitEvent(ev)
	}

	if c.parallel {
		fanout := agent.NewParallelAgent("commodity_chains", c.commodityPipes,
			agent.WithParallelLogger(c.logger))
		if err := fanout.Run(rc); err != nil {
			return err
		}
	} else {
		for _, pipe := range c.commodityPipes {
			if err := pipe.Run(rc); err != nil {
				return err
			}
		}
	}

	if err := c.summary.Run(rc); err != nil {
		if _, ok := core.AsFailure(err); !ok {
			return err
		}
	}

	if summary := rc.GetStateString(KeySummaryResult); summary != "" {
		if err := rc.SaveArtifact(settlementArtifactID, []byte(summary)); err != nil {
			c.logger.Warn("saving settlement artifact failed", "session", rc.SessionID, "error", err)
		}
	}

	ev := core.NewMessageEvent(c.name, doneMessage)
	ev.MarkTerminal()
	return rc.EmitEvent(ev)
}
