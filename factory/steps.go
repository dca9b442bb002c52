package factory

import (
	"encoding/json"
	"fmt"

	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/quote"
	"github.com/cyberx-ai/supplymesh/spark"
	"github.com/cyberx-ai/supplymesh/supplier"
)

// supplyStep prices one commodity's demand against its supplier profile and
// records the structured quote under the commodity's supply key.
type supplyStep struct {
	agent.BaseAgent
	commodity Commodity
	logger    logging.Logger
}

func newSupplyStep(c Commodity, logger logging.Logger) *supplyStep {
	s := &supplyStep{
		BaseAgent: agent.NewBaseAgent(c.Profile.Name, core.StepDeterministic),
		commodity: c,
		logger:    logger,
	}
	s.SetDescription(c.Profile.Name + "：根据生产计划报价" + c.Label)
	s.SetContract([]string{KeyPlanResult}, c.SupplyKey())
	return s
}

func (s *supplyStep) Run(rc *core.RunContext) error {
	query := rc.UserContent.Text()
	quantity, err := s.commodity.Profile.ParseDemand(query)
	if err != nil {
		// The raw query may omit the count; fall back to the plan text.
		quantity, err = s.commodity.Profile.ParseDemand(rc.GetStateString(KeyPlanResult))
	}

	var resp supplier.Response
	if err != nil {
		s.logger.Warn("demand parse failed", "commodity", s.commodity.Key, "error", err)
		resp = supplier.Response{
			Status:           "rejected",
			RejectionMessage: "无法从生产计划中识别需求数量。",
			Message:          s.Name() + "：无法从生产计划中识别需求数量。",
		}
	} else {
		resp = s.commodity.Profile.Quote(quantity)
		s.logger.Info("commodity quoted", "commodity", s.commodity.Key,
			"quantity", quantity, "status", resp.Status)
	}

	rc.SetState(s.Writes(), resp.Render())
	return rc.EmitEvent(core.NewMessageEvent(s.Name(), resp.Message))
}

// tradeStep executes the simulated payment for one commodity based on its
// quote, recording a receipt under the commodity's receipt key. Failed
// transfers become failed receipts and failure events, never aborts.
type tradeStep struct {
	agent.BaseAgent
	commodity Commodity
	client    *spark.Client
	wallet    spark.Wallet
	logger    logging.Logger
}

func newTradeStep(c Commodity, client *spark.Client, wallet spark.Wallet, logger logging.Logger) *tradeStep {
	s := &tradeStep{
		BaseAgent: agent.NewBaseAgent(c.Key+"_trader", core.StepDeterministic),
		commodity: c,
		client:    client,
		wallet:    wallet,
		logger:    logger,
	}
	s.SetDescription(c.Label + "采购交易执行")
	s.SetContract([]string{c.SupplyKey()}, c.ReceiptKey())
	return s
}

type tradeRecord struct {
	Status  string                    `json:"status"` // "completed", "failed", "skipped"
	Receipt *spark.TransactionReceipt `json:"receipt,omitempty"`
	Reason  string                    `json:"reason,omitempty"`
}

func (r tradeRecord) render() string {
	data, _ := json.Marshal(r)
	return string(data)
}

func (s *tradeStep) Run(rc *core.RunContext) error {
	supplyText := rc.GetStateString(s.commodity.SupplyKey())
	q, ok := quote.Parse(supplyText, s.commodity.Profile.Name, s.commodity.Profile.WalletAddress)
	if !ok {
		s.logger.Info("no confirmed quote, skipping trade", "commodity", s.commodity.Key)
		rc.SetState(s.Writes(), tradeRecord{Status: "skipped", Reason: "无有效报价"}.render())
		return rc.EmitEvent(core.NewMessageEvent(s.Name(),
			fmt.Sprintf("%s报价未确认，跳过采购交易。", s.commodity.Label)))
	}

	receipt, err := s.client.Transfer(rc.Context, s.wallet.TransferTo(q.WalletAddress))
	if err != nil {
		failure, isFailure := core.AsFailure(err)
		if !isFailure {
			failure = core.NewFailure(core.FailureExternalCall, "%v", err)
		}
		s.logger.Error("transfer call failed", "commodity", s.commodity.Key, "error", failure.Message)
		rc.SetState(s.Writes(), tradeRecord{Status: "failed", Reason: failure.Message}.render())
		return rc.EmitEvent(core.NewFailureEvent(s.Name(), failure))
	}

	if !receipt.Success {
		s.logger.Warn("transfer rejected by chain", "commodity", s.commodity.Key,
			"code", receipt.Code, "message", receipt.Message)
		rc.SetState(s.Writes(), tradeRecord{Status: "failed", Receipt: receipt, Reason: receipt.Message}.render())
		return rc.EmitEvent(core.NewMessageEvent(s.Name(),
			fmt.Sprintf("%s采购支付失败（code=%d）：%s", s.commodity.Label, receipt.Code, receipt.Message)))
	}

	s.logger.Info("trade completed", "commodity", s.commodity.Key, "hash", receipt.Hash)
	rc.SetState(s.Writes(), tradeRecord{Status: "completed", Receipt: receipt}.render())
	return rc.EmitEvent(core.NewMessageEvent(s.Name(),
		fmt.Sprintf("%s采购成功，交易哈希 %s，金额 %d。", s.commodity.Label, receipt.Hash, receipt.Amount)))
}
