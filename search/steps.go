package search

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/quote"
	"github.com/cyberx-ai/supplymesh/spark"
)

// searchStep queries the public registry for candidate supplier agents.
type searchStep struct {
	agent.BaseAgent
	client *spark.Client
	logger logging.Logger
}

func newSearchStep(client *spark.Client, logger logging.Logger) *searchStep {
	s := &searchStep{
		BaseAgent: agent.NewBaseAgent("agent_searcher", core.StepDeterministic),
		client:    client,
		logger:    logger,
	}
	s.SetDescription("在公共注册中心搜索候选供应商智能体")
	s.SetContract(nil, KeySearchResult)
	return s
}

func (s *searchStep) Run(rc *core.RunContext) error {
	descriptors, err := s.client.ListAgents(rc.Context)
	if err != nil {
		failure, isFailure := core.AsFailure(err)
		if !isFailure {
			failure = core.NewFailure(core.FailureExternalCall, "%v", err)
		}
		s.logger.Error("registry listing failed", "error", failure.Message)
		if emitErr := rc.EmitEvent(core.NewFailureEvent(s.Name(), failure)); emitErr != nil {
			return emitErr
		}
		return failure
	}

	candidates := make([]Candidate, 0, len(descriptors))
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		candidates = append(candidates, candidateFromDescriptor(d))
		names = append(names, d.Name)
	}
	s.logger.Info("candidates discovered", "count", len(candidates))

	rc.SetState(s.Writes(), encodeCandidates(candidates))
	return rc.EmitEvent(core.NewMessageEvent(s.Name(),
		fmt.Sprintf("找到 %d 个候选供应商：%s", len(candidates), joinNames(names))))
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += "、"
		}
		out += name
	}
	return out
}

// verifyStep checks each candidate's credential against the chain. The
// per-candidate calls carry no shared state and run concurrently; events and
// the verified set follow candidate order. A candidate without a credential
// is skipped with exactly one event, never marked failed.
type verifyStep struct {
	agent.BaseAgent
	client *spark.Client
	logger logging.Logger
}

func newVerifyStep(client *spark.Client, logger logging.Logger) *verifyStep {
	s := &verifyStep{
		BaseAgent: agent.NewBaseAgent("credential_verifier", core.StepDeterministic),
		client:    client,
		logger:    logger,
	}
	s.SetDescription("验证候选供应商的可信凭证")
	s.SetContract([]string{KeyRouteResult}, KeyVerifyResult)
	return s
}

type verifyOutcome struct {
	skipped      bool
	verified     bool
	credentialID string
	err          error
}

func (s *verifyStep) Run(rc *core.RunContext) error {
	candidates := decodeCandidates(rc.GetStateString(KeyRouteResult))

	outcomes := make([]verifyOutcome, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		if candidate.VCContent == "" {
			outcomes[i] = verifyOutcome{skipped: true}
			continue
		}
		wg.Add(1)
		go func(idx int, vcContent string) {
			defer wg.Done()
			result, err := s.client.VerifyVC(rc.Context, vcContent)
			if err != nil {
				outcomes[idx] = verifyOutcome{err: err}
				return
			}
			outcomes[idx] = verifyOutcome{verified: result.Verified, credentialID: result.Credential.ID}
		}(i, candidate.VCContent)
	}
	wg.Wait()

	var verified []Candidate
	for i, candidate := range candidates {
		outcome := outcomes[i]
		switch {
		case outcome.skipped:
			if err := rc.EmitEvent(core.NewMessageEvent(s.Name(),
				fmt.Sprintf("%s 未提供凭证，跳过验证。", candidate.Name))); err != nil {
				return err
			}
		case outcome.err != nil:
			s.logger.Warn("verification call failed", "candidate", candidate.Name, "error", outcome.err)
			if err := rc.EmitEvent(core.NewMessageEvent(s.Name(),
				fmt.Sprintf("%s 凭证验证失败。", candidate.Name))); err != nil {
				return err
			}
		case !outcome.verified:
			if err := rc.EmitEvent(core.NewMessageEvent(s.Name(),
				fmt.Sprintf("%s 凭证验证失败。", candidate.Name))); err != nil {
				return err
			}
		default:
			candidate.CredentialID = outcome.credentialID
			verified = append(verified, candidate)
			if err := rc.EmitEvent(core.NewMessageEvent(s.Name(),
				fmt.Sprintf("%s 凭证验证通过。", candidate.Name))); err != nil {
				return err
			}
		}
	}
	s.logger.Info("verification finished", "candidates", len(candidates), "verified", len(verified))

	rc.SetState(s.Writes(), encodeCandidates(verified))
	// Flush the staged verified set under this step's own authorship.
	return rc.EmitEvent(core.NewEvent("", s.Name()))
}

// quoteStep fetches quotes from all verified suppliers and selects the
// cheapest offer. An empty candidate set is recorded so downstream contract
// and trade steps no-op instead of failing.
type quoteStep struct {
	agent.BaseAgent
	fetcher *quote.Fetcher
	logger  logging.Logger
}

func newQuoteStep(fetcher *quote.Fetcher, logger logging.Logger) *quoteStep {
	s := &quoteStep{
		BaseAgent: agent.NewBaseAgent("quote_collector", core.StepDeterministic),
		fetcher:   fetcher,
		logger:    logger,
	}
	s.SetDescription("向已验证供应商收集报价并选择最优报价")
	s.SetContract([]string{KeyVerifyResult}, KeyQuoteResult)
	return s
}

type quoteResult struct {
	Status     string        `json:"status"` // "selected" or "no_quotes"
	Selected   *quote.Quote  `json:"selected,omitempty"`
	Candidates []quote.Quote `json:"candidates,omitempty"`
}

func (r quoteResult) render() string {
	data, _ := json.Marshal(r)
	return string(data)
}

func decodeQuoteResult(text string) quoteResult {
	var result quoteResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return quoteResult{Status: "no_quotes"}
	}
	return result
}

func (s *quoteStep) Run(rc *core.RunContext) error {
	verified := decodeCandidates(rc.GetStateString(KeyVerifyResult))
	query := rc.UserContent.Text()

	var candidates []quote.Quote
	for _, candidate := range verified {
		text, err := s.fetcher.Fetch(rc.Context, candidate.URL, rc.SessionID, query)
		if err != nil {
			s.logger.Warn("quote fetch failed", "supplier", candidate.Name, "error", err)
			if emitErr := rc.EmitEvent(core.NewMessageEvent(s.Name(),
				fmt.Sprintf("%s 报价获取失败。", candidate.Name))); emitErr != nil {
				return emitErr
			}
			continue
		}
		q, ok := quote.Parse(text, candidate.Name, candidate.WalletAddress)
		if !ok {
			if emitErr := rc.EmitEvent(core.NewMessageEvent(s.Name(),
				fmt.Sprintf("%s 未给出有效报价。", candidate.Name))); emitErr != nil {
				return emitErr
			}
			continue
		}
		candidates = append(candidates, *q)
		if emitErr := rc.EmitEvent(core.NewMessageEvent(s.Name(),
			fmt.Sprintf("%s 报价：总价 %s %s。", q.SupplierName, formatTotal(q.TotalPrice), q.Currency))); emitErr != nil {
			return emitErr
		}
	}

	best, ok := quote.SelectBest(candidates)
	if !ok {
		s.logger.Warn("no valid quotes collected", "verified", len(verified))
		rc.SetState(s.Writes(), quoteResult{Status: "no_quotes"}.render())
		return rc.EmitEvent(core.NewMessageEvent(s.Name(), "未收到任何有效报价，采购流程终止。"))
	}

	s.logger.Info("quote selected", "supplier", best.SupplierName, "total", best.TotalPrice)
	rc.SetState(s.Writes(), quoteResult{Status: "selected", Selected: best, Candidates: candidates}.render())
	return rc.EmitEvent(core.NewMessageEvent(s.Name(),
		fmt.Sprintf("选定报价最低的供应商：%s，总价 %s %s。", best.SupplierName, formatTotal(best.TotalPrice), best.Currency)))
}

func formatTotal(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// tradeStep pays the selected supplier. It no-ops when quote collection
// produced no selection, and records failed receipts without aborting.
type tradeStep struct {
	agent.BaseAgent
	client *spark.Client
	wallet spark.Wallet
	logger logging.Logger
}

func newTradeStep(client *spark.Client, wallet spark.Wallet, logger logging.Logger) *tradeStep {
	s := &tradeStep{
		agent.NewBaseAgent("trade_executor", core.StepDeterministic),
		client, wallet, logger,
	}
	s.SetDescription("向选定供应商执行链上支付")
	s.SetContract([]string{KeyQuoteResult}, KeyTradeResult)
	return s
}

func (s *tradeStep) Run(rc *core.RunContext) error {
	result := decodeQuoteResult(rc.GetStateString(KeyQuoteResult))
	if result.Status != "selected" || result.Selected == nil {
		rc.SetState(s.Writes(), `{"status":"skipped","reason":"无有效报价"}`)
		// Emit a content-less event so the skip record is produced under
		// this step's name rather than riding the next event's author.
		return rc.EmitEvent(core.NewEvent("", s.Name()))
	}

	wallet := s.wallet
	// A caller-supplied wallet overrides the configured one.
	if override := rc.GetStateString("sender_address"); override != "" {
		wallet.SenderAddress = override
	}
	if override := rc.GetStateString("private_key"); override != "" {
		wallet.PrivateKey = override
	}

	receipt, err := s.client.Transfer(rc.Context, wallet.TransferTo(result.Selected.WalletAddress))
	if err != nil {
		failure, isFailure := core.AsFailure(err)
		if !isFailure {
			failure = core.NewFailure(core.FailureExternalCall, "%v", err)
		}
		s.logger.Error("transfer call failed", "supplier", result.Selected.SupplierName, "error", failure.Message)
		rc.SetState(s.Writes(), fmt.Sprintf(`{"status":"failed","reason":%q}`, failure.Message))
		return rc.EmitEvent(core.NewFailureEvent(s.Name(), failure))
	}

	record, _ := json.Marshal(map[string]any{
		"status":  statusForReceipt(receipt),
		"receipt": receipt,
	})
	rc.SetState(s.Writes(), string(record))

	if !receipt.Success {
		s.logger.Warn("payment rejected by chain", "code", receipt.Code)
		return rc.EmitEvent(core.NewMessageEvent(s.Name(),
			fmt.Sprintf("支付失败（code=%d）：%s", receipt.Code, receipt.Message)))
	}
	s.logger.Info("payment completed", "hash", receipt.Hash, "supplier", result.Selected.SupplierName)
	return rc.EmitEvent(core.NewMessageEvent(s.Name(),
		fmt.Sprintf("已向 %s 支付 %d，交易哈希 %s。", result.Selected.SupplierName, receipt.Amount, receipt.Hash)))
}

func statusForReceipt(r *spark.TransactionReceipt) string {
	if r.Success {
		return "completed"
	}
	return "failed"
}
