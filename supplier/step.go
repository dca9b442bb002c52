package supplier

import (
	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

// QuoteStep is the deterministic quoting step served by supplierd: parse the
// demand out of the incoming query, price it against the profile, publish
// the structured response as the terminal result.
type QuoteStep struct {
	agent.BaseAgent
	profile Profile
	logger  logging.Logger
}

// NewQuoteStep creates the quoting step for a supplier profile.
func NewQuoteStep(profile Profile, logger logging.Logger) *QuoteStep {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &QuoteStep{
		BaseAgent: agent.NewBaseAgent(profile.Name, core.StepDeterministic),
		profile:   profile,
		logger:    logger,
	}
	s.SetDescription(profile.Name + "：" + profile.Commodity + "报价")
	s.SetContract(nil, "quote_result")
	return s
}

// Profile exposes the supplier parameters (descriptor endpoint).
func (s *QuoteStep) Profile() Profile { return s.profile }

// Run prices the incoming demand query and emits the terminal quote event.
// An unparseable query degrades to a rejection response rather than an
// error.
func (s *QuoteStep) Run(rc *core.RunContext) error {
	query := rc.UserContent.Text()

	var resp Response
	quantity, err := s.profile.ParseDemand(query)
	if err != nil {
		s.logger.Warn("demand parse failed", "supplier", s.profile.Name, "query", query, "error", err)
		resp = Response{
			Status:           "rejected",
			RejectionMessage: "无法从请求中识别需求数量。",
			Message:          s.profile.Name + "：无法从请求中识别需求数量，请说明需要多少辆汽车或多少个" + s.profile.Commodity + "。",
		}
	} else {
		resp = s.profile.Quote(quantity)
		s.logger.Info("quote computed", "supplier", s.profile.Name,
			"quantity", quantity, "status", resp.Status)
	}

	rc.SetState(s.Writes(), resp.Render())
	ev := core.NewMessageEvent(s.Name(), resp.Render())
	ev.MarkTerminal()
	return rc.EmitEvent(ev)
}
