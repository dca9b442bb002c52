package search

import (
	"encoding/json"
	"fmt"

	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model"
)

const routerInstruction = `你是智能体发现专家。根据对话中的用户请求，从以下候选智能体列表（JSON）中找出与需求相关的智能体名称：
{{.search_result}}

输出一个 JSON 对象，格式如 {"selected_agents": ["名称1", "名称2"]}。
如果没有匹配的智能体，返回 {"selected_agents": []}。
不要在 JSON 对象之外输出任何内容。`

const routerNoMatchMessage = "根据您的请求，未能匹配到合适的供应商智能体。"

type routerSelection struct {
	SelectedAgents []string `json:"selected_agents"`
}

// routerStep semantically matches registry candidates against the user
// request. A generative selection produces the matched agent names; only
// those candidates continue to verification. An empty selection aborts the
// pipeline with one explanatory event.
type routerStep struct {
	agent.BaseAgent
	prompt *agent.PromptAgent
	logger logging.Logger
}

func newRouterStep(m model.Model, logger logging.Logger) *routerStep {
	s := &routerStep{
		BaseAgent: agent.NewBaseAgent("agent_router", core.StepGenerative),
		logger:    logger,
	}
	s.SetDescription("根据用户需求从候选智能体中匹配相关供应商")
	s.SetContract([]string{KeySearchResult}, KeyRouteResult)
	s.prompt = agent.NewPromptAgent(s.Name(), m,
		agent.WithInstruction(routerInstruction),
		agent.WithContract([]string{KeySearchResult}, KeyRouterSelection),
		agent.WithJSONOutput(),
		agent.WithRequired(),
		agent.WithPromptLogger(logger),
	)
	return s
}

func (s *routerStep) Run(rc *core.RunContext) error {
	if err := s.prompt.Run(rc); err != nil {
		return err
	}

	var selection routerSelection
	if err := json.Unmarshal([]byte(rc.GetStateString(KeyRouterSelection)), &selection); err != nil {
		s.logger.Warn("selection parse failed", "error", err)
	}
	wanted := make(map[string]bool, len(selection.SelectedAgents))
	for _, name := range selection.SelectedAgents {
		wanted[name] = true
	}

	var routed []Candidate
	names := make([]string, 0, len(wanted))
	for _, candidate := range decodeCandidates(rc.GetStateString(KeySearchResult)) {
		if wanted[candidate.Name] {
			routed = append(routed, candidate)
			names = append(names, candidate.Name)
		}
	}

	if len(routed) == 0 {
		s.logger.Warn("no candidates matched the request")
		rc.SetState(s.Writes(), encodeCandidates(nil))
		if err := rc.EmitEvent(core.NewMessageEvent(s.Name(), routerNoMatchMessage)); err != nil {
			return err
		}
		return core.NewFailure(core.FailureGeneration, "no agents matched the request")
	}

	s.logger.Info("candidates routed", "selected", len(routed))
	rc.SetState(s.Writes(), encodeCandidates(routed))
	return rc.EmitEvent(core.NewMessageEvent(s.Name(),
		fmt.Sprintf("已匹配到 %d 个相关供应商智能体：%s", len(routed), joinNames(names))))
}
