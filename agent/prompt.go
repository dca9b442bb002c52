package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/internal/util"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/model"
)

// DefaultGenerationTimeout bounds a single model call.
const DefaultGenerationTimeout = 120 * time.Second

// PromptAgent is a generative step: it renders its instruction template over
// the current state snapshot, invokes the model, streams partial fragments as
// events, and writes the final output under its declared write key.
//
// In JSON mode the model output is stripped of code fences and parsed; a
// parse failure is converted into a structured rejection object carrying the
// raw text so downstream steps still receive a well-formed value.
type PromptAgent struct {
	BaseAgent
	model       model.Model
	instruction *Instruction
	required    bool
	stream      bool
	jsonOutput  bool
	withHistory bool
	timeout     time.Duration
	logger      logging.Logger
}

// PromptOption configures a PromptAgent.
type PromptOption func(*PromptAgent)

// WithInstruction sets a static instruction template. The template is
// rendered against the state snapshot, so earlier steps' outputs are
// addressable as {{.key}}.
func WithInstruction(text string) PromptOption {
	return func(p *PromptAgent) { p.instruction = NewInstruction(text) }
}

// WithInstructionProvider sets a dynamic instruction.
func WithInstructionProvider(provider InstructionProvider) PromptOption {
	return func(p *PromptAgent) { p.instruction = NewProviderInstruction(provider) }
}

// WithContract declares the read keys and the output key for this step.
func WithContract(reads []string, writes string) PromptOption {
	return func(p *PromptAgent) { p.SetContract(reads, writes) }
}

// WithRequired marks the step as required for continuation: a generation
// failure aborts the enclosing pipeline instead of degrading to a rejection.
func WithRequired() PromptOption {
	return func(p *PromptAgent) { p.required = true }
}

// WithStreaming enables partial-fragment events while the model generates.
func WithStreaming() PromptOption {
	return func(p *PromptAgent) { p.stream = true }
}

// WithJSONOutput enables structured-output mode with the rejection fallback.
func WithJSONOutput() PromptOption {
	return func(p *PromptAgent) { p.jsonOutput = true }
}

// WithHistory includes the session conversation history in the model request
// in addition to the current user input.
func WithHistory() PromptOption {
	return func(p *PromptAgent) { p.withHistory = true }
}

// WithGenerationTimeout overrides the per-call deadline.
func WithGenerationTimeout(d time.Duration) PromptOption {
	return func(p *PromptAgent) { p.timeout = d }
}

// WithPromptLogger sets the logger used for step diagnostics.
func WithPromptLogger(logger logging.Logger) PromptOption {
	return func(p *PromptAgent) { p.logger = logger }
}

// NewPromptAgent creates a generative step bound to the given model.
func NewPromptAgent(name string, m model.Model, opts ...PromptOption) *PromptAgent {
	p := &PromptAgent{
		BaseAgent: NewBaseAgent(name, core.StepGenerative),
		model:     m,
		timeout:   DefaultGenerationTimeout,
		logger:    logging.NoOpLogger{},
	}
	p.SetDescription(fmt.Sprintf("Generative step %s", name))
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run renders the instruction, calls the model and publishes the result.
func (p *PromptAgent) Run(rc *core.RunContext) error {
	instruction := p.instruction.Resolve(rc)
	rendered, err := util.RenderTemplate(instruction, rc.StateSnapshot())
	if err != nil {
		return p.fail(rc, core.NewFailure(core.FailureGeneration,
			"instruction template for %s: %v", p.Name(), err))
	}

	contents := p.buildContents(rc)
	ctx, cancel := context.WithTimeout(rc.Context, p.timeout)
	defer cancel()

	respCh, errCh := p.model.Generate(ctx, model.Request{
		Instructions: rendered,
		Contents:     contents,
		Stream:       p.stream,
	})

	var final string
	for resp := range respCh {
		if resp.Partial {
			if p.stream {
				if emitErr := rc.EmitEvent(core.NewPartialEvent(p.Name(), resp.Content.Text())); emitErr != nil {
					return emitErr
				}
			}
			continue
		}
		final = resp.Content.Text()
	}
	if genErr := <-errCh; genErr != nil {
		kind := core.FailureGeneration
		if errors.Is(genErr, context.DeadlineExceeded) {
			kind = core.FailureTimeout
		}
		return p.fail(rc, core.NewFailure(kind, "model call for %s: %v", p.Name(), genErr))
	}

	output := final
	if p.jsonOutput {
		output = p.parseStructured(final)
	}
	if key := p.Writes(); key != "" {
		rc.SetState(key, output)
	}

	p.logger.Debug("generative step completed", "step", p.Name(), "model", p.model.Info().Name)
	return rc.EmitEvent(core.NewMessageEvent(p.Name(), final))
}

// parseStructured validates the model text as a JSON object, returning a
// canonical compact encoding, or a rejection object wrapping the raw text.
func (p *PromptAgent) parseStructured(text string) string {
	cleaned := util.StripCodeFence(text)
	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		if compact, mErr := json.Marshal(parsed); mErr == nil {
			return string(compact)
		}
	}
	p.logger.Warn("structured output parse failed, degrading to rejection",
		"step", p.Name())
	fallback, _ := json.Marshal(map[string]any{
		"status":            "rejected",
		"rejection_message": "输出格式无效，无法解析为结构化结果。",
		"details":           text,
	})
	return string(fallback)
}

// fail records the failure as an event. Required steps propagate the failure
// so the enclosing pipeline stops; optional JSON steps degrade to a rejection
// value under their write key.
func (p *PromptAgent) fail(rc *core.RunContext, f *core.Failure) error {
	p.logger.Error("generative step failed", "step", p.Name(),
		"kind", string(f.Kind), "error", f.Message)
	if !p.required && p.jsonOutput {
		if key := p.Writes(); key != "" {
			fallback, _ := json.Marshal(map[string]any{
				"status":            "rejected",
				"rejection_message": f.Message,
			})
			rc.SetState(key, string(fallback))
		}
	}
	if err := rc.EmitEvent(core.NewFailureEvent(p.Name(), f)); err != nil {
		return err
	}
	if p.required {
		return f
	}
	return nil
}

func (p *PromptAgent) buildContents(rc *core.RunContext) []core.Content {
	if p.withHistory {
		history := rc.Session.GetConversationHistory()
		contents := make([]core.Content, 0, len(history))
		for _, ev := range history {
			if ev.Content != nil {
				contents = append(contents, *ev.Content)
			}
		}
		if len(contents) > 0 {
			return contents
		}
	}
	return []core.Content{rc.UserContent}
}
