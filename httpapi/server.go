// Package httpapi serves the per-agent HTTP surface: the descriptor
// endpoint, the streaming message endpoint and the pipeline role listing.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
	"github.com/cyberx-ai/supplymesh/runner"
)

// AgentSummary names one pipeline role for the listing endpoint.
type AgentSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Config assembles a Server.
type Config struct {
	Card              AgentCard
	Chain             core.Agent
	ProcessingMessage string
	Runner            *runner.Runner

	// MessagePath is the streaming endpoint path: /AgentApi/getmessages/
	// for coordinators, / for suppliers.
	MessagePath string

	// Agents enables GET /AgentApi/agents with the given roles.
	Agents []AgentSummary

	Logger logging.Logger
}

// Server is the HTTP front of one agent service.
type Server struct {
	engine     *gin.Engine
	runner     *runner.Runner
	chain      core.Agent
	processing string
	cardBytes  []byte
	agents     []AgentSummary
	logger     logging.Logger
}

// NewServer builds the routed server. The agent card is rendered once so
// descriptor reads stay byte-identical.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Chain == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("httpapi: chain and runner are required")
	}
	cardBytes, err := json.Marshal(cfg.Card)
	if err != nil {
		return nil, fmt.Errorf("render agent card: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	messagePath := cfg.MessagePath
	if messagePath == "" {
		messagePath = "/"
	}

	s := &Server{
		runner:     cfg.Runner,
		chain:      cfg.Chain,
		processing: cfg.ProcessingMessage,
		cardBytes:  cardBytes,
		agents:     cfg.Agents,
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/.well-known/agent.json", s.handleCard)
	engine.GET("/healthz", s.handleHealth)
	engine.POST(messagePath, s.handleMessages)
	if len(s.agents) > 0 {
		engine.GET("/AgentApi/agents", s.handleAgents)
	}

	s.engine = engine
	return s, nil
}

// Handler exposes the routed handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr, "agent", s.chain.Name())
	return s.engine.Run(addr)
}

func (s *Server) handleCard(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", s.cardBytes)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_agents": len(s.agents),
		"agents":       s.agents,
	})
}

type messageRequest struct {
	Params struct {
		Message struct {
			ContextID string `json:"contextId"`
			Parts     []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"message"`
		SenderAddress string `json:"senderAddress"`
		PrivateKey    string `json:"privateKey"`
	} `json:"params"`
}

func (s *Server) handleMessages(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	text := ""
	for _, part := range req.Params.Message.Parts {
		text += part.Text
	}
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}

	sessionID := req.Params.Message.ContextID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	initialState := map[string]any{}
	if req.Params.SenderAddress != "" {
		initialState["sender_address"] = req.Params.SenderAddress
	}
	if req.Params.PrivateKey != "" {
		initialState["private_key"] = req.Params.PrivateKey
	}

	events, err := s.runner.Run(c.Request.Context(), s.chain, sessionID, text, initialState)
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress for this session"})
			return
		}
		s.logger.Error("starting run failed", "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for ev := range events {
		frame := FrameFromEvent(ev, s.processing)
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", frame.Encode()); err != nil {
			s.logger.Warn("client disconnected mid-stream", "session", sessionID)
			s.runner.Cancel(sessionID)
			return
		}
		c.Writer.Flush()
	}
}
