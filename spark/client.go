// Package spark talks to the simulated blockchain ("spark chain") and to the
// public agent registry. Both are plain HTTP collaborators; every call is
// bounded by a deadline and surfaces failures through the step taxonomy.
package spark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

// DefaultCallTimeout bounds transfer, verify and registry calls.
const DefaultCallTimeout = 30 * time.Second

// TransferRequest is the payload of POST <chain>/transfer.
type TransferRequest struct {
	SenderAddress string `json:"senderAddress"`
	PrivateKey    string `json:"privateKey"`
	DestAddress   string `json:"destAddress"`
	Amount        int64  `json:"amount"`
	GasPrice      int64  `json:"gasPrice"`
	FeeLimit      int64  `json:"feeLimit"`
}

// TransactionReceipt is the normalized outcome of a transfer. Success is
// true iff the chain returned code 0; a failed receipt must always surface
// as a failed trade, never as a completed purchase.
type TransactionReceipt struct {
	Hash          string `json:"hash"`
	SenderAddress string `json:"senderAddress"`
	DestAddress   string `json:"destAddress"`
	Amount        int64  `json:"amount"`
	Success       bool   `json:"success"`
	Code          int    `json:"code"`
	Message       string `json:"message"`
}

// Credential identifies a verified supplier credential.
type Credential struct {
	ID string `json:"id"`
}

// VerifyResult is the outcome of a credential verification call.
type VerifyResult struct {
	Verified   bool       `json:"verified"`
	Credential Credential `json:"credential"`
}

// AgentDescriptor is one entry of the public registry listing.
type AgentDescriptor struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	URL           string `json:"url"`
	VCContent     string `json:"vcContent"`
	DID           string `json:"did"`
	WalletAddress string `json:"walletAddress"`
}

type transferEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Hash          string `json:"hash"`
		SenderAddress string `json:"senderAddress"`
		DestAddress   string `json:"destAddress"`
	} `json:"data"`
}

type verifyEnvelope struct {
	Data struct {
		Verified   bool       `json:"verified"`
		Credential Credential `json:"credential"`
	} `json:"data"`
}

type listEnvelope struct {
	Data []AgentDescriptor `json:"data"`
}

// Client calls the chain and registry endpoints.
type Client struct {
	chainBaseURL    string
	registryBaseURL string
	httpClient      *http.Client
	timeout         time.Duration
	logger          logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCallTimeout overrides the per-call deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client for the given chain and registry base URLs.
func NewClient(chainBaseURL, registryBaseURL string, opts ...Option) *Client {
	c := &Client{
		chainBaseURL:    strings.TrimRight(chainBaseURL, "/"),
		registryBaseURL: strings.TrimRight(registryBaseURL, "/"),
		httpClient:      &http.Client{},
		timeout:         DefaultCallTimeout,
		logger:          logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transfer executes a simulated payment. Transport errors and non-2xx
// statuses come back as failures; a decoded response always yields a
// receipt, failed when code != 0.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransactionReceipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewFailure(core.FailureExternalCall, "encode transfer request: %v", err)
	}

	var env transferEnvelope
	if err := c.postJSON(ctx, c.chainBaseURL+"/transfer", "application/json", bytes.NewReader(body), &env); err != nil {
		return nil, err
	}

	receipt := &TransactionReceipt{
		Hash:          env.Data.Hash,
		SenderAddress: env.Data.SenderAddress,
		DestAddress:   env.Data.DestAddress,
		Amount:        req.Amount,
		Success:       env.Code == 0,
		Code:          env.Code,
		Message:       env.Message,
	}
	if receipt.SenderAddress == "" {
		receipt.SenderAddress = req.SenderAddress
	}
	if receipt.DestAddress == "" {
		receipt.DestAddress = req.DestAddress
	}
	c.logger.Info("transfer completed", "hash", receipt.Hash, "code", receipt.Code, "success", receipt.Success)
	return receipt, nil
}

// VerifyVC verifies a supplier credential. The chain expects the credential
// document form-encoded under vcContent.
func (c *Client) VerifyVC(ctx context.Context, vcContent string) (*VerifyResult, error) {
	form := url.Values{"vcContent": {vcContent}}
	var env verifyEnvelope
	if err := c.postJSON(ctx, c.chainBaseURL+"/vc/verify", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &env); err != nil {
		return nil, err
	}
	return &VerifyResult{Verified: env.Data.Verified, Credential: env.Data.Credential}, nil
}

// ListAgents fetches the public supplier listing from the registry.
func (c *Client) ListAgents(ctx context.Context) ([]AgentDescriptor, error) {
	var env listEnvelope
	if err := c.postJSON(ctx, c.registryBaseURL+"/agent/public/list", "application/json",
		strings.NewReader("{}"), &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, body)
	if err != nil {
		return core.NewFailure(core.FailureExternalCall, "build request for %s: %v", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return core.NewFailure(core.FailureTimeout, "call to %s timed out after %s", endpoint, c.timeout)
		}
		return core.NewFailure(core.FailureExternalCall, "call to %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.NewFailure(core.FailureExternalCall, "call to %s: status %d: %s",
			endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewFailure(core.FailureExternalCall, "decode response from %s: %v", endpoint, err)
	}
	return nil
}

// String renders the receipt for transcripts.
func (r *TransactionReceipt) String() string {
	state := "失败"
	if r.Success {
		state = "成功"
	}
	return fmt.Sprintf("交易%s：hash=%s, 发送方=%s, 接收方=%s, 金额=%d",
		state, r.Hash, r.SenderAddress, r.DestAddress, r.Amount)
}

// Wallet bundles the injected payment parameters used to build transfer
// requests. Values come from configuration or from the caller's request,
// never from source constants.
type Wallet struct {
	SenderAddress string
	PrivateKey    string
	DestAddress   string
	Amount        int64
	GasPrice      int64
	FeeLimit      int64
}

// TransferTo builds a transfer request to the given destination, falling
// back to the wallet's configured destination when dest is empty.
func (w Wallet) TransferTo(dest string) TransferRequest {
	if dest == "" {
		dest = w.DestAddress
	}
	return TransferRequest{
		SenderAddress: w.SenderAddress,
		PrivateKey:    w.PrivateKey,
		DestAddress:   dest,
		Amount:        w.Amount,
		GasPrice:      w.GasPrice,
		FeeLimit:      w.FeeLimit,
	}
}
