// Package search implements the supplier discovery pipeline: registry
// search, credential verification, quote collection, contract drafting and
// payment execution.
package search

import (
	"encoding/json"

	"github.com/cyberx-ai/supplymesh/spark"
)

// State keys produced by the pipeline steps.
const (
	KeySearchResult    = "search_result"
	KeyRouterSelection = "router_selection"
	KeyRouteResult     = "route_result"
	KeyVerifyResult    = "verify_result"
	KeyQuoteResult     = "quote_result"
	KeyContractResult  = "contract_result"
	KeyTradeResult     = "trade_result"
	KeyPaymentResult   = "payment_result"
)

// Candidate is one discovered supplier agent, possibly carrying a
// verifiable credential blob.
type Candidate struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url"`
	VCContent     string `json:"vcContent,omitempty"`
	DID           string `json:"did,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	CredentialID  string `json:"credentialId,omitempty"`
}

func candidateFromDescriptor(d spark.AgentDescriptor) Candidate {
	return Candidate{
		Name:          d.Name,
		Description:   d.Description,
		URL:           d.URL,
		VCContent:     d.VCContent,
		DID:           d.DID,
		WalletAddress: d.WalletAddress,
	}
}

func encodeCandidates(candidates []Candidate) string {
	data, _ := json.Marshal(candidates)
	return string(data)
}

func decodeCandidates(text string) []Candidate {
	var candidates []Candidate
	if err := json.Unmarshal([]byte(text), &candidates); err != nil {
		return nil
	}
	return candidates
}
