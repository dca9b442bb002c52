// Package quote collects and aggregates supplier quotes: fetching the remote
// quoting stream, parsing structured or free-text replies, and selecting the
// winning offer.
package quote

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/cyberx-ai/supplymesh/internal/util"
)

// Quote is a supplier's priced response to a demand query. TotalPrice is
// set only when the supplier confirmed sufficient inventory; a rejection
// never yields a Quote.
type Quote struct {
	SupplierID    string  `json:"supplierId"`
	SupplierName  string  `json:"supplierName"`
	UnitPrice     float64 `json:"unitPrice"`
	TotalPrice    float64 `json:"totalPrice"`
	Currency      string  `json:"currency"`
	WalletAddress string  `json:"walletAddress"`
}

type structuredQuote struct {
	SupplierID    string  `json:"supplier_id"`
	SupplierName  string  `json:"supplier_name"`
	UnitPrice     float64 `json:"unit_price"`
	TotalPrice    float64 `json:"total_price"`
	Currency      string  `json:"currency"`
	WalletAddress string  `json:"wallet_address"`
}

type structuredResponse struct {
	Status string           `json:"status"`
	Quote  *structuredQuote `json:"quote"`
}

// Free-text fallback: "总价为 960000 元" / "总价为 960000 星火令".
var totalPricePattern = regexp.MustCompile(`总价为\s*(\d+(?:\.\d+)?)\s*(元|星火令)`)

// Parse extracts a Quote from a supplier reply. Structured parsing is tried
// first ({status, quote} with snake_case fields); free-text pattern matching
// is the fallback. The supplier name and wallet address fill any fields the
// reply omits. The boolean is false for rejections and unparseable replies;
// a non-positive total price never produces a quote.
func Parse(text, supplierName, walletAddress string) (*Quote, bool) {
	cleaned := util.StripCodeFence(text)

	var resp structuredResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err == nil && resp.Status != "" {
		if resp.Status != "confirmed" && resp.Status != "success" {
			return nil, false
		}
		if resp.Quote == nil || resp.Quote.TotalPrice <= 0 {
			return nil, false
		}
		q := &Quote{
			SupplierID:    resp.Quote.SupplierID,
			SupplierName:  resp.Quote.SupplierName,
			UnitPrice:     resp.Quote.UnitPrice,
			TotalPrice:    resp.Quote.TotalPrice,
			Currency:      resp.Quote.Currency,
			WalletAddress: resp.Quote.WalletAddress,
		}
		if q.SupplierName == "" {
			q.SupplierName = supplierName
		}
		if q.WalletAddress == "" {
			q.WalletAddress = walletAddress
		}
		return q, true
	}

	m := totalPricePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	total, err := strconv.ParseFloat(m[1], 64)
	if err != nil || total <= 0 {
		return nil, false
	}
	return &Quote{
		SupplierName:  supplierName,
		TotalPrice:    total,
		Currency:      m[2],
		WalletAddress: walletAddress,
	}, true
}

// SelectBest returns the quote with the minimum total price. Ties are broken
// by input order: the first minimal element wins. The boolean is false for
// an empty candidate set.
func SelectBest(candidates []Quote) (*Quote, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].TotalPrice < candidates[best].TotalPrice {
			best = i
		}
	}
	return &candidates[best], true
}
