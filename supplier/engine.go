// Package supplier implements a parameterized supplier: an explicit
// inventory record with tiered pricing, a demand parser for the incoming
// query text, and the quoting step served by supplierd.
package supplier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cyberx-ai/supplymesh/core"
)

// PriceTier maps an order quantity band to a unit price. UpTo is the
// inclusive upper bound of the band; zero means unbounded and must only
// appear on the last tier.
type PriceTier struct {
	UpTo      int64   `json:"upTo"`
	UnitPrice float64 `json:"unitPrice"`
}

// StandardTireTiers is the demo tire pricing table: below 1000 units 500
// each, 1000 to 5000 units 480, above 5000 units 450.
var StandardTireTiers = []PriceTier{
	{UpTo: 999, UnitPrice: 500},
	{UpTo: 5000, UnitPrice: 480},
	{UpTo: 0, UnitPrice: 450},
}

// Profile describes one supplier: identity, commodity, stock and pricing.
// Inventory lives here, owned by the supplier instance, never in shared
// process state.
type Profile struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Commodity     string      `json:"commodity"`
	PerVehicle    int64       `json:"perVehicle"`
	Inventory     int64       `json:"inventory"`
	Tiers         []PriceTier `json:"tiers"`
	Currency      string      `json:"currency"`
	WalletAddress string      `json:"walletAddress"`
}

// Response is the structured quoting outcome rendered to the caller.
type Response struct {
	Status           string         `json:"status"`
	Quote            *ResponseQuote `json:"quote,omitempty"`
	RejectionMessage string         `json:"rejection_message,omitempty"`
	Shortfall        int64          `json:"shortfall,omitempty"`
	Message          string         `json:"message"`
}

// ResponseQuote carries the priced confirmation.
type ResponseQuote struct {
	SupplierID    string  `json:"supplier_id"`
	SupplierName  string  `json:"supplier_name"`
	Quantity      int64   `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	TotalPrice    float64 `json:"total_price"`
	Currency      string  `json:"currency"`
	WalletAddress string  `json:"wallet_address"`
}

var (
	vehiclePattern   = regexp.MustCompile(`(\d+)\s*辆`)
	componentPattern = regexp.MustCompile(`(\d+)\s*个`)
)

// ParseDemand extracts the demanded component quantity from a query. A
// vehicle count ("500 辆") is multiplied by the per-vehicle factor; a direct
// component count ("2000 个") is taken verbatim. Vehicle counts win when
// both appear.
func (p *Profile) ParseDemand(query string) (int64, error) {
	if m := vehiclePattern.FindStringSubmatch(query); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse vehicle count %q: %w", m[1], err)
		}
		perVehicle := p.PerVehicle
		if perVehicle <= 0 {
			perVehicle = 1
		}
		return n * perVehicle, nil
	}
	if m := componentPattern.FindStringSubmatch(query); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse component count %q: %w", m[1], err)
		}
		return n, nil
	}
	return 0, core.NewFailure(core.FailureGeneration,
		"no quantity found in query %q", query)
}

// TierPrice returns the unit price for the given quantity.
func (p *Profile) TierPrice(quantity int64) float64 {
	for _, tier := range p.Tiers {
		if tier.UpTo == 0 || quantity <= tier.UpTo {
			return tier.UnitPrice
		}
	}
	return 0
}

// Quote prices a demand against the inventory. Sufficient stock yields a
// confirmed response with unit and total price; a shortfall yields a
// rejection carrying the exact gap, never a negative or zero shortfall.
func (p *Profile) Quote(quantity int64) Response {
	if quantity > p.Inventory {
		shortfall := quantity - p.Inventory
		return Response{
			Status:           "rejected",
			RejectionMessage: fmt.Sprintf("库存不足：需求 %d 个，现有库存 %d 个，缺口 %d 个。", quantity, p.Inventory, shortfall),
			Shortfall:        shortfall,
			Message:          fmt.Sprintf("%s：抱歉，%s库存不足，缺口 %d 个，无法报价。", p.Name, p.Commodity, shortfall),
		}
	}
	unit := p.TierPrice(quantity)
	total := unit * float64(quantity)
	return Response{
		Status: "confirmed",
		Quote: &ResponseQuote{
			SupplierID:    p.ID,
			SupplierName:  p.Name,
			Quantity:      quantity,
			UnitPrice:     unit,
			TotalPrice:    total,
			Currency:      p.Currency,
			WalletAddress: p.WalletAddress,
		},
		Message: fmt.Sprintf("%s：确认供应 %d 个%s，单价 %s，总价为 %s %s。",
			p.Name, quantity, p.Commodity,
			formatPrice(unit), formatPrice(total), p.Currency),
	}
}

// Render encodes the response as JSON for the event stream.
func (r Response) Render() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":"rejected","rejection_message":%q}`, err.Error())
	}
	return string(data)
}

func formatPrice(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
