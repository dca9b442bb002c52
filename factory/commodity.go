package factory

import "github.com/cyberx-ai/supplymesh/supplier"

// Commodity binds one component supply chain: the supplier profile quoting
// it and the state keys its steps produce.
type Commodity struct {
	Key     string // state key prefix, e.g. "tire"
	Label   string // human label, e.g. "轮胎"
	Profile supplier.Profile
}

// SupplyKey is the state key of the commodity's quote result.
func (c Commodity) SupplyKey() string { return c.Key + "_supply_result" }

// TransportKey is the state key of the commodity's transport plan.
func (c Commodity) TransportKey() string { return c.Key + "_transport_result" }

// ReceiptKey is the state key of the commodity's raw trade receipt.
func (c Commodity) ReceiptKey() string { return c.Key + "_trade_receipt" }

// TradeKey is the state key of the commodity's rendered trade summary.
func (c Commodity) TradeKey() string { return c.Key + "_trade_result" }

// DefaultCommodities returns the demo supply chains: tires, batteries and
// frames, each owned by one supplier with its own inventory and price table.
func DefaultCommodities() []Commodity {
	return []Commodity{
		{
			Key:   "tire",
			Label: "轮胎",
			Profile: supplier.Profile{
				ID:            "tire-supplier",
				Name:          "轮胎供应商",
				Commodity:     "轮胎",
				PerVehicle:    4,
				Inventory:     10000,
				Tiers:         supplier.StandardTireTiers,
				Currency:      "元",
				WalletAddress: "",
			},
		},
		{
			Key:   "battery",
			Label: "电池",
			Profile: supplier.Profile{
				ID:         "battery-supplier",
				Name:       "电池供应商",
				Commodity:  "电池",
				PerVehicle: 1,
				Inventory:  5000,
				Tiers: []supplier.PriceTier{
					{UpTo: 999, UnitPrice: 1300},
					{UpTo: 0, UnitPrice: 1200},
				},
				Currency: "元",
			},
		},
		{
			Key:   "frame",
			Label: "车架",
			Profile: supplier.Profile{
				ID:         "frame-supplier",
				Name:       "车架供应商",
				Commodity:  "车架",
				PerVehicle: 1,
				Inventory:  2000,
				Tiers: []supplier.PriceTier{
					{UpTo: 0, UnitPrice: 5000},
				},
				Currency: "元",
			},
		},
	}
}
