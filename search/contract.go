package search

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cyberx-ai/supplymesh/agent"
	"github.com/cyberx-ai/supplymesh/core"
	"github.com/cyberx-ai/supplymesh/logging"
)

const contractArtifactID = "procurement_contract"

// Contract is the drafted procurement agreement between the buyer and the
// selected supplier. The deposit is 10% of the total price.
type Contract struct {
	ContractID      string  `json:"contractId"`
	BuyerDID        string  `json:"buyerDid"`
	SellerDID       string  `json:"sellerDid"`
	Goods           string  `json:"goods"`
	Quantity        int64   `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	TotalPrice      float64 `json:"totalPrice"`
	Deposit         float64 `json:"deposit"`
	Currency        string  `json:"currency"`
	BuyerSignature  string  `json:"buyerSignature"`
	SellerSignature string  `json:"sellerSignature"`
	CreatedAt       string  `json:"createdAt"`
}

var quantityPattern = regexp.MustCompile(`(\d+)\s*个`)

// contractStep drafts the procurement contract for the selected quote. It
// no-ops when quote collection produced no selection.
type contractStep struct {
	agent.BaseAgent
	buyerDID string
	goods    string
	logger   logging.Logger
}

func newContractStep(buyerDID, goods string, logger logging.Logger) *contractStep {
	s := &contractStep{
		BaseAgent: agent.NewBaseAgent("contract_drafter", core.StepDeterministic),
		buyerDID:  buyerDID,
		goods:     goods,
		logger:    logger,
	}
	s.SetDescription("为选定报价起草采购合同")
	s.SetContract([]string{KeyQuoteResult, KeyVerifyResult}, KeyContractResult)
	return s
}

func signature() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *contractStep) Run(rc *core.RunContext) error {
	result := decodeQuoteResult(rc.GetStateString(KeyQuoteResult))
	if result.Status != "selected" || result.Selected == nil {
		rc.SetState(s.Writes(), `{"status":"skipped","reason":"无有效报价"}`)
		// The content-less event carries the staged delta so the skip
		// record stays bound to this step as its producer.
		return rc.EmitEvent(core.NewEvent("", s.Name()))
	}
	selected := result.Selected

	var quantity int64
	if m := quantityPattern.FindStringSubmatch(rc.UserContent.Text()); m != nil {
		quantity, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if quantity == 0 && selected.UnitPrice > 0 {
		quantity = int64(selected.TotalPrice / selected.UnitPrice)
	}

	sellerDID := ""
	for _, candidate := range decodeCandidates(rc.GetStateString(KeyVerifyResult)) {
		if candidate.Name == selected.SupplierName {
			sellerDID = candidate.DID
			break
		}
	}

	contract := Contract{
		ContractID:      uuid.NewString(),
		BuyerDID:        s.buyerDID,
		SellerDID:       sellerDID,
		Goods:           s.goods,
		Quantity:        quantity,
		UnitPrice:       selected.UnitPrice,
		TotalPrice:      selected.TotalPrice,
		Deposit:         selected.TotalPrice * 0.1,
		Currency:        selected.Currency,
		BuyerSignature:  signature(),
		SellerSignature: signature(),
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	encoded, err := json.Marshal(contract)
	if err != nil {
		return fmt.Errorf("encode contract: %w", err)
	}

	if err := rc.SaveArtifact(contractArtifactID, encoded); err != nil {
		s.logger.Warn("saving contract artifact failed", "error", err)
	}
	s.logger.Info("contract drafted", "contract", contract.ContractID, "seller", selected.SupplierName)

	rc.SetState(s.Writes(), string(encoded))
	return rc.EmitEvent(core.NewMessageEvent(s.Name(),
		fmt.Sprintf("已起草采购合同 %s：向 %s 采购 %d 个%s，总价 %s %s，定金 %s %s。",
			contract.ContractID, selected.SupplierName, quantity, s.goods,
			formatTotal(contract.TotalPrice), contract.Currency,
			formatTotal(contract.Deposit), contract.Currency)))
}
