package intasend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
	"github.com/shopspring/decimal"
)

type stkPushRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
	APIRef      string `json:"api_ref"`
	Narrative   string `json:"narrative"`
	Email       string `json:"email,omitempty"`
}

type checkoutRequest struct {
	PublicKey   string `json:"public_key"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
	APIRef      string `json:"api_ref"`
	Method      string `json:"method"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type statusRequest struct {
	InvoiceID string `json:"invoice_id"`
}

type invoice struct {
	InvoiceID    string              `json:"invoice_id"`
	State        string              `json:"state"`
	Provider     string              `json:"provider"`
	Value        decimal.NullDecimal `json:"value"`
	NetAmount    decimal.NullDecimal `json:"net_amount"`
	Currency     string              `json:"currency"`
	APIRef       string              `json:"api_ref"`
	FailedReason string              `json:"failed_reason"`
	FailedCode   string              `json:"failed_code"`
}

type invoiceEnvelope struct {
	ID      string   `json:"id"`
	Invoice *invoice `json:"invoice"`
}

type checkoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// checkoutMethods maps payment methods to IntaSend checkout method names.
var checkoutMethods = map[string]string{
	"mpesa": "M-PESA",
	"card":  "CARD-PAYMENT",
	"bank":  "BANK-ACH",
}

// parseStatus turns a status response into the one shape the reconciler
// understands. A response without an invoice block is unusable.
func parseStatus(body []byte) (*services.ProviderStatus, error) {
	var env invoiceEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed status response: %v", common.ErrTransport, err)
	}
	if env.Invoice == nil {
		return nil, fmt.Errorf("%w: status response has no invoice", common.ErrReconciliation)
	}

	inv := env.Invoice
	st := &services.ProviderStatus{
		State:         strings.TrimSpace(inv.State),
		InvoiceID:     inv.InvoiceID,
		PaymentID:     env.ID,
		Currency:      strings.ToUpper(inv.Currency),
		FailureReason: strings.TrimSpace(inv.FailedReason),
	}
	switch {
	case inv.Value.Valid:
		st.Amount = inv.Value
	case inv.NetAmount.Valid:
		st.Amount = inv.NetAmount
	}
	return st, nil
}

// parseSTKPush extracts the correlation ids of an accepted STK push.
func parseSTKPush(body []byte) (*services.InitiateResult, error) {
	var env invoiceEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed stk push response: %v", common.ErrTransport, err)
	}

	res := &services.InitiateResult{PaymentID: env.ID, State: "PENDING"}
	if env.Invoice != nil {
		res.InvoiceID = env.Invoice.InvoiceID
		if env.Invoice.State != "" {
			res.State = env.Invoice.State
		}
	}
	if res.InvoiceID == "" && res.PaymentID == "" {
		return nil, fmt.Errorf("%w: stk push response has no invoice or payment id", common.ErrReconciliation)
	}
	return res, nil
}

func parseCheckout(body []byte) (*services.InitiateResult, error) {
	var resp checkoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed checkout response: %v", common.ErrTransport, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: checkout response has no id", common.ErrReconciliation)
	}
	return &services.InitiateResult{InvoiceID: resp.ID, PaymentURL: resp.URL, State: "PENDING"}, nil
}

// errorMessage extracts a human-readable reason from an error body.
func errorMessage(body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil {
		var parts []string
		if e.Detail != "" {
			parts = append(parts, e.Detail)
		}
		for _, item := range e.Errors {
			if item.Detail != "" {
				parts = append(parts, item.Detail)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
