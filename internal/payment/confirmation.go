package payment

import (
	"encoding/json"
	"strings"
)

// Confirmation is what the processor reports about an approved payment.
// Every field is optional.
type Confirmation struct {
	OrderID    string `json:"order_id,omitempty"`
	Status     string `json:"status,omitempty"`
	CaptureID  string `json:"capture_id,omitempty"`
	PayerEmail string `json:"payer_email,omitempty"`
	PayerName  string `json:"payer_name,omitempty"`
}

type orderPayload struct {
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Payer struct {
		EmailAddress string `json:"email_address"`
		Name         struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
}

// ParseConfirmation extracts the interesting fields of an order or
// capture payload. Missing or malformed pieces come back empty.
func ParseConfirmation(raw []byte) Confirmation {
	var c Confirmation
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return c
	}
	for _, k := range []string{"id", "orderID", "orderId"} {
		var s string
		if v, ok := keys[k]; ok && json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) != "" {
			c.OrderID = strings.TrimSpace(s)
			break
		}
	}

	// Decode piecewise so one wrongly typed branch does not hide the rest.
	var status string
	if v, ok := keys["status"]; ok && json.Unmarshal(v, &status) == nil {
		c.Status = status
	}
	var p orderPayload
	if v, ok := keys["purchase_units"]; ok && json.Unmarshal(v, &p.PurchaseUnits) == nil {
		if len(p.PurchaseUnits) > 0 && len(p.PurchaseUnits[0].Payments.Captures) > 0 {
			c.CaptureID = p.PurchaseUnits[0].Payments.Captures[0].ID
		}
	}
	if v, ok := keys["payer"]; ok && json.Unmarshal(v, &p.Payer) == nil {
		c.PayerEmail = strings.TrimSpace(p.Payer.EmailAddress)
		parts := make([]string, 0, 2)
		for _, s := range []string{p.Payer.Name.GivenName, p.Payer.Name.Surname} {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		c.PayerName = strings.Join(parts, " ")
	}
	return c
}
