package cryptopay

import "encoding/json"

// WebhookSignatureHeader carries the webhook HMAC.
const WebhookSignatureHeader = "Crypto-Pay-Api-Signature"

// UpdateInvoicePaid is the only webhook update type that settles orders.
const UpdateInvoicePaid = "invoice_paid"

// WebhookUpdate is the push notification envelope.
type WebhookUpdate struct {
	UpdateID   int64           `json:"update_id"`
	UpdateType string          `json:"update_type"`
	Payload    json.RawMessage `json:"payload"`
}

// WebhookInvoice is the payload of an invoice_paid update.
type WebhookInvoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
}
