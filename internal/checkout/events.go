package checkout

import (
	"encoding/json"
	"time"
)

const (
	TopicOrderPaid      = "orders.paid"
	TopicOrderCancelled = "orders.cancelled"
)

const (
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type IssuedCertificate struct {
	Code           string `json:"code"`
	AmountCents    int    `json:"amount_cents"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	Message        string `json:"message,omitempty"`
}

type OrderPaidPayload struct {
	OrderID          string              `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	CustomerName     string              `json:"customer_name"`
	CustomerEmail    string              `json:"customer_email"`
	TotalCents       int                 `json:"total_cents"`
	GiftCertificates []IssuedCertificate `json:"gift_certificates,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	Reason        string `json:"reason"`
}

// PartitionKey keeps every event for one order on a single partition so the
// notifier observes them in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
