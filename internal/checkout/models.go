package checkout

import "time"

type ItemKind string

const (
	KindPhysical        ItemKind = "physical"
	KindGiftCertificate ItemKind = "gift_certificate"
)

type GiftRecipient struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message,omitempty"`
}

// LineItem is a priced snapshot taken at checkout time. The catalog row may
// change afterwards; the order keeps what the customer agreed to pay.
type LineItem struct {
	ProductID      string         `json:"product_id"`
	VariantID      *string        `json:"variant_id,omitempty"`
	Name           string         `json:"name"`
	Kind           ItemKind       `json:"kind"`
	UnitPriceCents int            `json:"unit_price_cents"`
	Quantity       int            `json:"quantity"`
	GiftRecipient  *GiftRecipient `json:"gift_recipient,omitempty"`
}

func (li LineItem) TotalCents() int { return li.UnitPriceCents * li.Quantity }

type Order struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	CheckoutID    string     `json:"-"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Items         []LineItem `json:"items"`
	TotalCents    int        `json:"total_cents"`
	Status        Status     `json:"status"`
	ProviderRef   string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// Reservation is an ephemeral hold keyed by (variant, checkout). It never
// outlives the checkout attempt: commit and release both delete it.
type Reservation struct {
	VariantID  string
	CheckoutID string
	Quantity   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type GiftCertificate struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	OrderID        string    `json:"order_id"`
	LineIndex      int       `json:"line_index"`
	InitialCents   int       `json:"initial_cents"`
	RemainingCents int       `json:"remaining_cents"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	Message        string    `json:"message,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
}
