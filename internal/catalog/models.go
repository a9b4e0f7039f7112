package catalog

import "time"

type ProductType string

const (
	TypePhysical        ProductType = "physical"
	TypeGiftCertificate ProductType = "gift_certificate"
)

type Product struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Slug             string      `json:"slug"`
	Description      string      `json:"description,omitempty"`
	BasePriceCents   int         `json:"base_price_cents"`
	CompareAtCents   *int        `json:"compare_at_cents,omitempty"`
	HasVariants      bool        `json:"has_variants"`
	TrackInventory   bool        `json:"track_inventory"`
	Type             ProductType `json:"type"`
	Active           bool        `json:"active"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	Variants         []Variant   `json:"variants,omitempty"`
}

type Variant struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	Name              string    `json:"name"`
	PriceCents        *int      `json:"price_cents,omitempty"` // nil falls back to the product base price
	InventoryQuantity int       `json:"inventory_quantity"`
	CreatedAt         time.Time `json:"created_at"`
}

// Resolved is a cart line validated against the live catalog: authoritative
// price and flags at this instant. Orders copy these values; they are never
// re-read from the catalog afterwards.
type Resolved struct {
	ProductID      string
	VariantID      *string
	Name           string
	Type           ProductType
	TrackInventory bool
	UnitPriceCents int
	Active         bool
}
