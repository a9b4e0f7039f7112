package checkout

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hollybrook/storefront/internal/catalog"
	"github.com/hollybrook/storefront/internal/payment"
)

// CartItem is the untrusted client-side cart line. Prices are never taken
// from it; only identity and quantity.
type CartItem struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type SessionRequest struct {
	Items         []CartItem     `json:"items"`
	CustomerName  string         `json:"customer_name"`
	CustomerEmail string         `json:"customer_email"`
	GiftRecipient *GiftRecipient `json:"gift_recipient,omitempty"`
}

type Session struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RedirectURL string `json:"redirect_url"`
}

type CatalogResolver interface {
	Resolve(ctx context.Context, productID, variantID string) (*catalog.Resolved, error)
}

type StockLedger interface {
	Reserve(ctx context.Context, variantID, checkoutID string, qty int, ttl time.Duration) error
	Release(ctx context.Context, checkoutID string) error
}

type OrderWriter interface {
	CreateOrder(ctx context.Context, o *Order) error
	SetProviderRef(ctx context.Context, orderID, ref string) error
	Transition(ctx context.Context, orderID string, to Status) error
}

// Orchestrator turns a cart into a pending order with a hosted payment
// redirect. It never waits for the payment outcome; the reconciler picks that
// up from the webhook.
type Orchestrator struct {
	Catalog  CatalogResolver
	Ledger   StockLedger
	Orders   OrderWriter
	Provider payment.Provider
	TTL      time.Duration
}

// CreateSession validates the cart, reserves tracked stock all-or-nothing,
// creates a pending order with server-resolved prices, and requests a hosted
// session from the payment provider. Any failure after the first successful
// reservation releases every hold taken for this attempt.
func (oc *Orchestrator) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	items, err := oc.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	checkoutID := uuid.NewString()
	for _, it := range items {
		if it.VariantID == nil || !it.tracked {
			continue
		}
		if err := oc.Ledger.Reserve(ctx, *it.VariantID, checkoutID, it.Quantity, oc.TTL); err != nil {
			if rerr := oc.Ledger.Release(ctx, checkoutID); rerr != nil {
				log.Printf("release checkout=%s after failed reserve: %v", checkoutID, rerr)
			}
			return nil, err
		}
	}

	order := &Order{
		ID:            uuid.NewString(),
		CheckoutID:    checkoutID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
	}
	for _, it := range items {
		order.Items = append(order.Items, it.LineItem)
		order.TotalCents += it.TotalCents()
	}
	if err := oc.Orders.CreateOrder(ctx, order); err != nil {
		if rerr := oc.Ledger.Release(ctx, checkoutID); rerr != nil {
			log.Printf("release checkout=%s after failed create: %v", checkoutID, rerr)
		}
		return nil, err
	}

	sess, err := oc.Provider.CreateSession(ctx, payment.SessionRequest{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		AmountCents:   order.TotalCents,
		CustomerEmail: order.CustomerEmail,
	})
	if err != nil {
		oc.abandon(ctx, order, checkoutID)
		return nil, &PaymentProviderError{OrderID: order.ID, Err: err}
	}
	if err := oc.Orders.SetProviderRef(ctx, order.ID, sess.Reference); err != nil {
		// Session exists provider-side but cannot be correlated back;
		// the order is unusable, so treat it like a provider failure.
		oc.abandon(ctx, order, checkoutID)
		return nil, &PaymentProviderError{OrderID: order.ID, Err: err}
	}

	return &Session{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		RedirectURL: sess.RedirectURL,
	}, nil
}

func (oc *Orchestrator) abandon(ctx context.Context, order *Order, checkoutID string) {
	if err := oc.Ledger.Release(ctx, checkoutID); err != nil {
		log.Printf("release checkout=%s order=%s: %v", checkoutID, order.ID, err)
	}
	if err := oc.Orders.Transition(ctx, order.ID, StatusCancelled); err != nil &&
		!errors.Is(err, ErrAlreadyInState) {
		log.Printf("cancel order=%s: %v", order.ID, err)
	}
}

type resolvedItem struct {
	LineItem
	tracked bool
}

func (oc *Orchestrator) validate(ctx context.Context, req SessionRequest) ([]resolvedItem, error) {
	if len(req.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "cart is empty"}
	}
	if req.CustomerName == "" {
		return nil, &ValidationError{Field: "customer_name", Reason: "required"}
	}
	if !strings.Contains(req.CustomerEmail, "@") {
		return nil, &ValidationError{Field: "customer_email", Reason: "not a valid email address"}
	}

	seen := make(map[CartItem]bool, len(req.Items))
	out := make([]resolvedItem, 0, len(req.Items))
	for _, ci := range req.Items {
		if ci.Quantity < 1 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
		}
		key := CartItem{ProductID: ci.ProductID, VariantID: ci.VariantID}
		if seen[key] {
			return nil, &ValidationError{Field: "items", Reason: "duplicate cart line for " + ci.ProductID}
		}
		seen[key] = true

		res, err := oc.Catalog.Resolve(ctx, ci.ProductID, ci.VariantID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &ValidationError{Field: "items", Reason: "unknown product or variant " + ci.ProductID}
		}
		if errors.Is(err, catalog.ErrVariantRequired) {
			return nil, &ValidationError{Field: "items", Reason: "product " + ci.ProductID + " requires a variant selection"}
		}
		if err != nil {
			return nil, err
		}
		if !res.Active {
			return nil, &ValidationError{Field: "items", Reason: res.Name + " is no longer available"}
		}
		// Tracked stock can only be reserved against a variant row; a
		// tracked line without one must never reach the ledger loop, where
		// it would sell unchecked.
		if res.TrackInventory && res.VariantID == nil {
			return nil, &ValidationError{Field: "items", Reason: res.Name + " cannot be purchased right now"}
		}

		it := resolvedItem{
			LineItem: LineItem{
				ProductID:      res.ProductID,
				VariantID:      res.VariantID,
				Name:           res.Name,
				Kind:           KindPhysical,
				UnitPriceCents: res.UnitPriceCents,
				Quantity:       ci.Quantity,
			},
			tracked: res.TrackInventory,
		}
		if res.Type == catalog.TypeGiftCertificate {
			if req.GiftRecipient == nil || req.GiftRecipient.Email == "" {
				return nil, &ValidationError{Field: "gift_recipient", Reason: "recipient email is required for gift certificates"}
			}
			// Certificates persist a positive balance; a zero-value
			// line could never be issued at payment time.
			if res.UnitPriceCents <= 0 {
				return nil, &ValidationError{Field: "items", Reason: res.Name + " has no redeemable value"}
			}
			it.Kind = KindGiftCertificate
			it.GiftRecipient = req.GiftRecipient
		}
		out = append(out, it)
	}
	return out, nil
}
