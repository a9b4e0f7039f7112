package checkout

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/hollybrook/storefront/internal/kafka"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Event is the provider's webhook notification after signature verification.
// Delivery is at-least-once, possibly duplicated, possibly out of order.
type Event struct {
	EventID     string `json:"event_id"`
	ReferenceID string `json:"reference_id"`
	Outcome     string `json:"outcome"`
}

type EventStore interface {
	FindByProviderRef(ctx context.Context, ref string) (*Order, error)
	ConfirmPayment(ctx context.Context, eventID, orderID string) ([]GiftCertificate, error)
	FailPayment(ctx context.Context, eventID, orderID string) error
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Reconciler is the only writer that moves orders out of pending. It
// acknowledges everything it can classify; an error return means
// infrastructure trouble and asks the provider to redeliver.
type Reconciler struct {
	Store     EventStore
	Dedup     Deduper
	Paid      Publisher
	Cancelled Publisher
	Service   string
}

func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	if r.Dedup != nil && r.Dedup.Seen(ctx, ev.EventID) {
		log.Printf("debug: duplicate event %s (fast path)", ev.EventID)
		return nil
	}

	o, err := r.Store.FindByProviderRef(ctx, ev.ReferenceID)
	if errors.Is(err, ErrUnknownReference) {
		// Test traffic or sessions this system never tracked. Ack and
		// move on; the provider must not retry forever.
		log.Printf("warn: event %s references unknown session %s", ev.EventID, ev.ReferenceID)
		r.mark(ctx, ev.EventID)
		return nil
	}
	if err != nil {
		return err
	}

	switch ev.Outcome {
	case OutcomeSucceeded:
		certs, err := r.Store.ConfirmPayment(ctx, ev.EventID, o.ID)
		switch {
		case err == nil:
			log.Printf("order %s paid (event %s), %d gift certificate(s) issued", o.ID, ev.EventID, len(certs))
			r.publishPaid(o, certs)
		case errors.Is(err, ErrDuplicateEvent):
			log.Printf("debug: duplicate event %s", ev.EventID)
		case errors.Is(err, ErrAlreadyInState):
			log.Printf("order %s already paid, event %s acknowledged", o.ID, ev.EventID)
		case errors.Is(err, ErrIllegalTransition):
			log.Printf("warn: payment succeeded for order %s in terminal state %s, event %s acknowledged",
				o.ID, o.Status, ev.EventID)
		default:
			return err
		}
	case OutcomeFailed:
		err := r.Store.FailPayment(ctx, ev.EventID, o.ID)
		switch {
		case err == nil:
			log.Printf("order %s cancelled by provider (event %s)", o.ID, ev.EventID)
			r.publishCancelled(o, "payment failed")
		case errors.Is(err, ErrDuplicateEvent):
			log.Printf("debug: duplicate event %s", ev.EventID)
		case errors.Is(err, ErrAlreadyInState):
			log.Printf("order %s already cancelled, event %s acknowledged", o.ID, ev.EventID)
		case errors.Is(err, ErrIllegalTransition):
			log.Printf("warn: payment failed for order %s in state %s, event %s acknowledged",
				o.ID, o.Status, ev.EventID)
		default:
			return err
		}
	default:
		log.Printf("warn: event %s has unknown outcome %q, acknowledged", ev.EventID, ev.Outcome)
	}

	r.mark(ctx, ev.EventID)
	return nil
}

func (r *Reconciler) mark(ctx context.Context, eventID string) {
	if r.Dedup != nil {
		r.Dedup.Mark(ctx, eventID)
	}
}

func (r *Reconciler) publishPaid(o *Order, certs []GiftCertificate) {
	if r.Paid == nil {
		return
	}
	payload := OrderPaidPayload{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		TotalCents:    o.TotalCents,
	}
	for _, c := range certs {
		payload.GiftCertificates = append(payload.GiftCertificates, IssuedCertificate{
			Code:           c.Code,
			AmountCents:    c.InitialCents,
			RecipientName:  c.RecipientName,
			RecipientEmail: c.RecipientEmail,
			Message:        c.Message,
		})
	}
	r.publish(r.Paid, EventOrderPaid, o.ID, payload)
}

func (r *Reconciler) publishCancelled(o *Order, reason string) {
	if r.Cancelled == nil {
		return
	}
	r.publish(r.Cancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		CustomerEmail: o.CustomerEmail,
		Reason:        reason,
	})
}

func (r *Reconciler) publish(p Publisher, eventType, orderID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      r.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
