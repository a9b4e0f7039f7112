// Package notify turns fulfillment events into customer-facing messages:
// order confirmations and gift-certificate deliveries. Transport is an
// interface; the default sink just logs, which is enough for development and
// for ops to tail.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/hollybrook/storefront/internal/checkout"
	kafkax "github.com/hollybrook/storefront/internal/kafka"
	"github.com/hollybrook/storefront/internal/redisx"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes the message to the process log instead of a mailbox.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, body string) error {
	log.Printf("notify to=%s subject=%q body=%q", to, subject, body)
	return nil
}

type Service struct {
	Dedup  *redisx.Deduper
	Sender Sender
}

// HandleOrderPaid is the consumer handler for the orders.paid topic.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != checkout.EventOrderPaid {
		return nil
	}
	if s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[checkout.OrderPaidPayload](env.Payload)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Order %s confirmed", p.OrderNumber)
	body := fmt.Sprintf("Thanks %s! Your order %s for $%d.%02d is confirmed.",
		p.CustomerName, p.OrderNumber, p.TotalCents/100, p.TotalCents%100)
	if err := s.Sender.Send(ctx, p.CustomerEmail, subject, body); err != nil {
		return err
	}

	for _, cert := range p.GiftCertificates {
		msg := fmt.Sprintf("You've received a $%d.%02d gift certificate! Code: %s.",
			cert.AmountCents/100, cert.AmountCents%100, cert.Code)
		if cert.Message != "" {
			msg += " Message: " + cert.Message
		}
		if err := s.Sender.Send(ctx, cert.RecipientEmail, "A gift for you", msg); err != nil {
			return err
		}
	}

	s.Dedup.Mark(ctx, env.EventID)
	return nil
}

// HandleOrderCancelled is the consumer handler for the orders.cancelled topic.
func (s *Service) HandleOrderCancelled(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != checkout.EventOrderCancelled {
		return nil
	}
	if s.Dedup.Seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[checkout.OrderCancelledPayload](env.Payload)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Your order %s was not completed (%s). You have not been charged.",
		p.OrderNumber, p.Reason)
	if err := s.Sender.Send(ctx, p.CustomerEmail, fmt.Sprintf("Order %s cancelled", p.OrderNumber), body); err != nil {
		return err
	}

	s.Dedup.Mark(ctx, env.EventID)
	return nil
}
