package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns the orders table and everything that must change atomically with
// an order's state: the ledger commit, gift-certificate rows, and the durable
// processed-event record.
type Store struct {
	DB     *pgxpool.Pool
	Ledger *Ledger
}

// CreateOrder inserts a pending order with its line items and a freshly
// generated order number.
func (s *Store) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return err
	}
	o.Number = fmt.Sprintf("ORD-%s-%06d", time.Now().UTC().Format("20060102"), seq)
	o.Status = StatusPending

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, number, checkout_id, customer_name, customer_email, total_cents, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		o.ID, o.Number, o.CheckoutID, o.CustomerName, o.CustomerEmail, o.TotalCents, o.Status).
		Scan(&o.CreatedAt)
	if err != nil {
		return err
	}

	for i, it := range o.Items {
		var recipient []byte
		if it.GiftRecipient != nil {
			if recipient, err = json.Marshal(it.GiftRecipient); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_index, product_id, variant_id, name, kind,
			                        unit_price_cents, quantity, gift_recipient)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			o.ID, i, it.ProductID, it.VariantID, it.Name, it.Kind,
			it.UnitPriceCents, it.Quantity, recipient); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SetProviderRef stores the provider session id exactly once. A second call
// fails on the null guard, so a retried checkout can never attach two
// provider sessions to one order.
func (s *Store) SetProviderRef(ctx context.Context, orderID, ref string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET provider_ref=$2 WHERE id=$1 AND provider_ref IS NULL`, orderID, ref)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s already has a provider reference", orderID)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.scanOrder(ctx, s.DB, `WHERE id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// FindByProviderRef resolves a webhook's reference id to an order.
// ErrUnknownReference means the provider is talking about a session this
// system never created.
func (s *Store) FindByProviderRef(ctx context.Context, ref string) (*Order, error) {
	o, err := s.scanOrder(ctx, s.DB, `WHERE provider_ref=$1`, ref)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, ErrUnknownReference
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) scanOrder(ctx context.Context, q querier, where string, arg any) (*Order, error) {
	var o Order
	var ref *string
	err := q.QueryRow(ctx, `
		SELECT id, number, checkout_id, customer_name, customer_email, total_cents,
		       status, provider_ref, created_at, paid_at
		FROM orders `+where, arg).
		Scan(&o.ID, &o.Number, &o.CheckoutID, &o.CustomerName, &o.CustomerEmail, &o.TotalCents,
			&o.Status, &ref, &o.CreatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if ref != nil {
		o.ProviderRef = *ref
	}

	rows, err := q.Query(ctx, `
		SELECT product_id, variant_id, name, kind, unit_price_cents, quantity, gift_recipient
		FROM order_items WHERE order_id=$1 ORDER BY line_index`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		var recipient []byte
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Name, &it.Kind,
			&it.UnitPriceCents, &it.Quantity, &recipient); err != nil {
			return nil, err
		}
		if len(recipient) > 0 {
			it.GiftRecipient = &GiftRecipient{}
			if err := json.Unmarshal(recipient, it.GiftRecipient); err != nil {
				return nil, err
			}
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// Transition moves an order to a new state under its row lock, enforcing the
// closed transition table. It returns ErrAlreadyInState or
// ErrIllegalTransition without touching the row.
func (s *Store) Transition(ctx context.Context, orderID string, to Status) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.transitionTx(ctx, tx, orderID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) transitionTx(ctx context.Context, tx pgx.Tx, orderID string, to Status) error {
	var cur Status
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if err := CheckTransition(cur, to); err != nil {
		return err
	}
	if to == StatusPaid {
		_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, paid_at=now() WHERE id=$1`, orderID, to)
	} else {
		_, err = tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, orderID, to)
	}
	return err
}

// ConfirmPayment applies a payment-succeeded event as one atomic unit: record
// the event id, commit the ledger, move pending->paid->fulfilled, and issue
// gift certificates. Either all of it lands or none does.
//
// Duplicate deliveries surface as ErrDuplicateEvent (same event id) or a
// CheckTransition error (new event id, order no longer pending); both leave
// every row untouched except the processed-event record.
func (s *Store) ConfirmPayment(ctx context.Context, eventID, orderID string) ([]GiftCertificate, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	fresh, err := s.recordEventTx(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrDuplicateEvent
	}

	o, err := s.scanOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if terr := CheckTransition(o.Status, StatusPaid); terr != nil {
		// Keep the event record so the provider is not asked to
		// redeliver forever.
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, terr
	}

	if err := s.Ledger.CommitTx(ctx, tx, o.CheckoutID, o.Items); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, paid_at=now() WHERE id=$1`,
		orderID, StatusPaid); err != nil {
		return nil, err
	}

	certs, err := issueCertificatesTx(ctx, tx, o)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`,
		orderID, StatusFulfilled); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return certs, nil
}

// FailPayment applies a payment-failed event: release the checkout's holds
// and cancel the order, atomically with the event record.
func (s *Store) FailPayment(ctx context.Context, eventID, orderID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	fresh, err := s.recordEventTx(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if !fresh {
		return ErrDuplicateEvent
	}

	o, err := s.scanOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if terr := CheckTransition(o.Status, StatusCancelled); terr != nil {
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		return terr
	}

	if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE checkout_id=$1`, o.CheckoutID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`,
		orderID, StatusCancelled); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) scanOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*Order, error) {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM orders WHERE id=$1 FOR UPDATE`, orderID); err != nil {
		return nil, err
	}
	return s.scanOrder(ctx, tx, `WHERE id=$1`, orderID)
}

// recordEventTx returns false when the event id was already processed.
func (s *Store) recordEventTx(ctx context.Context, tx pgx.Tx, eventID string) (bool, error) {
	ct, err := tx.Exec(ctx, `
		INSERT INTO processed_events(event_id) VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
