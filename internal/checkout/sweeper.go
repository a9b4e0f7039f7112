package checkout

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sweeper is the system's only timeout-driven cancellation: it deletes holds
// whose TTL elapsed and advances their still-pending orders to expired,
// returning the stock to the pool.
type Sweeper struct {
	DB       *pgxpool.Pool
	Store    *Store
	Interval time.Duration
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("reservation sweep: %v", err)
			} else if n > 0 {
				log.Printf("reservation sweep: released %d expired checkout(s)", n)
			}
		}
	}
}

// SweepOnce releases every expired checkout and returns how many it touched.
// Each checkout is handled in its own transaction so one failure does not
// hold back the rest.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT DISTINCT checkout_id FROM reservations WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, checkoutID := range ids {
		if err := s.sweepCheckout(ctx, checkoutID); err != nil {
			log.Printf("sweep checkout=%s: %v", checkoutID, err)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Sweeper) sweepCheckout(ctx context.Context, checkoutID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Re-check expiry under the transaction: a concurrent re-reserve may
	// have refreshed the hold since the candidate scan.
	ct, err := tx.Exec(ctx, `
		DELETE FROM reservations WHERE checkout_id=$1 AND expires_at <= now()`, checkoutID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return nil
	}

	var orderID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM orders WHERE checkout_id=$1 FOR UPDATE`, checkoutID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Reservation without an order: the checkout failed before the
		// order row was written. Nothing further to expire.
		return tx.Commit(ctx)
	}
	if err != nil {
		return err
	}

	if err := s.Store.transitionTx(ctx, tx, orderID, StatusExpired); err != nil &&
		!errors.Is(err, ErrAlreadyInState) && !errors.Is(err, ErrIllegalTransition) {
		return err
	}
	return tx.Commit(ctx)
}
