package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger tracks provisional holds on variant stock. Mutual exclusion is the
// database's: every check-and-insert runs under the variant row lock, so two
// concurrent holds for the last unit cannot both be granted.
type Ledger struct{ DB *pgxpool.Pool }

// Reserve grants a hold or reports the shortfall. Availability is the on-hand
// count minus active, unexpired holds by other checkouts; expired rows are
// excluded even before the sweeper deletes them. Untracked variants are
// granted unconditionally without a reservation row.
func (l *Ledger) Reserve(ctx context.Context, variantID, checkoutID string, qty int, ttl time.Duration) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var onHand int
	var tracked bool
	err = tx.QueryRow(ctx, `
		SELECT v.inventory_quantity, p.track_inventory
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id=$1
		FOR UPDATE OF v`, variantID).Scan(&onHand, &tracked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reserve: variant %s not found", variantID)
	}
	if err != nil {
		return err
	}
	if !tracked {
		return tx.Commit(ctx)
	}

	var reservedByOthers int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE variant_id=$1 AND checkout_id<>$2 AND expires_at > now()`,
		variantID, checkoutID).Scan(&reservedByOthers); err != nil {
		return err
	}
	if onHand-reservedByOthers-qty < 0 {
		return &InsufficientStockError{
			VariantID: variantID,
			Requested: qty,
			Available: onHand - reservedByOthers,
		}
	}

	// A retry for the same checkout replaces its own hold rather than
	// stacking a second one. Expiry is computed on the database clock,
	// the same clock the active-hold sum and the sweeper compare against.
	_, err = tx.Exec(ctx, `
		INSERT INTO reservations(variant_id, checkout_id, quantity, expires_at)
		VALUES ($1,$2,$3, now() + make_interval(secs => $4))
		ON CONFLICT (variant_id, checkout_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, expires_at = EXCLUDED.expires_at`,
		variantID, checkoutID, qty, ttl.Seconds())
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Release frees every hold tied to a checkout. Releasing a checkout that
// holds nothing, or releasing twice, is a no-op.
func (l *Ledger) Release(ctx context.Context, checkoutID string) error {
	_, err := l.DB.Exec(ctx, `DELETE FROM reservations WHERE checkout_id=$1`, checkoutID)
	return err
}

// CommitTx converts a checkout's holds into a permanent decrement of
// inventory_quantity and deletes the hold rows. It runs inside the caller's
// pending->paid transaction; idempotency comes from the order-state check the
// caller performs before invoking it, so a re-delivered confirmation never
// decrements twice. Quantities come from the order's line items, not the hold
// rows, so a commit still lands correctly when holds were swept early.
func (l *Ledger) CommitTx(ctx context.Context, tx pgx.Tx, checkoutID string, items []LineItem) error {
	for _, it := range items {
		if it.VariantID == nil {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE variants v
			SET inventory_quantity = v.inventory_quantity - $2
			FROM products p
			WHERE v.id=$1 AND p.id = v.product_id AND p.track_inventory`,
			*it.VariantID, it.Quantity); err != nil {
			return err
		}
	}
	_, err := tx.Exec(ctx, `DELETE FROM reservations WHERE checkout_id=$1`, checkoutID)
	return err
}

// Available reports how many units of a variant a new checkout could reserve
// right now.
func (l *Ledger) Available(ctx context.Context, variantID string) (int, error) {
	var n int
	err := l.DB.QueryRow(ctx, `
		SELECT v.inventory_quantity - COALESCE((
			SELECT SUM(r.quantity) FROM reservations r
			WHERE r.variant_id = v.id AND r.expires_at > now()
		), 0)
		FROM variants v WHERE v.id=$1`, variantID).Scan(&n)
	return n, err
}
