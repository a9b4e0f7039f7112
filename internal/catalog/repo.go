package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("catalog: not found")

	// ErrVariantRequired rejects a cart line that names a product whose
	// purchasable unit is a variant row, without selecting one.
	ErrVariantRequired = errors.New("catalog: variant selection required")
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, slug, description, base_price_cents, compare_at_cents,
		       has_variants, track_inventory, type, active, created_at, updated_at
		FROM products
		WHERE active
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.BasePriceCents, &p.CompareAtCents,
			&p.HasVariants, &p.TrackInventory, &p.Type, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, slug, description, base_price_cents, compare_at_cents,
		       has_variants, track_inventory, type, active, created_at, updated_at
		FROM products WHERE slug=$1`, slug).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.BasePriceCents, &p.CompareAtCents,
			&p.HasVariants, &p.TrackInventory, &p.Type, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, name, price_cents, inventory_quantity, created_at
		FROM variants WHERE product_id=$1 ORDER BY name`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceCents, &v.InventoryQuantity, &v.CreatedAt); err != nil {
			return nil, err
		}
		p.Variants = append(p.Variants, v)
	}
	return &p, rows.Err()
}

// Resolve validates a cart line against the catalog and returns the
// authoritative unit price. variantID may be empty only for products without
// variants; tracked inventory always lives on a variant row, so a tracked
// product cannot be resolved without one.
func (r *Repo) Resolve(ctx context.Context, productID, variantID string) (*Resolved, error) {
	if variantID == "" {
		var res Resolved
		var hasVariants bool
		err := r.DB.QueryRow(ctx, `
			SELECT id, name, base_price_cents, has_variants, track_inventory, type, active
			FROM products WHERE id=$1`, productID).
			Scan(&res.ProductID, &res.Name, &res.UnitPriceCents, &hasVariants, &res.TrackInventory, &res.Type, &res.Active)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if hasVariants || res.TrackInventory {
			return nil, ErrVariantRequired
		}
		return &res, nil
	}

	var res Resolved
	var basePrice int
	var override *int
	var vid, variantName string
	err := r.DB.QueryRow(ctx, `
		SELECT p.id, p.name, p.base_price_cents, p.track_inventory, p.type, p.active,
		       v.id, v.name, v.price_cents
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id=$1 AND p.id=$2`, variantID, productID).
		Scan(&res.ProductID, &res.Name, &basePrice, &res.TrackInventory, &res.Type, &res.Active,
			&vid, &variantName, &override)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.VariantID = &vid
	res.Name = res.Name + " / " + variantName
	res.UnitPriceCents = basePrice
	if override != nil {
		res.UnitPriceCents = *override
	}
	return &res, nil
}
