package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrSlugTaken = errors.New("catalog: slug already in use")

type ProductInput struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	BasePriceCents int            `json:"base_price_cents"`
	CompareAtCents *int           `json:"compare_at_cents"`
	TrackInventory bool           `json:"track_inventory"`
	Type           ProductType    `json:"type"`
	Active         bool           `json:"active"`
	Variants       []VariantInput `json:"variants"`
}

type VariantInput struct {
	Name              string `json:"name"`
	PriceCents        *int   `json:"price_cents"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

func (in *ProductInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("catalog: name is required")
	}
	if in.BasePriceCents < 0 {
		return fmt.Errorf("catalog: price must not be negative")
	}
	if in.Type != TypePhysical && in.Type != TypeGiftCertificate {
		return fmt.Errorf("catalog: unknown product type %q", in.Type)
	}
	// Stock is counted on variant rows; a tracked product with none would
	// sell without any reservation check.
	if in.TrackInventory && len(in.Variants) == 0 {
		return fmt.Errorf("catalog: track_inventory requires at least one variant")
	}
	if in.Type == TypeGiftCertificate && in.BasePriceCents == 0 {
		return fmt.Errorf("catalog: gift certificates need a positive price")
	}
	return nil
}

// CreateProduct inserts a product and its variants. The slug is derived
// server-side from the name; uniqueness is enforced by the database.
func (r *Repo) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p := Product{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Slug:           slug.Make(in.Name),
		Description:    in.Description,
		BasePriceCents: in.BasePriceCents,
		CompareAtCents: in.CompareAtCents,
		HasVariants:    len(in.Variants) > 0,
		TrackInventory: in.TrackInventory,
		Type:           in.Type,
		Active:         in.Active,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO products(id, name, slug, description, base_price_cents, compare_at_cents,
		                     has_variants, track_inventory, type, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Name, p.Slug, p.Description, p.BasePriceCents, p.CompareAtCents,
		p.HasVariants, p.TrackInventory, p.Type, p.Active)
	if isUniqueViolation(err) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, err
	}

	for _, vi := range in.Variants {
		v := Variant{
			ID:                uuid.NewString(),
			ProductID:         p.ID,
			Name:              vi.Name,
			PriceCents:        vi.PriceCents,
			InventoryQuantity: vi.InventoryQuantity,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO variants(id, product_id, name, price_cents, inventory_quantity)
			VALUES ($1,$2,$3,$4,$5)`,
			v.ID, v.ProductID, v.Name, v.PriceCents, v.InventoryQuantity); err != nil {
			return nil, err
		}
		p.Variants = append(p.Variants, v)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct rewrites the mutable product fields. Placed orders are
// unaffected: they carry their own price snapshots.
func (r *Repo) UpdateProduct(ctx context.Context, id string, in ProductInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products
		SET name=$2, description=$3, base_price_cents=$4, compare_at_cents=$5,
		    track_inventory=$6, active=$7, updated_at=now()
		WHERE id=$1`,
		id, in.Name, in.Description, in.BasePriceCents, in.CompareAtCents,
		in.TrackInventory, in.Active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVariantInventory is the admin-edit path onto inventory_quantity. The
// single UPDATE holds the same row lock reserve and commit contend on, so the
// edit serializes with in-flight checkouts.
func (r *Repo) SetVariantInventory(ctx context.Context, variantID string, quantity int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE variants SET inventory_quantity=$2 WHERE id=$1`, variantID, quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
