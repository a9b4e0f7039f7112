package checkout

import (
	"context"
	"crypto/rand"
	"encoding/base32"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewCode returns a redeemable certificate code, 16 random bytes
// base32-encoded under a GC- prefix.
func NewCode() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return "GC-" + codeEncoding.EncodeToString(b[:]), nil
}

// issueCertificatesTx creates one certificate per gift-certificate line item,
// inside the caller's paid transaction. Issuance is keyed on
// (order_id, line_index), so a line that already has a certificate is skipped.
func issueCertificatesTx(ctx context.Context, tx pgx.Tx, o *Order) ([]GiftCertificate, error) {
	var out []GiftCertificate
	for i, it := range o.Items {
		if it.Kind != KindGiftCertificate {
			continue
		}
		cert := GiftCertificate{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			LineIndex:      i,
			InitialCents:   it.TotalCents(),
			RemainingCents: it.TotalCents(),
		}
		if r := it.GiftRecipient; r != nil {
			cert.RecipientName = r.Name
			cert.RecipientEmail = r.Email
			cert.Message = r.Message
		}

		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		cert.Code = code
		ct, err := tx.Exec(ctx, `
			INSERT INTO gift_certificates(id, code, order_id, line_index,
			        initial_cents, remaining_cents, recipient_name, recipient_email, message)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (order_id, line_index) DO NOTHING`,
			cert.ID, cert.Code, cert.OrderID, cert.LineIndex,
			cert.InitialCents, cert.RemainingCents,
			cert.RecipientName, cert.RecipientEmail, cert.Message)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 1 {
			out = append(out, cert)
		}
	}
	return out, nil
}
