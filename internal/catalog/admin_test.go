package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductInputValidate(t *testing.T) {
	variant := VariantInput{Name: "default", InventoryQuantity: 10}
	cases := []struct {
		name   string
		in     ProductInput
		wantOK bool
	}{
		{
			name:   "physical with variants",
			in:     ProductInput{Name: "Mug", BasePriceCents: 1500, Type: TypePhysical, TrackInventory: true, Variants: []VariantInput{variant}},
			wantOK: true,
		},
		{
			name:   "untracked without variants",
			in:     ProductInput{Name: "Sticker", BasePriceCents: 300, Type: TypePhysical},
			wantOK: true,
		},
		{
			name:   "gift certificate",
			in:     ProductInput{Name: "Gift Certificate", BasePriceCents: 10000, Type: TypeGiftCertificate},
			wantOK: true,
		},
		{
			name: "missing name",
			in:   ProductInput{BasePriceCents: 1500, Type: TypePhysical},
		},
		{
			name: "negative price",
			in:   ProductInput{Name: "Mug", BasePriceCents: -1, Type: TypePhysical},
		},
		{
			name: "unknown type",
			in:   ProductInput{Name: "Mug", BasePriceCents: 1500, Type: "digital"},
		},
		{
			// Stock lives on variant rows; tracking without any would let
			// the product sell with no reservation check.
			name: "tracked without variants",
			in:   ProductInput{Name: "Mug", BasePriceCents: 1500, Type: TypePhysical, TrackInventory: true},
		},
		{
			name: "free gift certificate",
			in:   ProductInput{Name: "Gift Certificate", BasePriceCents: 0, Type: TypeGiftCertificate},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.validate()
			if tc.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
