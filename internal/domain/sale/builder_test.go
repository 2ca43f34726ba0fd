package sale

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/validate"
)

func TestBuild_PixGuest(t *testing.T) {
	f := newFixture(t)

	s, err := f.builder.Build(context.Background(), pixDraft())
	require.NoError(t, err)

	parsed, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	assert.IsType(t, Guest{}, s.Customer)
	assert.Equal(t, InProgress, s.Status)
	assert.Equal(t, Pix, s.PaymentMethod)
	assert.Empty(t, s.PaymentProvider)
	assert.Equal(t, "standard", s.ShippingProvider)
	assert.Equal(t, "2024-05-10T15:00:00Z", s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	require.Len(t, s.Items, 1)
	assert.Equal(t, "19.99", s.Items[0].UnitPrice.String())
	// 19.99*2 + 1.50 + 5.00
	assert.Equal(t, "46.48", s.Total.String())
}

func TestBuild_TotalIsExact(t *testing.T) {
	f := newFixture(t)
	dr := pixDraft()
	dr.Items = []ItemInput{{ProductID: bettaID, Quantity: 3}}
	dr.Tax = "0.20"
	dr.Shipping = "0"

	s, err := f.builder.Build(context.Background(), dr)
	require.NoError(t, err)
	assert.True(t, s.Total.Equal(money.MustParse("0.50")), s.Total.String())
}

func TestBuild_Registered(t *testing.T) {
	f := newFixture(t)
	dr := pixDraft()
	dr.Customer = nil
	dr.Credential = f.token(t, accountID)

	s, err := f.builder.Build(context.Background(), dr)
	require.NoError(t, err)
	assert.Equal(t, Registered{AccountID: accountID}, s.Customer)
}

func TestBuild_PaymentProviderRule(t *testing.T) {
	tests := []struct {
		method   string
		provider *string
		want     error
	}{
		{method: "pix"},
		{method: "pix", provider: ptr("")},
		{method: "pix", provider: ptr("stone"), want: ErrUnexpectedPaymentProvider},
		{method: "credit", want: ErrMissingPaymentProvider},
		{method: "credit", provider: ptr("  "), want: ErrMissingPaymentProvider},
		{method: "credit", provider: ptr("visa")},
		{method: "DEBIT", provider: ptr("elo")},
		{method: "debit", want: ErrMissingPaymentProvider},
		{method: "boleto", provider: ptr("x"), want: ErrUnsupportedPaymentMethod},
		{method: "", want: ErrUnsupportedPaymentMethod},
	}
	for _, tt := range tests {
		name := tt.method
		if tt.provider != nil {
			name += "/" + *tt.provider
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			dr := pixDraft()
			dr.PaymentMethod = tt.method
			dr.PaymentProvider = tt.provider

			s, err := f.builder.Build(context.Background(), dr)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				assert.Zero(t, f.catalog.calls, "catalog must not be consulted for an invalid sale")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, s.PaymentMethod != Pix, s.PaymentProvider != "")
		})
	}
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
		want   error
		field  string
	}{
		{"empty cart", func(d *Draft) { d.Items = nil }, ErrEmptyCart, "items"},
		{"bad product id", func(d *Draft) { d.Items[0].ProductID = "tetra" }, ErrInvalidProductReference, "items[0].id"},
		{"zero quantity", func(d *Draft) { d.Items[0].Quantity = 0 }, ErrInvalidQuantity, "items[0].quantity"},
		{"negative quantity", func(d *Draft) { d.Items[0].Quantity = -1 }, ErrInvalidQuantity, "items[0].quantity"},
		{"negative tax", func(d *Draft) { d.Tax = "-1" }, money.ErrInvalidAmount, "tax"},
		{"missing tax", func(d *Draft) { d.Tax = "" }, money.ErrInvalidAmount, "tax"},
		{"lossy shipping", func(d *Draft) { d.Shipping = "5.00001" }, money.ErrInvalidAmount, "shipping"},
		{"blank shipping provider", func(d *Draft) { d.ShippingProvider = ptr(" ") }, ErrMissingShippingProvider, "shipping_provider"},
		{"done status", func(d *Draft) { d.Status = ptr("done") }, ErrInvalidStatus, "status"},
		{"numeric done status", func(d *Draft) { d.Status = ptr("1") }, ErrInvalidStatus, "status"},
		{"unknown status", func(d *Draft) { d.Status = ptr("paid") }, ErrInvalidStatus, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			dr := pixDraft()
			tt.mutate(&dr)

			_, err := f.builder.Build(context.Background(), dr)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, validate.Is(err))
			assert.Equal(t, tt.field, validate.FieldOf(err))
		})
	}
}

func TestBuild_AcceptsInitialStatus(t *testing.T) {
	for _, st := range []string{"in_progress", "0", "IN_PROGRESS"} {
		f := newFixture(t)
		dr := pixDraft()
		dr.Status = ptr(st)
		_, err := f.builder.Build(context.Background(), dr)
		require.NoError(t, err, st)
	}
}

func TestBuild_ProductNotFound(t *testing.T) {
	f := newFixture(t)
	dr := pixDraft()
	missing := "0190a5e2-7c1b-7a55-9d6f-3c1e9b0f1aff"
	dr.Items = append(dr.Items, ItemInput{ProductID: missing, Quantity: 1})

	_, err := f.builder.Build(context.Background(), dr)
	var nf *ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, missing, nf.ProductID)
	assert.False(t, validate.Is(err))
}

func TestBuild_BatchesDuplicateProducts(t *testing.T) {
	f := newFixture(t)
	dr := pixDraft()
	dr.Items = []ItemInput{
		{ProductID: neonTetraID, Quantity: 1},
		{ProductID: bettaID, Quantity: 2},
		{ProductID: neonTetraID, Quantity: 3},
	}

	s, err := f.builder.Build(context.Background(), dr)
	require.NoError(t, err)
	assert.Equal(t, 1, f.catalog.calls)
	assert.ElementsMatch(t, []string{neonTetraID, bettaID}, f.catalog.lastID)
	require.Len(t, s.Items, 3)
	assert.Equal(t, int64(3), s.Items[2].Quantity)
	// 19.99*4 + 0.10*2 + 6.50
	assert.Equal(t, "86.66", s.Total.String())
}

func TestBuild_CatalogFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = errDB

	_, err := f.builder.Build(context.Background(), pixDraft())
	require.ErrorIs(t, err, errDB)
	assert.False(t, validate.Is(err))
}

func TestBuild_EmptyCartWinsOverIdentity(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"no customer", func(d *Draft) { d.Customer = nil }},
		{"bad credential", func(d *Draft) { d.Customer = nil; d.Credential = "not-a-token" }},
		{"credential and customer", func(d *Draft) { d.Credential = "not-a-token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			dr := pixDraft()
			dr.Items = []ItemInput{}
			tt.mutate(&dr)

			_, err := f.builder.Build(context.Background(), dr)
			require.ErrorIs(t, err, ErrEmptyCart)
			assert.Equal(t, "items", validate.FieldOf(err))
			assert.Zero(t, f.catalog.calls)
		})
	}
}

func TestBuild_TotalBeyondStoragePrecision(t *testing.T) {
	t.Run("line amount", func(t *testing.T) {
		f := newFixture(t)
		dr := pixDraft()
		dr.Items[0].Quantity = 9_000_000_000_000_000

		_, err := f.builder.Build(context.Background(), dr)
		require.ErrorIs(t, err, ErrInvalidQuantity)
		assert.Equal(t, "items[0].quantity", validate.FieldOf(err))
	})

	t.Run("sum of lines", func(t *testing.T) {
		f := newFixture(t)
		dr := pixDraft()
		// Each line is 19.99 * 3e12 = 59.97e12, the sum passes 1e14.
		dr.Items = []ItemInput{
			{ProductID: neonTetraID, Quantity: 3_000_000_000_000},
			{ProductID: neonTetraID, Quantity: 3_000_000_000_000},
		}

		_, err := f.builder.Build(context.Background(), dr)
		require.ErrorIs(t, err, money.ErrInvalidAmount)
		assert.Equal(t, "total", validate.FieldOf(err))
	})

	t.Run("largest storable", func(t *testing.T) {
		f := newFixture(t)
		dr := pixDraft()
		dr.Items = []ItemInput{{ProductID: bettaID, Quantity: 900_000_000_000_000}}

		s, err := f.builder.Build(context.Background(), dr)
		require.NoError(t, err)
		assert.Equal(t, "90000000000006.50", s.Total.String())
	})
}
