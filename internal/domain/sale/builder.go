package sale

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// Catalog provides authoritative unit prices.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// DefaultShippingProvider is used when a request omits shipping_provider.
	DefaultShippingProvider string
}

// Builder turns a Draft into a validated Sale. It performs reads only.
type Builder struct {
	identities *IdentityResolver
	catalog    Catalog
	cfg        BuilderConfig

	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// NewBuilder creates a Builder.
func NewBuilder(identities *IdentityResolver, catalog Catalog, cfg BuilderConfig) *Builder {
	return &Builder{
		identities: identities,
		catalog:    catalog,
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewV7,
	}
}

// Build validates every part of the draft and prices the cart from the
// catalog. The first failure is returned.
func (b *Builder) Build(ctx context.Context, dr Draft) (*Sale, error) {
	if err := checkItems(dr.Items); err != nil {
		return nil, err
	}
	customer, err := b.identities.Resolve(ctx, dr.Credential, dr.Customer)
	if err != nil {
		return nil, err
	}

	tax, err := parseAmount("tax", dr.Tax)
	if err != nil {
		return nil, err
	}
	shipping, err := parseAmount("shipping", dr.Shipping)
	if err != nil {
		return nil, err
	}

	shippingProvider := b.cfg.DefaultShippingProvider
	if dr.ShippingProvider != nil {
		shippingProvider = strings.TrimSpace(*dr.ShippingProvider)
	}
	if shippingProvider == "" {
		return nil, validate.Field("shipping_provider", ErrMissingShippingProvider)
	}

	method, err := ParsePaymentMethod(dr.PaymentMethod)
	if err != nil {
		return nil, validate.Field("payment_method", ErrUnsupportedPaymentMethod)
	}
	var provider string
	if dr.PaymentProvider != nil {
		provider = strings.TrimSpace(*dr.PaymentProvider)
	}
	switch {
	case method.RequiresProvider() && provider == "":
		return nil, validate.Field("payment_provider", ErrMissingPaymentProvider)
	case !method.RequiresProvider() && provider != "":
		return nil, validate.Field("payment_provider", ErrUnexpectedPaymentProvider)
	}

	if dr.Status != nil {
		if st, ok := ParseStatus(*dr.Status); !ok || st != InProgress {
			return nil, validate.Field("status", ErrInvalidStatus)
		}
	}

	items, err := b.price(ctx, dr.Items)
	if err != nil {
		return nil, err
	}

	id, err := b.newID()
	if err != nil {
		return nil, errors.Wrap(err, "generate sale id")
	}
	s := &Sale{
		ID:               id.String(),
		Customer:         customer,
		Items:            items,
		Tax:              tax,
		Shipping:         shipping,
		ShippingProvider: shippingProvider,
		PaymentMethod:    method,
		PaymentProvider:  provider,
		Status:           InProgress,
		CreatedAt:        b.now().UTC(),
	}
	for i, it := range items {
		if !it.Amount().InRange() {
			return nil, validate.Field(fmt.Sprintf("items[%d].quantity", i), ErrInvalidQuantity)
		}
	}
	s.Total = s.Subtotal().Add(tax).Add(shipping)
	if !s.Total.InRange() {
		return nil, validate.Field("total", money.ErrInvalidAmount)
	}
	return s, nil
}

// checkItems validates cart shape before any catalog lookup.
func checkItems(items []ItemInput) error {
	if len(items) == 0 {
		return validate.Field("items", ErrEmptyCart)
	}
	for i, it := range items {
		if err := uuid.Validate(it.ProductID); err != nil {
			return validate.Field(fmt.Sprintf("items[%d].id", i), ErrInvalidProductReference)
		}
		if it.Quantity <= 0 {
			return validate.Field(fmt.Sprintf("items[%d].quantity", i), ErrInvalidQuantity)
		}
	}
	return nil
}

// price looks up every referenced species in one batch. Client prices are
// never consulted.
func (b *Builder) price(ctx context.Context, in []ItemInput) ([]LineItem, error) {
	ids := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, it := range in {
		id := strings.ToLower(it.ProductID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	fetched, err := b.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get species")
	}
	prices := make(map[string]money.Money, len(fetched))
	for _, p := range fetched {
		prices[strings.ToLower(p.ID)] = p.Price
	}

	items := make([]LineItem, len(in))
	for i, it := range in {
		id := strings.ToLower(it.ProductID)
		price, ok := prices[id]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		items[i] = LineItem{ProductID: id, UnitPrice: price, Quantity: it.Quantity}
	}
	return items, nil
}

func parseAmount(field, text string) (money.Money, error) {
	m, err := money.Parse(text)
	if err != nil || m.IsNegative() {
		return money.Money{}, validate.Field(field, money.ErrInvalidAmount)
	}
	return m, nil
}
