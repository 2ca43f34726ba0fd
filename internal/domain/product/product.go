package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// ErrNotFound is returned when a requested species does not exist.
var ErrNotFound = errors.New("species not found")

// Validation failures for catalog writes.
var (
	ErrMissingName   = validate.New("name is required")
	ErrInvalidPrice  = validate.New("price must be greater than zero")
	ErrInvalidStock  = validate.New("stock must not be negative")
	ErrInvalidID     = validate.New("invalid species id")
	ErrInvalidFilter = validate.New("invalid filter value")
)

// Product is a species listed in the catalog.
type Product struct {
	ID             string
	Name           string
	ScientificName string
	Price          money.Money
	Stock          int64
	Tags           []string
	Habitat        string
	Feeding        string
	SocialBehavior string
	Ecosystem      string
	Size           money.Money
	OnSale         bool
	Picture        string
	Description    string
	CreatedAt      time.Time
}

// Validate checks the invariants of a catalog write.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return validate.Field("name", ErrMissingName)
	}
	if p.Price.IsNegative() || p.Price.IsZero() {
		return validate.Field("price", ErrInvalidPrice)
	}
	if p.Stock < 0 {
		return validate.Field("stock", ErrInvalidStock)
	}
	return nil
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	Search(ctx context.Context, query string) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	DecrementStock(ctx context.Context, id string, qty int64) error
	// Each streams every species in id order.
	Each(ctx context.Context, fn func(*Product) error) error
}
