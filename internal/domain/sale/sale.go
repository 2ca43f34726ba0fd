// Package sale builds, validates and queries sales of catalog species.
package sale

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// ErrNotFound is returned when a sale does not exist.
var ErrNotFound = errors.New("sale not found")

// Validation failures. Each is reported with the offending field path.
var (
	ErrMalformedBody             = validate.New("malformed JSON body")
	ErrUnknownField              = validate.New("unknown field")
	ErrInvalidField              = validate.New("invalid value")
	ErrConflictingIdentity       = validate.New("credential and customer are mutually exclusive")
	ErrMissingCustomer           = validate.New("customer or credential required")
	ErrMissingCustomerField      = validate.New("required customer field missing")
	ErrInvalidCustomerField      = validate.New("invalid customer field")
	ErrEmptyCart                 = validate.New("items must not be empty")
	ErrInvalidItems              = validate.New("items must be a list of objects")
	ErrInvalidProductReference   = validate.New("invalid product reference")
	ErrInvalidQuantity           = validate.New("quantity must be a positive integer")
	ErrMissingShippingProvider   = validate.New("shipping provider required")
	ErrUnsupportedPaymentMethod  = validate.New("unsupported payment method")
	ErrMissingPaymentProvider    = validate.New("payment provider required")
	ErrUnexpectedPaymentProvider = validate.New("payment provider not allowed for pix")
	ErrInvalidStatus             = validate.New("status must be in_progress on creation")
	ErrOutOfStock                = validate.New("insufficient stock")
	ErrInvalidDateFormat         = validate.New("invalid date format")
	ErrInvalidOrdering           = validate.New("invalid ordering")
	ErrInvalidPagination         = validate.New("invalid pagination")
)

// ProductNotFoundError indicates a cart references a species that does not
// exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("species %s not found", e.ProductID)
}

// PaymentMethod is how a sale is paid.
type PaymentMethod string

const (
	Debit  PaymentMethod = "debit"
	Credit PaymentMethod = "credit"
	Pix    PaymentMethod = "pix"
)

// ParsePaymentMethod matches s case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case Debit, Credit, Pix:
		return m, nil
	}
	return "", ErrUnsupportedPaymentMethod
}

// RequiresProvider reports whether the method needs a payment provider.
func (m PaymentMethod) RequiresProvider() bool { return m != Pix }

// Status is the lifecycle state of a sale.
type Status int16

const (
	InProgress Status = iota
	Done
	Cancelled
)

var statusNames = [...]string{"in_progress", "done", "cancelled"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStatus accepts a status name or its numeric code.
func ParseStatus(s string) (Status, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range statusNames {
		if s == name || s == fmt.Sprint(i) {
			return Status(i), true
		}
	}
	return 0, false
}

// LineItem is one priced cart entry. UnitPrice always comes from the catalog.
type LineItem struct {
	ProductID string
	UnitPrice money.Money
	Quantity  int64
}

// Amount returns UnitPrice × Quantity.
func (l LineItem) Amount() money.Money {
	return l.UnitPrice.MulInt(l.Quantity)
}

// Sale is a validated purchase. It is never mutated after Build except for
// its status.
type Sale struct {
	ID               string
	Customer         Identity
	Items            []LineItem
	Tax              money.Money
	Shipping         money.Money
	Total            money.Money
	ShippingProvider string
	PaymentMethod    PaymentMethod
	PaymentProvider  string
	Status           Status
	CreatedAt        time.Time
}

// Subtotal returns the sum of the line item amounts.
func (s *Sale) Subtotal() money.Money {
	total := money.Zero
	for _, it := range s.Items {
		total = total.Add(it.Amount())
	}
	return total
}

// Record is a stored sale together with the resolved customer name.
type Record struct {
	Sale
	CustomerName string
}

// MonthSummary aggregates the sales of a calendar month.
type MonthSummary struct {
	Total     money.Money
	Customers int
	Purchases int
}

// Repository defines sale persistence.
type Repository interface {
	// Create inserts the sale.
	Create(ctx context.Context, s *Sale) error
	// CreateAndReserve inserts the sale and decrements the stock of every
	// line item in one transaction, failing with ErrOutOfStock when a
	// species has fewer units than requested.
	CreateAndReserve(ctx context.Context, s *Sale) error
	GetByID(ctx context.Context, id string) (*Record, error)
	Count(ctx context.Context, f Filter) (int, error)
	Find(ctx context.Context, q Query) ([]Record, error)
	// Summarize aggregates sales created in [from, to).
	Summarize(ctx context.Context, from, to time.Time) (MonthSummary, error)
	// Each calls fn for every sale in id order.
	Each(ctx context.Context, fn func(*Record) error) error
}
