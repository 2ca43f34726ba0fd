package sale

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/validate"
)

const (
	DefaultCount = 20
	MaxCount     = 100
)

// Filter selects sales. Zero fields match everything.
type Filter struct {
	// Name matches the customer name case-insensitively.
	Name string
	// PaymentMethod matches the payment method case-insensitively.
	PaymentMethod string
	Status        *Status
	MinTotal      *money.Money
	MaxTotal      *money.Money
	MinDate       *time.Time
	MaxDate       *time.Time
	// Products keeps sales containing at least one of the listed species.
	Products []string
}

// SortField is a sortable column.
type SortField string

const (
	SortTotal SortField = "total"
	SortDate  SortField = "date"
	SortName  SortField = "name"
)

// SortKey orders by one field.
type SortKey struct {
	Field SortField
	Desc  bool
}

// Query is a filter plus ordering and pagination. Without sort keys, sales
// are ordered by id, which is creation order.
type Query struct {
	Filter
	Sort  []SortKey
	Count int
	Page  int
}

// Offset returns the number of rows skipped before the current page.
func (q Query) Offset() int { return (q.Page - 1) * q.Count }

// Page is one page of filter results.
type Page struct {
	Match     []Record
	PageCount int
}

// PageCount returns ceil(total/count), or 0 when nothing matched.
func PageCount(total, count int) int {
	if total <= 0 || count <= 0 {
		return 0
	}
	return (total + count - 1) / count
}

// ParseQuery reads filter, sort and pagination parameters.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{Count: DefaultCount, Page: 1}
	f := &q.Filter

	f.Name = strings.TrimSpace(v.Get("name"))
	f.PaymentMethod = strings.TrimSpace(v.Get("payment_method"))

	if s := v.Get("status"); s != "" {
		st, ok := ParseStatus(s)
		if !ok {
			return Query{}, validate.Field("status", ErrInvalidField)
		}
		f.Status = &st
	}

	var err error
	if f.MinTotal, err = parseBound(v, "min_total"); err != nil {
		return Query{}, err
	}
	if f.MaxTotal, err = parseBound(v, "max_total"); err != nil {
		return Query{}, err
	}
	if f.MinDate, err = parseDateParam(v, "min_date"); err != nil {
		return Query{}, err
	}
	if f.MaxDate, err = parseDateParam(v, "max_date"); err != nil {
		return Query{}, err
	}

	for _, raw := range v["products"] {
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if uuid.Validate(id) != nil {
				return Query{}, validate.Field("products", ErrInvalidProductReference)
			}
			f.Products = append(f.Products, strings.ToLower(id))
		}
	}

	if q.Sort, err = ParseSort(v.Get("sort")); err != nil {
		return Query{}, err
	}

	if s := v.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxCount {
			return Query{}, validate.Field("count", ErrInvalidPagination)
		}
		q.Count = n
	}
	if s := v.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return Query{}, validate.Field("page", ErrInvalidPagination)
		}
		q.Page = n
	}
	return q, nil
}

// ParseSort reads a comma separated list of {+|-}field tokens. Spaces before
// an explicit sign are ignored; a bare leading space counts as '+', since an
// unescaped '+' decodes to a space.
func ParseSort(s string) ([]SortKey, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var keys []SortKey
	for _, tok := range strings.Split(s, ",") {
		rest := strings.TrimLeft(tok, " ")
		var key SortKey
		switch {
		case rest == "":
			return nil, validate.Field("sort", ErrInvalidOrdering)
		case rest[0] == '+':
			rest = rest[1:]
		case rest[0] == '-':
			key.Desc = true
			rest = rest[1:]
		case len(rest) == len(tok):
			return nil, validate.Field("sort", ErrInvalidOrdering)
		}
		switch f := SortField(strings.TrimSpace(rest)); f {
		case SortTotal, SortDate, SortName:
			key.Field = f
		default:
			return nil, validate.Field("sort", ErrInvalidOrdering)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ParseDate accepts an ISO-8601 date (start of day UTC), an RFC 3339
// timestamp or milliseconds since the Unix epoch.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	// An unescaped '+' in a zone offset arrives as a space.
	if t, err := time.Parse(time.RFC3339Nano, strings.Replace(s, " ", "+", 1)); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, ErrInvalidDateFormat
}

func parseDateParam(v url.Values, key string) (*time.Time, error) {
	s := v.Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, validate.Field(key, ErrInvalidDateFormat)
	}
	return &t, nil
}

func parseBound(v url.Values, key string) (*money.Money, error) {
	s := v.Get(key)
	if s == "" {
		return nil, nil
	}
	m, err := money.Parse(s)
	if err != nil {
		return nil, validate.Field(key, money.ErrInvalidAmount)
	}
	return &m, nil
}
