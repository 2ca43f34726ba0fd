package product

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// Direction of a sort key.
type Direction int

const (
	Unsorted Direction = iota
	Asc
	Desc
)

// Filter narrows a catalog listing. Empty fields do not constrain.
type Filter struct {
	Name      string // matches name or scientific name
	Tags      string
	Habitat   string
	Feeding   string
	Behavior  string
	Ecosystem string
	OnSale    bool
	MinPrice  *money.Money
	MaxPrice  *money.Money
	MinSize   *money.Money
	MaxSize   *money.Money

	NameOrder  Direction
	PriceOrder Direction
}

// ParseFilter reads catalog filter query parameters.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Name:      strings.TrimSpace(q.Get("name")),
		Tags:      strings.TrimSpace(q.Get("tags")),
		Habitat:   strings.TrimSpace(q.Get("habitat")),
		Feeding:   strings.TrimSpace(q.Get("feeding")),
		Behavior:  strings.TrimSpace(q.Get("behavior")),
		Ecosystem: strings.TrimSpace(q.Get("ecosystem")),
	}

	if v := q.Get("on_sale"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Filter{}, validate.Field("on_sale", ErrInvalidFilter)
		}
		f.OnSale = b
	}

	bounds := []struct {
		key string
		dst **money.Money
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
		{"min_size", &f.MinSize},
		{"max_size", &f.MaxSize},
	}
	for _, b := range bounds {
		v := q.Get(b.key)
		if v == "" {
			continue
		}
		m, err := money.Parse(strings.TrimPrefix(strings.TrimSpace(v), "$"))
		if err != nil {
			return Filter{}, validate.Field(b.key, ErrInvalidFilter)
		}
		*b.dst = &m
	}

	switch q.Get("order_name") {
	case "":
	case "A-Z":
		f.NameOrder = Asc
	case "Z-A":
		f.NameOrder = Desc
	default:
		return Filter{}, validate.Field("order_name", ErrInvalidFilter)
	}

	switch strings.ToLower(q.Get("order_price")) {
	case "":
	case "asc":
		f.PriceOrder = Asc
	case "desc":
		f.PriceOrder = Desc
	default:
		return Filter{}, validate.Field("order_price", ErrInvalidFilter)
	}

	return f, nil
}
