package sale

import (
	"fmt"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/fishnet/internal/domain/validate"
)

// Draft is an undecided sale request. Optional scalars are nil when the key
// was absent or null.
type Draft struct {
	// Credential is the bearer token, taken from the request headers rather
	// than the body.
	Credential       string
	Customer         *GuestInput
	Items            []ItemInput
	Tax              string
	Shipping         string
	ShippingProvider *string
	PaymentMethod    string
	PaymentProvider  *string
	Status           *string
}

// ItemInput is a raw cart entry.
type ItemInput struct {
	ProductID string
	Quantity  int64
}

// DecodeDraft strictly decodes a sale request body. Unknown keys, including a
// client supplied price or creation date, are rejected.
func DecodeDraft(data []byte) (Draft, error) {
	var dr Draft
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return Draft{}, ErrMalformedBody
	}

	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch k := string(key); k {
		case "customer":
			dr.Customer, err = decodeCustomer(d)
		case "items":
			dr.Items, err = decodeItems(d)
		case "tax":
			dr.Tax, err = decodeAmount(d, k)
		case "shipping":
			dr.Shipping, err = decodeAmount(d, k)
		case "shipping_provider":
			dr.ShippingProvider, err = decodeOptString(d, k, ErrMissingShippingProvider)
		case "payment_method":
			var m *string
			m, err = decodeOptString(d, k, ErrUnsupportedPaymentMethod)
			if m != nil {
				dr.PaymentMethod = *m
			}
		case "payment_provider":
			dr.PaymentProvider, err = decodeOptString(d, k, ErrInvalidField)
		case "status":
			dr.Status, err = decodeStatus(d)
		default:
			err = validate.Field(k, ErrUnknownField)
		}
		return err
	})
	if err != nil {
		if validate.Is(err) {
			return Draft{}, validate.Cause(err)
		}
		return Draft{}, ErrMalformedBody
	}
	return dr, nil
}

func decodeCustomer(d *jx.Decoder) (*GuestInput, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Object:
	default:
		return nil, validate.Field("customer", ErrInvalidCustomerField)
	}

	g := &GuestInput{}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		var dst **string
		switch k {
		case "name":
			dst = &g.Name
		case "surname":
			dst = &g.Surname
		case "street_address":
			dst = &g.StreetAddress
		case "postal_code":
			dst = &g.PostalCode
		case "email":
			dst = &g.Email
		case "city":
			dst = &g.City
		case "state":
			dst = &g.State
		case "phone":
			dst = &g.Phone
		default:
			return validate.Field("customer."+k, ErrUnknownField)
		}

		v, err := decodeOptString(d, "customer."+k, ErrInvalidCustomerField)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func decodeItems(d *jx.Decoder) ([]ItemInput, error) {
	if d.Next() != jx.Array {
		return nil, validate.Field("items", ErrInvalidItems)
	}

	items := []ItemInput{}
	err := d.Arr(func(d *jx.Decoder) error {
		path := fmt.Sprintf("items[%d]", len(items))
		if d.Next() != jx.Object {
			return validate.Field(path, ErrInvalidItems)
		}

		var item ItemInput
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch k := string(key); k {
			case "id":
				if d.Next() != jx.String {
					return validate.Field(path+".id", ErrInvalidProductReference)
				}
				s, err := d.Str()
				item.ProductID = s
				return err
			case "quantity":
				if d.Next() != jx.Number {
					return validate.Field(path+".quantity", ErrInvalidQuantity)
				}
				n, err := d.Num()
				if err != nil {
					return err
				}
				q, err := strconv.ParseInt(string(n), 10, 64)
				if err != nil {
					return validate.Field(path+".quantity", ErrInvalidQuantity)
				}
				item.Quantity = q
				return nil
			default:
				return validate.Field(path+"."+k, ErrUnknownField)
			}
		}); err != nil {
			return err
		}

		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// decodeAmount returns the literal text of a string or number amount. Parsing
// is left to the builder.
func decodeAmount(d *jx.Decoder, field string) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return string(n), err
	default:
		return "", validate.Field(field, ErrInvalidField)
	}
}

func decodeOptString(d *jx.Decoder, field string, kind *validate.Error) (*string, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, validate.Field(field, kind)
	}
}

// decodeStatus accepts a status name or numeric code.
func decodeStatus(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		s := string(n)
		return &s, nil
	}
	return decodeOptString(d, "status", ErrInvalidStatus)
}
