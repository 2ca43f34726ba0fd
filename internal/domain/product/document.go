package product

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// ErrInvalidDocument is returned for species documents that do not decode.
var ErrInvalidDocument = validate.New("invalid species document")

// DecodeDocument reads one species object in the API representation, as
// written by the catalog backup. Unknown keys are skipped. Amounts may be
// strings or numbers; null leaves a field at its zero value.
func DecodeDocument(d *jx.Decoder) (Product, error) {
	var p Product
	if d.Next() != jx.Object {
		return Product{}, ErrInvalidDocument
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		k := string(key)
		var err error
		switch k {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "scientific_name":
			p.ScientificName, err = d.Str()
		case "habitat":
			p.Habitat, err = d.Str()
		case "feeding":
			p.Feeding, err = d.Str()
		case "social_behavior":
			p.SocialBehavior, err = d.Str()
		case "ecosystem":
			p.Ecosystem, err = d.Str()
		case "picture":
			p.Picture, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "price":
			p.Price, err = decodeAmount(d)
		case "size":
			p.Size, err = decodeAmount(d)
		case "stock":
			p.Stock, err = d.Int64()
		case "on_sale":
			p.OnSale, err = d.Bool()
		case "tags":
			err = d.Arr(func(d *jx.Decoder) error {
				tag, err := d.Str()
				p.Tags = append(p.Tags, tag)
				return err
			})
		case "created_at":
			var s string
			if s, err = d.Str(); err == nil {
				p.CreatedAt, err = time.Parse(time.RFC3339, s)
			}
		default:
			return d.Skip()
		}
		if err != nil {
			return validate.Field(k, ErrInvalidDocument)
		}
		return nil
	})
	if err != nil {
		if validate.Is(err) {
			return Product{}, validate.Cause(err)
		}
		return Product{}, ErrInvalidDocument
	}
	return p, nil
}

func decodeAmount(d *jx.Decoder) (money.Money, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return money.Money{}, err
		}
		return money.Parse(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return money.Money{}, err
		}
		return money.Parse(n.String())
	default:
		return money.Money{}, money.ErrInvalidAmount
	}
}
