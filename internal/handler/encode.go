package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/jx"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/sale"
)

const contentTypeJSON = "application/json; charset=utf-8"

// writeJSON sends the encoder's buffer.
func writeJSON(c *gin.Context, status int, e *jx.Encoder) {
	c.Data(status, contentTypeJSON, e.Bytes())
}

func encodeMoney(e *jx.Encoder, field string, m money.Money) {
	e.FieldStart(field)
	e.Str(m.String())
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeStr(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	e.Str(v)
}

func (h *Handler) picture(p string) string {
	if h.imageBaseURL == "" || p == "" || strings.Contains(p, "://") {
		return p
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(p, "/")
}

func (h *Handler) encodeSpecies(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	encodeStr(e, "id", p.ID)
	encodeStr(e, "name", p.Name)
	encodeStr(e, "scientific_name", p.ScientificName)
	encodeMoney(e, "price", p.Price)
	e.FieldStart("stock")
	e.Int64(p.Stock)
	e.FieldStart("tags")
	e.ArrStart()
	for _, tag := range p.Tags {
		e.Str(tag)
	}
	e.ArrEnd()
	encodeStr(e, "habitat", p.Habitat)
	encodeStr(e, "feeding", p.Feeding)
	encodeStr(e, "social_behavior", p.SocialBehavior)
	encodeStr(e, "ecosystem", p.Ecosystem)
	encodeMoney(e, "size", p.Size)
	e.FieldStart("on_sale")
	e.Bool(p.OnSale)
	encodeStr(e, "picture", h.picture(p.Picture))
	encodeStr(e, "description", p.Description)
	encodeTime(e, "created_at", p.CreatedAt)
	e.ObjEnd()
}

func (h *Handler) encodeSpeciesList(e *jx.Encoder, ps []product.Product) {
	e.ArrStart()
	for i := range ps {
		h.encodeSpecies(e, &ps[i])
	}
	e.ArrEnd()
}

func encodeCustomer(e *jx.Encoder, id sale.Identity) {
	e.FieldStart("customer")
	switch c := id.(type) {
	case sale.Registered:
		e.ObjStart()
		encodeStr(e, "account_id", c.AccountID)
		e.ObjEnd()
	case sale.Guest:
		e.ObjStart()
		encodeStr(e, "name", c.Name)
		encodeStr(e, "surname", c.Surname)
		encodeStr(e, "street_address", c.StreetAddress)
		encodeStr(e, "postal_code", c.PostalCode)
		encodeStr(e, "email", c.Email)
		for _, f := range [...]struct{ name, v string }{
			{"city", c.City},
			{"state", c.State},
			{"phone", c.Phone},
		} {
			if f.v != "" {
				encodeStr(e, f.name, f.v)
			}
		}
		e.ObjEnd()
	default:
		e.Null()
	}
}

func encodeSale(e *jx.Encoder, r *sale.Record) {
	e.ObjStart()
	encodeStr(e, "id", r.ID)
	encodeCustomer(e, r.Customer)
	encodeStr(e, "customer_name", r.CustomerName)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range r.Items {
		e.ObjStart()
		encodeStr(e, "product_id", it.ProductID)
		encodeMoney(e, "unit_price", it.UnitPrice)
		e.FieldStart("quantity")
		e.Int64(it.Quantity)
		encodeMoney(e, "amount", it.Amount())
		e.ObjEnd()
	}
	e.ArrEnd()
	encodeMoney(e, "subtotal", r.Subtotal())
	encodeMoney(e, "tax", r.Tax)
	encodeMoney(e, "shipping", r.Shipping)
	encodeMoney(e, "total", r.Total)
	encodeStr(e, "shipping_provider", r.ShippingProvider)
	encodeStr(e, "payment_method", string(r.PaymentMethod))
	if r.PaymentProvider != "" {
		encodeStr(e, "payment_provider", r.PaymentProvider)
	}
	encodeStr(e, "status", r.Status.String())
	encodeTime(e, "created_at", r.CreatedAt)
	e.ObjEnd()
}

func encodePage(e *jx.Encoder, p *sale.Page) {
	e.ObjStart()
	e.FieldStart("match")
	e.ArrStart()
	for i := range p.Match {
		encodeSale(e, &p.Match[i])
	}
	e.ArrEnd()
	e.FieldStart("page_count")
	e.Int(p.PageCount)
	e.ObjEnd()
}

func encodeReport(e *jx.Encoder, r *sale.Report) {
	e.ObjStart()
	encodeMoney(e, "current_total", r.CurrentTotal)
	encodeMoney(e, "previous_total", r.PreviousTotal)
	e.FieldStart("change")
	e.Float64(r.Change)
	e.FieldStart("customers")
	e.Int(r.Customers)
	e.FieldStart("purchases")
	e.Int(r.Purchases)
	e.ObjEnd()
}

// created answers 201 with the new resource id.
func created(c *gin.Context, id string) {
	c.JSON(http.StatusCreated, gin.H{"id": id})
}
