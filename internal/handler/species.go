package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/jx"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// speciesInput is the body of species create and update requests.
type speciesInput struct {
	Name           string      `json:"name"`
	ScientificName string      `json:"scientific_name"`
	Price          money.Money `json:"price"`
	Stock          int64       `json:"stock"`
	Tags           []string    `json:"tags"`
	Habitat        string      `json:"habitat"`
	Feeding        string      `json:"feeding"`
	SocialBehavior string      `json:"social_behavior"`
	Ecosystem      string      `json:"ecosystem"`
	Size           money.Money `json:"size"`
	OnSale         bool        `json:"on_sale"`
	Picture        string      `json:"picture"`
	Description    string      `json:"description"`
}

func (in *speciesInput) product() *product.Product {
	return &product.Product{
		Name:           strings.TrimSpace(in.Name),
		ScientificName: strings.TrimSpace(in.ScientificName),
		Price:          in.Price,
		Stock:          in.Stock,
		Tags:           in.Tags,
		Habitat:        in.Habitat,
		Feeding:        in.Feeding,
		SocialBehavior: in.SocialBehavior,
		Ecosystem:      in.Ecosystem,
		Size:           in.Size,
		OnSale:         in.OnSale,
		Picture:        in.Picture,
		Description:    in.Description,
	}
}

// bind decodes a JSON body into dst. Domain validation errors raised by
// field decoders pass through; anything else is a malformed body.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if validate.Is(err) {
			return err
		}
		return errBadBody
	}
	return nil
}

func (h *Handler) writeSpeciesList(c *gin.Context, ps []product.Product) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	h.encodeSpeciesList(e, ps)
	writeJSON(c, http.StatusOK, e)
}

func (h *Handler) listSpecies(c *gin.Context) {
	f, err := product.ParseFilter(c.Request.URL.Query())
	if err != nil {
		fail(c, err)
		return
	}
	ps, err := h.species.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	h.writeSpeciesList(c, ps)
}

func (h *Handler) searchSpecies(c *gin.Context) {
	ps, err := h.species.Search(c.Request.Context(), strings.TrimSpace(c.Param("query")))
	if err != nil {
		fail(c, err)
		return
	}
	h.writeSpeciesList(c, ps)
}

func (h *Handler) getSpecies(c *gin.Context) {
	p, err := h.species.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	var e jx.Encoder
	h.encodeSpecies(&e, p)
	writeJSON(c, http.StatusOK, &e)
}

func (h *Handler) createSpecies(c *gin.Context) {
	var in speciesInput
	if err := bind(c, &in); err != nil {
		fail(c, err)
		return
	}
	p := in.product()
	if err := h.species.Create(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	created(c, p.ID)
}

func (h *Handler) updateSpecies(c *gin.Context) {
	var in speciesInput
	if err := bind(c, &in); err != nil {
		fail(c, err)
		return
	}
	p := in.product()
	if err := h.species.Update(c.Request.Context(), c.Param("id"), p); err != nil {
		fail(c, err)
		return
	}
	var e jx.Encoder
	h.encodeSpecies(&e, p)
	writeJSON(c, http.StatusOK, &e)
}

func (h *Handler) deleteSpecies(c *gin.Context) {
	if err := h.species.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
