package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/jx"

	"github.com/xenking/fishnet/internal/domain/sale"
)

// placeSale decodes the draft strictly, attaches the bearer credential if
// any and places the sale.
func (h *Handler) placeSale(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, sale.ErrMalformedBody)
		return
	}
	dr, err := sale.DecodeDraft(body)
	if err != nil {
		fail(c, err)
		return
	}
	dr.Credential = bearer(c)

	s, err := h.sales.Place(c.Request.Context(), dr)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, s.ID)
}

func (h *Handler) filterSales(c *gin.Context) {
	q, err := sale.ParseQuery(c.Request.URL.Query())
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.sales.Filter(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodePage(e, page)
	writeJSON(c, http.StatusOK, e)
}

func (h *Handler) getSale(c *gin.Context) {
	r, err := h.sales.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	var e jx.Encoder
	encodeSale(&e, r)
	writeJSON(c, http.StatusOK, &e)
}

func (h *Handler) monthlyReport(c *gin.Context) {
	r, err := h.sales.MonthlyReport(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	var e jx.Encoder
	encodeReport(&e, r)
	writeJSON(c, http.StatusOK, &e)
}
