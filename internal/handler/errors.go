package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/sale"
	"github.com/xenking/fishnet/internal/domain/validate"
)

var (
	errMissingCredential = errors.New("missing credential")
	errForbidden         = errors.New("staff access required")
	errBadBody           = validate.New("malformed request body")
)

var (
	unauthorized = []error{auth.ErrInvalidCredential, auth.ErrInvalidLogin, auth.ErrUnauthorized, errMissingCredential}
	notFound     = []error{product.ErrNotFound, sale.ErrNotFound, auth.ErrAccountNotFound}
)

// errorBody is the JSON body of every failed request.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// classify maps a domain error to an HTTP status and client-facing message.
func classify(err error) (int, string) {
	for _, target := range unauthorized {
		if errors.Is(err, target) {
			return http.StatusUnauthorized, target.Error()
		}
	}
	if errors.Is(err, errForbidden) {
		return http.StatusForbidden, errForbidden.Error()
	}
	if errors.Is(err, auth.ErrEmailTaken) {
		return http.StatusConflict, auth.ErrEmailTaken.Error()
	}
	if validate.Is(err) {
		return http.StatusBadRequest, validate.Cause(err).Error()
	}

	var pnf *sale.ProductNotFoundError
	if errors.As(err, &pnf) {
		return http.StatusNotFound, pnf.Error()
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound, target.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// fail aborts the request with the status err maps to. Server errors are
// logged with the full chain; the client only sees a generic message.
func fail(c *gin.Context, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(c.Request.Context()).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, errorBody{Code: status, Message: msg})
}
