// Package httpmiddleware contains the HTTP middleware stack of the API server.
//
// Most middleware here is gin middleware and runs inside the router, where the
// matched route is known. Middleware that must see the raw request before
// routing (tracing, metrics) is plain net/http and is applied with Wrap.
package httpmiddleware

import (
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
