package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xenking/fishnet/internal/domain/auth"
)

const (
	headerAPIKey = "X-API-Key"
	claimsKey    = "fishnet.claims"
)

// bearer returns the token from the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func bearer(c *gin.Context) string {
	v := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		v = strings.TrimSpace(v[7:])
	}
	return v
}

func (h *Handler) verify(c *gin.Context) (*auth.Claims, error) {
	token := bearer(c)
	if token == "" {
		return nil, errMissingCredential
	}
	return h.tokens.Verify(token)
}

// requireAccount admits requests carrying a valid bearer token.
func (h *Handler) requireAccount(c *gin.Context) {
	claims, err := h.verify(c)
	if err != nil {
		fail(c, err)
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

// requireStaff admits requests with a known API key, or a bearer token of
// an admin or staff account.
func (h *Handler) requireStaff(c *gin.Context) {
	if key := c.GetHeader(headerAPIKey); key != "" {
		if _, err := h.keys.Check(c.Request.Context(), key); err != nil {
			fail(c, auth.ErrUnauthorized)
			return
		}
		c.Next()
		return
	}

	claims, err := h.verify(c)
	if err != nil {
		fail(c, err)
		return
	}
	if !claims.Role.IsStaff() {
		fail(c, errForbidden)
		return
	}
	c.Set(claimsKey, claims)
	c.Next()
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}
