// Package handler exposes the marketplace over HTTP using gin.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/sale"
)

// Species is the catalog service used by the handlers.
type Species interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, error)
	Search(ctx context.Context, query string) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, p *product.Product) error
	Update(ctx context.Context, id string, p *product.Product) error
	Delete(ctx context.Context, id string) error
	Each(ctx context.Context, fn func(*product.Product) error) error
}

// Sales is the sale service used by the handlers.
type Sales interface {
	Place(ctx context.Context, dr sale.Draft) (*sale.Sale, error)
	Get(ctx context.Context, id string) (*sale.Record, error)
	Filter(ctx context.Context, q sale.Query) (*sale.Page, error)
	MonthlyReport(ctx context.Context) (*sale.Report, error)
	Each(ctx context.Context, fn func(*sale.Record) error) error
}

// Accounts is the account service used by the handlers.
type Accounts interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Check(ctx context.Context, claims *auth.Claims) (*auth.Account, error)
	ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error
	List(ctx context.Context, role auth.Role) ([]auth.Account, error)
	Get(ctx context.Context, id string) (*auth.Account, error)
	Update(ctx context.Context, id string, upd auth.AccountUpdate) (*auth.Account, error)
	Delete(ctx context.Context, id string) error
}

// KeyChecker authenticates X-API-Key headers.
type KeyChecker interface {
	Check(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

var (
	_ Species    = (*product.Service)(nil)
	_ Sales      = (*sale.Service)(nil)
	_ Accounts   = (*auth.Service)(nil)
	_ KeyChecker = (*auth.KeyChecker)(nil)
)

// Config holds non-dependency handler settings.
type Config struct {
	// ImageBaseURL is prepended to relative species pictures. Empty leaves
	// them as stored.
	ImageBaseURL string
	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the public API.
type Handler struct {
	species  Species
	sales    Sales
	accounts Accounts
	tokens   auth.Verifier
	keys     KeyChecker

	imageBaseURL string
	maxBody      int64
}

// New constructs a Handler.
func New(cfg Config, species Species, sales Sales, accounts Accounts, tokens auth.Verifier, keys KeyChecker) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		species:      species,
		sales:        sales,
		accounts:     accounts,
		tokens:       tokens,
		keys:         keys,
		imageBaseURL: cfg.ImageBaseURL,
		maxBody:      cfg.MaxBodyBytes,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.Use(h.limitBody)

	staff := h.requireStaff
	account := h.requireAccount

	sales := r.Group("/sales")
	sales.POST("/new", h.placeSale)
	sales.GET("/filter", staff, h.filterSales)
	sales.GET("/report/monthly", staff, h.monthlyReport)
	sales.GET("/:id", staff, h.getSale)

	species := r.Group("/species")
	species.GET("", h.listSpecies)
	species.GET("/search/:query", h.searchSpecies)
	species.GET("/:id", h.getSpecies)
	species.POST("/new", staff, h.createSpecies)
	species.PUT("/:id", staff, h.updateSpecies)
	species.DELETE("/:id", staff, h.deleteSpecies)

	authn := r.Group("/auth")
	authn.POST("/register", h.register)
	authn.POST("/login", h.login)
	authn.GET("/check", account, h.check)
	authn.POST("/password", account, h.changePassword)

	users := r.Group("/users", staff)
	users.GET("", h.listUsers)
	users.GET("/:id", h.getUser)
	users.PUT("/:id", h.updateUser)
	users.DELETE("/:id", h.deleteUser)

	admin := r.Group("/admin", staff)
	admin.GET("/backup/species", h.backupSpecies)
	admin.GET("/backup/sales", h.backupSales)
}

func (h *Handler) limitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}
	c.Next()
}
