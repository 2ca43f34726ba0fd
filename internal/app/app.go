package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/sale"
	"github.com/xenking/fishnet/internal/handler"
	"github.com/xenking/fishnet/internal/storage/postgres"
	"github.com/xenking/fishnet/pkg/health"
	"github.com/xenking/fishnet/pkg/httpmiddleware"
)

const serviceName = "fishnet-api"

// newHealth registers the readiness and liveness checks.
func newHealth(db health.Pinger, cfg HealthConfig) *health.Health {
	checks := health.New()
	checks.Add(health.Readiness, "postgres", health.Ping(db), health.WithTimeout(5*time.Second))
	checks.Add(health.Liveness, "goroutines", health.GoroutineCount(cfg.MaxGoroutines))
	checks.Add(health.Liveness, "gc_pause", health.GCPause(cfg.MaxGCPause))
	return checks
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("stock_mode", string(cfg.Sales.StockMode)),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := newHealth(pool, cfg.Health)
	probes.Start(ctx, cfg.Health.Interval)
	probes.SetReady(true)

	h, err := newHandler(pool, cfg, m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			newRouter(lg, cfg, probes, limiter, h),
			httpmiddleware.Instrument(serviceName, m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		probes.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler wires repositories and domain services into the HTTP handler.
func newHandler(pool *pgxpool.Pool, cfg *Config, mp metric.MeterProvider, tp trace.TracerProvider) (*handler.Handler, error) {
	speciesRepo := postgres.NewSpeciesRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	saleRepo := postgres.NewSaleRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	tokens := auth.NewTokens([]byte(cfg.JWTSecret), cfg.TokenTTL)
	accounts := auth.NewService(accountRepo, tokens, auth.ServiceConfig{BcryptCost: cfg.BcryptCost})
	species := product.NewService(speciesRepo)
	builder := sale.NewBuilder(
		sale.NewIdentityResolver(tokens, accountRepo),
		speciesRepo,
		sale.BuilderConfig{DefaultShippingProvider: cfg.Sales.DefaultShippingProvider},
	)
	sales, err := sale.NewService(builder, saleRepo, speciesRepo, sale.ServiceConfig{
		StockMode:      cfg.Sales.StockMode,
		MeterProvider:  mp,
		TracerProvider: tp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create sale service")
	}

	return handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, MaxBodyBytes: cfg.MaxBodyBytes},
		species,
		sales,
		accounts,
		tokens,
		auth.NewKeyChecker(apikeyRepo, []byte(cfg.APIKeyPepper)),
	), nil
}

// newRouter builds the gin engine. Probes skip request logging and the rate
// limiter. CORS is engine-wide so preflights for any path are answered.
func newRouter(lg *zap.Logger, cfg *Config, probes *health.Health, limiter *httpmiddleware.Limiter, h *handler.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.Route(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:     cfg.CORS.Origins,
			Headers:     []string{"Content-Type", "Authorization", "X-API-Key", httpmiddleware.HeaderRequestID},
			Expose:      []string{httpmiddleware.HeaderRequestID},
			Credentials: cfg.CORS.AllowCredentials,
			MaxAge:      86400,
		}),
	)
	r.GET("/livez", probes.Live)
	r.GET("/readyz", probes.Ready)

	api := r.Group("",
		httpmiddleware.LogRequests(),
		httpmiddleware.RateLimit(limiter, nil),
	)
	h.Register(api)
	return r
}
