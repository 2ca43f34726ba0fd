package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/storage/postgres"
)

type options struct {
	databaseURL   string
	speciesFile   string
	apiKey        string
	apiKeyPepper  string
	adminEmail    string
	adminPassword string
}

func main() {
	var o options

	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.speciesFile, "species-file", "db/seed/species.json", "path to species JSON array")
	flag.StringVar(&o.apiKey, "api-key", "", "staff API key to seed (or FISHNET_SEED_API_KEY env)")
	flag.StringVar(&o.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FISHNET_API_KEY_PEPPER env)")
	flag.StringVar(&o.adminEmail, "admin-email", "admin@fishnet.local", "email of the seeded admin account")
	flag.StringVar(&o.adminPassword, "admin-password", "", "admin password, account is skipped when empty (or FISHNET_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	o.databaseURL = fallback(o.databaseURL, "FISHNET_DATABASE_URL", "DATABASE_URL")
	if o.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	o.apiKey = fallback(o.apiKey, "FISHNET_SEED_API_KEY")
	if o.apiKey == "" {
		slog.Error("API key is required: set --api-key or FISHNET_SEED_API_KEY")
		os.Exit(1)
	}
	o.apiKeyPepper = fallback(o.apiKeyPepper, "FISHNET_API_KEY_PEPPER")
	o.adminPassword = fallback(o.adminPassword, "FISHNET_SEED_ADMIN_PASSWORD")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func fallback(v string, envs ...string) string {
	for _, name := range envs {
		if v != "" {
			break
		}
		v = os.Getenv(name)
	}
	return v
}

func run(ctx context.Context, o options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, o.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedSpecies(ctx, postgres.NewSpeciesRepository(pool), o.speciesFile); err != nil {
		return errors.Wrap(err, "seed species")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), o.apiKey, o.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if o.adminPassword == "" {
		slog.Info("no admin password given, skipping admin account")
		return nil
	}
	if err := seedAdmin(ctx, postgres.NewAccountRepository(pool), o.adminEmail, o.adminPassword); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

func seedSpecies(ctx context.Context, repo *postgres.SpeciesRepository, path string) error {
	slog.Info("reading species file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read species file")
	}

	species, err := decodeSpecies(data, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "parse species JSON")
	}

	slog.Info("upserting species", slog.Int("count", len(species)))

	if err := repo.Upsert(ctx, species); err != nil {
		return err
	}

	for _, p := range species {
		slog.Info("upserted species", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

// decodeSpecies parses a JSON array of species documents. Entries without an
// id or creation time get fresh ones.
func decodeSpecies(data []byte, now time.Time) ([]product.Product, error) {
	var species []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p, err := product.DecodeDocument(d)
		if err != nil {
			return errors.Wrapf(err, "species %d", len(species))
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "species %q", p.Name)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		species = append(species, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return species, nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := &auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Default staff key",
		Scopes:  []string{"staff"},
	}
	if err := repo.Save(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}

func seedAdmin(ctx context.Context, repo *postgres.AccountRepository, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		slog.Info("admin account already exists", slog.String("email", email))
		return nil
	case !errors.Is(err, auth.ErrAccountNotFound):
		return errors.Wrap(err, "look up admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}

	a := &auth.Account{
		ID:           uuid.NewString(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, a); err != nil {
		return errors.Wrap(err, "create admin")
	}

	slog.Info("created admin account", slog.String("id", a.ID), slog.String("email", email))

	return nil
}
