package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/product"
)

const speciesColumns = `id, name, scientific_name, price, stock, tags, habitat, feeding,
	social_behavior, ecosystem, size, on_sale, picture, description, created_at`

const (
	getSpeciesByIDSQL = `SELECT ` + speciesColumns + ` FROM species WHERE id = $1`

	getSpeciesByIDsSQL = `SELECT ` + speciesColumns + ` FROM species WHERE id = ANY($1::uuid[])`

	searchSpeciesSQL = `SELECT ` + speciesColumns + ` FROM species
		WHERE name ILIKE $1 OR scientific_name ILIKE $1
			OR EXISTS (SELECT 1 FROM unnest(tags) t WHERE t ILIKE $1)
		ORDER BY name, id`

	eachSpeciesSQL = `SELECT ` + speciesColumns + ` FROM species ORDER BY id`

	insertSpeciesSQL = `INSERT INTO species (` + speciesColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	upsertSpeciesSQL = insertSpeciesSQL + `
		ON CONFLICT (lower(scientific_name)) WHERE scientific_name <> '' DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock,
			tags = EXCLUDED.tags, habitat = EXCLUDED.habitat, feeding = EXCLUDED.feeding,
			social_behavior = EXCLUDED.social_behavior, ecosystem = EXCLUDED.ecosystem,
			size = EXCLUDED.size, on_sale = EXCLUDED.on_sale, picture = EXCLUDED.picture,
			description = EXCLUDED.description`

	updateSpeciesSQL = `UPDATE species SET name = $2, scientific_name = $3, price = $4, stock = $5,
		tags = $6, habitat = $7, feeding = $8, social_behavior = $9, ecosystem = $10, size = $11,
		on_sale = $12, picture = $13, description = $14
		WHERE id = $1`

	deleteSpeciesSQL = `DELETE FROM species WHERE id = $1`

	decrementStockSQL = `UPDATE species SET stock = stock - $2 WHERE id = $1`

	reserveStockSQL = `UPDATE species SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
)

var _ product.Repository = (*SpeciesRepository)(nil)

// SpeciesRepository implements product.Repository backed by PostgreSQL.
type SpeciesRepository struct {
	pool *pgxpool.Pool
}

// NewSpeciesRepository returns a SpeciesRepository that uses the given pool.
func NewSpeciesRepository(pool *pgxpool.Pool) *SpeciesRepository {
	return &SpeciesRepository{pool: pool}
}

// List returns the species matching f.
func (r *SpeciesRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	var w where
	if f.Name != "" {
		w.add("(name ILIKE $%[1]d OR scientific_name ILIKE $%[1]d)", likePattern(f.Name))
	}
	if f.Tags != "" {
		w.add("EXISTS (SELECT 1 FROM unnest(tags) t WHERE t ILIKE $%d)", likePattern(f.Tags))
	}
	for _, c := range []struct{ col, v string }{
		{"habitat", f.Habitat},
		{"feeding", f.Feeding},
		{"social_behavior", f.Behavior},
		{"ecosystem", f.Ecosystem},
	} {
		if c.v != "" {
			w.add(c.col+" ILIKE $%d", likePattern(c.v))
		}
	}
	if f.OnSale {
		w.add("on_sale = $%d", true)
	}
	if f.MinPrice != nil {
		w.add("price >= $%d", f.MinPrice.Decimal())
	}
	if f.MaxPrice != nil {
		w.add("price <= $%d", f.MaxPrice.Decimal())
	}
	if f.MinSize != nil {
		w.add("size >= $%d", f.MinSize.Decimal())
	}
	if f.MaxSize != nil {
		w.add("size <= $%d", f.MaxSize.Decimal())
	}

	sql := `SELECT ` + speciesColumns + ` FROM species` + w.String() + ` ORDER BY ` + speciesOrder(f)
	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing species: %w", err)
	}
	return pgx.CollectRows(rows, scanSpecies)
}

func speciesOrder(f product.Filter) string {
	var order string
	switch f.PriceOrder {
	case product.Asc:
		order = "price ASC, "
	case product.Desc:
		order = "price DESC, "
	}
	switch f.NameOrder {
	case product.Desc:
		order += "name DESC, "
	default:
		order += "name ASC, "
	}
	return order + "id"
}

// Search matches name, scientific name or any tag.
func (r *SpeciesRepository) Search(ctx context.Context, query string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, searchSpeciesSQL, likePattern(query))
	if err != nil {
		return nil, fmt.Errorf("searching species: %w", err)
	}
	return pgx.CollectRows(rows, scanSpecies)
}

// GetByID returns a single species by its identifier.
func (r *SpeciesRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getSpeciesByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting species %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanSpecies)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting species %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns species matching any of the given IDs.
func (r *SpeciesRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getSpeciesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting species by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanSpecies)
}

// Create inserts a species.
func (r *SpeciesRepository) Create(ctx context.Context, p *product.Product) error {
	if _, err := r.pool.Exec(ctx, insertSpeciesSQL, speciesArgs(p)...); err != nil {
		return fmt.Errorf("creating species %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts species or updates the existing row with the same
// scientific name, in one batch.
func (r *SpeciesRepository) Upsert(ctx context.Context, ps []product.Product) error {
	batch := &pgx.Batch{}
	for i := range ps {
		batch.Queue(upsertSpeciesSQL, speciesArgs(&ps[i])...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d species: %w", len(ps), err)
	}
	return nil
}

// Update replaces every mutable column of a species.
func (r *SpeciesRepository) Update(ctx context.Context, p *product.Product) error {
	args := speciesArgs(p)
	tag, err := r.pool.Exec(ctx, updateSpeciesSQL, args[:14]...)
	if err != nil {
		return fmt.Errorf("updating species %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a species.
func (r *SpeciesRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteSpeciesSQL, id)
	if err != nil {
		return fmt.Errorf("deleting species %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock lowers stock unconditionally. Stock may go negative.
func (r *SpeciesRepository) DecrementStock(ctx context.Context, id string, qty int64) error {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Each calls fn for every species in id order.
func (r *SpeciesRepository) Each(ctx context.Context, fn func(*product.Product) error) error {
	rows, err := r.pool.Query(ctx, eachSpeciesSQL)
	if err != nil {
		return fmt.Errorf("streaming species: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanSpecies(rows)
		if err != nil {
			return fmt.Errorf("scanning species: %w", err)
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func speciesArgs(p *product.Product) []any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		p.ID, p.Name, p.ScientificName, p.Price.Decimal(), p.Stock, tags,
		p.Habitat, p.Feeding, p.SocialBehavior, p.Ecosystem, p.Size.Decimal(),
		p.OnSale, p.Picture, p.Description, p.CreatedAt,
	}
}

func scanSpecies(row pgx.CollectableRow) (product.Product, error) {
	var (
		p           product.Product
		price, size decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.ScientificName, &price, &p.Stock, &p.Tags,
		&p.Habitat, &p.Feeding, &p.SocialBehavior, &p.Ecosystem, &size,
		&p.OnSale, &p.Picture, &p.Description, &p.CreatedAt,
	)
	p.Price = money.FromDecimal(price)
	p.Size = money.FromDecimal(size)
	return p, err
}
