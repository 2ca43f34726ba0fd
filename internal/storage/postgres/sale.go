package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/sale"
)

const (
	insertSaleSQL = `INSERT INTO sales (id, account_id, guest, items, tax, shipping, total,
		shipping_provider, payment_method, payment_provider, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	customerNameExpr = `COALESCE(a.name, concat_ws(' ', s.guest->>'name', s.guest->>'surname'))`

	selectSaleSQL = `SELECT s.id, s.account_id, s.guest, s.items, s.tax, s.shipping, s.total,
		s.shipping_provider, s.payment_method, s.payment_provider, s.status, s.created_at,
		` + customerNameExpr + ` AS customer_name
		FROM sales s LEFT JOIN accounts a ON a.id = s.account_id`

	countSalesSQL = `SELECT count(*) FROM sales s LEFT JOIN accounts a ON a.id = s.account_id`

	summarizeSalesSQL = `SELECT COALESCE(sum(total), 0),
		count(DISTINCT COALESCE(account_id::text, lower(guest->>'email'))),
		count(*)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND status <> $3`
)

// itemDoc is the JSONB form of a line item.
type itemDoc struct {
	ProductID string      `json:"product_id"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int64       `json:"quantity"`
}

var _ sale.Repository = (*SaleRepository)(nil)

// SaleRepository implements sale.Repository backed by PostgreSQL. Guest
// identities and line items are stored as JSONB documents.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Create persists a new sale.
func (r *SaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	args, err := saleArgs(s)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertSaleSQL, args...); err != nil {
		return fmt.Errorf("creating sale %q: %w", s.ID, err)
	}
	return nil
}

// CreateAndReserve persists the sale and takes its items out of stock in a
// single transaction.
func (r *SaleRepository) CreateAndReserve(ctx context.Context, s *sale.Sale) error {
	args, err := saleArgs(s)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertSaleSQL, args...); err != nil {
			return fmt.Errorf("creating sale %q: %w", s.ID, err)
		}
		for _, it := range s.Items {
			tag, err := tx.Exec(ctx, reserveStockSQL, it.ProductID, it.Quantity)
			if err != nil {
				return fmt.Errorf("reserving stock of %q: %w", it.ProductID, err)
			}
			if tag.RowsAffected() == 0 {
				return &outOfStockError{productID: it.ProductID}
			}
		}
		return nil
	})
}

type outOfStockError struct {
	productID string
}

func (e *outOfStockError) Error() string {
	return fmt.Sprintf("species %s: %s", e.productID, sale.ErrOutOfStock)
}

func (e *outOfStockError) Unwrap() error { return sale.ErrOutOfStock }

func saleArgs(s *sale.Sale) ([]any, error) {
	var (
		accountID *string
		guest     *sale.Guest
	)
	switch c := s.Customer.(type) {
	case sale.Registered:
		accountID = &c.AccountID
	case sale.Guest:
		guest = &c
	default:
		return nil, errors.Errorf("sale %s: unexpected customer %T", s.ID, s.Customer)
	}

	items := make([]itemDoc, len(s.Items))
	for i, it := range s.Items {
		items[i] = itemDoc{ProductID: it.ProductID, UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}

	return []any{
		s.ID, accountID, guest, items,
		s.Tax.Decimal(), s.Shipping.Decimal(), s.Total.Decimal(),
		s.ShippingProvider, string(s.PaymentMethod), s.PaymentProvider,
		int16(s.Status), s.CreatedAt,
	}, nil
}

// GetByID returns a sale with its customer name.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*sale.Record, error) {
	rows, err := r.pool.Query(ctx, selectSaleSQL+` WHERE s.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}

	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting sale %q: %w", id, err)
	}
	return &rec, nil
}

// Count returns the number of sales matching f.
func (r *SaleRepository) Count(ctx context.Context, f sale.Filter) (int, error) {
	w := saleWhere(f)
	var n int
	if err := r.pool.QueryRow(ctx, countSalesSQL+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sales: %w", err)
	}
	return n, nil
}

// Find returns one page of sales matching the query.
func (r *SaleRepository) Find(ctx context.Context, q sale.Query) ([]sale.Record, error) {
	w := saleWhere(q.Filter)
	sql := selectSaleSQL + w.String() +
		` ORDER BY ` + saleOrder(q.Sort) +
		` LIMIT ` + w.arg(q.Count) + ` OFFSET ` + w.arg(q.Offset())

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("finding sales: %w", err)
	}
	return pgx.CollectRows(rows, scanRecord)
}

// Summarize aggregates non-cancelled sales created in [from, to).
func (r *SaleRepository) Summarize(ctx context.Context, from, to time.Time) (sale.MonthSummary, error) {
	var (
		sum   sale.MonthSummary
		total decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, summarizeSalesSQL, from, to, int16(sale.Cancelled)).
		Scan(&total, &sum.Customers, &sum.Purchases)
	if err != nil {
		return sale.MonthSummary{}, fmt.Errorf("summarizing sales: %w", err)
	}
	sum.Total = money.FromDecimal(total)
	return sum, nil
}

// Each calls fn for every sale in id order.
func (r *SaleRepository) Each(ctx context.Context, fn func(*sale.Record) error) error {
	rows, err := r.pool.Query(ctx, selectSaleSQL+` ORDER BY s.id`)
	if err != nil {
		return fmt.Errorf("streaming sales: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scanning sale: %w", err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func saleWhere(f sale.Filter) *where {
	w := &where{}
	if f.Name != "" {
		w.add(customerNameExpr+" ILIKE $%d", likePattern(f.Name))
	}
	if f.PaymentMethod != "" {
		w.add("s.payment_method ILIKE $%d", likePattern(f.PaymentMethod))
	}
	if f.Status != nil {
		w.add("s.status = $%d", int16(*f.Status))
	}
	if f.MinTotal != nil {
		w.add("s.total >= $%d", f.MinTotal.Decimal())
	}
	if f.MaxTotal != nil {
		w.add("s.total <= $%d", f.MaxTotal.Decimal())
	}
	if f.MinDate != nil {
		w.add("s.created_at >= $%d", *f.MinDate)
	}
	if f.MaxDate != nil {
		w.add("s.created_at <= $%d", *f.MaxDate)
	}
	if len(f.Products) > 0 {
		w.add(`EXISTS (SELECT 1 FROM jsonb_array_elements(s.items) it
			WHERE it->>'product_id' = ANY($%d))`, f.Products)
	}
	return w
}

var sortColumns = map[sale.SortField]string{
	sale.SortTotal: "s.total",
	sale.SortDate:  "s.created_at",
	sale.SortName:  "customer_name",
}

// saleOrder renders ORDER BY terms. The id is always the final tiebreaker,
// so without sort keys sales come back in creation order.
func saleOrder(keys []sale.SortKey) string {
	terms := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		dir := " ASC"
		if k.Desc {
			dir = " DESC"
		}
		terms = append(terms, sortColumns[k.Field]+dir)
	}
	return strings.Join(append(terms, "s.id ASC"), ", ")
}

func scanRecord(row pgx.CollectableRow) (sale.Record, error) {
	var (
		rec                  sale.Record
		accountID            *string
		guest                *sale.Guest
		items                []itemDoc
		tax, shipping, total decimal.Decimal
		method               string
		status               int16
	)
	err := row.Scan(
		&rec.ID, &accountID, &guest, &items, &tax, &shipping, &total,
		&rec.ShippingProvider, &method, &rec.PaymentProvider, &status, &rec.CreatedAt,
		&rec.CustomerName,
	)
	if err != nil {
		return sale.Record{}, err
	}

	switch {
	case accountID != nil:
		rec.Customer = sale.Registered{AccountID: *accountID}
	case guest != nil:
		rec.Customer = *guest
	}
	rec.Items = make([]sale.LineItem, len(items))
	for i, it := range items {
		rec.Items[i] = sale.LineItem{ProductID: it.ProductID, UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	rec.Tax = money.FromDecimal(tax)
	rec.Shipping = money.FromDecimal(shipping)
	rec.Total = money.FromDecimal(total)
	rec.PaymentMethod = sale.PaymentMethod(method)
	rec.Status = sale.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
