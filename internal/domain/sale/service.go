package sale

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/fishnet/internal/domain/money"
)

const instrumentationName = "github.com/xenking/fishnet/internal/domain/sale"

// StockMode selects how stock is decremented after a sale is placed.
type StockMode string

const (
	// StockBestEffort inserts the sale, then decrements each item once.
	// Decrement failures are logged and counted, never returned.
	StockBestEffort StockMode = "best_effort"
	// StockAtomic inserts the sale and decrements stock in one transaction.
	StockAtomic StockMode = "atomic"
)

// StockDecrementer lowers catalog stock.
type StockDecrementer interface {
	DecrementStock(ctx context.Context, id string, qty int64) error
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	StockMode      StockMode
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service places and queries sales.
type Service struct {
	builder *Builder
	sales   Repository
	stock   StockDecrementer
	mode    StockMode

	tracer           trace.Tracer
	decrementFailure metric.Int64Counter
	now              func() time.Time
}

// NewService creates a sale Service.
func NewService(builder *Builder, sales Repository, stock StockDecrementer, cfg ServiceConfig) (*Service, error) {
	switch cfg.StockMode {
	case "":
		cfg.StockMode = StockBestEffort
	case StockBestEffort, StockAtomic:
	default:
		return nil, errors.Errorf("unknown stock mode %q", cfg.StockMode)
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}

	failures, err := cfg.MeterProvider.Meter(instrumentationName).Int64Counter(
		"sales.stock_decrement.failures",
		metric.WithDescription("Stock decrements that failed after the sale was stored"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Service{
		builder:          builder,
		sales:            sales,
		stock:            stock,
		mode:             cfg.StockMode,
		tracer:           cfg.TracerProvider.Tracer(instrumentationName),
		decrementFailure: failures,
		now:              time.Now,
	}, nil
}

// Place builds the sale, stores it and decrements stock for every item.
func (s *Service) Place(ctx context.Context, dr Draft) (_ *Sale, rerr error) {
	ctx, span := s.tracer.Start(ctx, "sale.Place")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	sale, err := s.builder.Build(ctx, dr)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sale.id", sale.ID),
		attribute.String("sale.payment_method", string(sale.PaymentMethod)),
		attribute.Int("sale.items", len(sale.Items)),
	)

	if s.mode == StockAtomic {
		if err := s.sales.CreateAndReserve(ctx, sale); err != nil {
			return nil, errors.Wrap(err, "create sale")
		}
		return sale, nil
	}

	if err := s.sales.Create(ctx, sale); err != nil {
		return nil, errors.Wrap(err, "create sale")
	}
	s.decrementStock(context.WithoutCancel(ctx), sale)
	return sale, nil
}

// decrementStock issues one decrement per line item. The sale is already
// stored, so failures only leave stock out of date.
func (s *Service) decrementStock(ctx context.Context, sale *Sale) {
	lg := zctx.From(ctx)
	for _, it := range sale.Items {
		if err := s.stock.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.decrementFailure.Add(ctx, 1)
			lg.Warn("Stock decrement failed",
				zap.String("sale_id", sale.ID),
				zap.String("product_id", it.ProductID),
				zap.Int64("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
}

// Get returns a sale by ID. Malformed IDs are reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	return s.sales.GetByID(ctx, id)
}

// Filter returns one page of matching sales and the total page count.
func (s *Service) Filter(ctx context.Context, q Query) (*Page, error) {
	var (
		total   int
		records []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.sales.Count(gctx, q.Filter)
		if err != nil {
			return errors.Wrap(err, "count sales")
		}
		total = n
		return nil
	})
	g.Go(func() error {
		r, err := s.sales.Find(gctx, q)
		if err != nil {
			return errors.Wrap(err, "find sales")
		}
		records = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if total == 0 {
		return &Page{Match: []Record{}, PageCount: 0}, nil
	}
	if records == nil {
		records = []Record{}
	}
	return &Page{Match: records, PageCount: PageCount(total, q.Count)}, nil
}

// Each streams every stored sale to fn.
func (s *Service) Each(ctx context.Context, fn func(*Record) error) error {
	return s.sales.Each(ctx, fn)
}

// Report compares the current calendar month with the previous one.
type Report struct {
	CurrentTotal  money.Money
	PreviousTotal money.Money
	// Change is the percentage change from the previous month, 0 when the
	// previous month had no sales.
	Change    float64
	Customers int
	Purchases int
}

// MonthlyReport summarizes the current and previous UTC calendar months.
func (s *Service) MonthlyReport(ctx context.Context) (*Report, error) {
	now := s.now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonth := thisMonth.AddDate(0, -1, 0)
	nextMonth := thisMonth.AddDate(0, 1, 0)

	var cur, prev MonthSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cur, err = s.sales.Summarize(gctx, thisMonth, nextMonth); err != nil {
			return errors.Wrap(err, "summarize current month")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if prev, err = s.sales.Summarize(gctx, lastMonth, thisMonth); err != nil {
			return errors.Wrap(err, "summarize previous month")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Report{
		CurrentTotal:  cur.Total,
		PreviousTotal: prev.Total,
		Change:        percentChange(prev.Total, cur.Total),
		Customers:     cur.Customers,
		Purchases:     cur.Purchases,
	}, nil
}

func percentChange(from, to money.Money) float64 {
	if from.IsZero() {
		return 0
	}
	return to.Decimal().Sub(from.Decimal()).
		Div(from.Decimal()).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}
