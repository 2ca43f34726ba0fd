package sale

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	byID   map[string]product.Product
	err    error
	calls  int
	lastID []string
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.calls++
	m.lastID = ids
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockAccounts struct {
	byID map[string]*auth.Account
}

func (m *mockAccounts) GetByID(_ context.Context, id string) (*auth.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	return a, nil
}

type mockStock struct {
	mu    sync.Mutex
	calls map[string]int64
	fail  map[string]error
}

func (m *mockStock) DecrementStock(_ context.Context, id string, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[id]; err != nil {
		return err
	}
	if m.calls == nil {
		m.calls = map[string]int64{}
	}
	m.calls[id] += qty
	return nil
}

type mockSaleRepo struct {
	mu         sync.Mutex
	created    []*Sale
	reserved   []*Sale
	createErr  error
	reserveErr error

	total     int
	records   []Record
	countErr  error
	summaries map[time.Time]MonthSummary
}

func (m *mockSaleRepo) Create(_ context.Context, s *Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, s)
	return nil
}

func (m *mockSaleRepo) CreateAndReserve(_ context.Context, s *Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.reserved = append(m.reserved, s)
	return nil
}

func (m *mockSaleRepo) GetByID(_ context.Context, id string) (*Record, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			return &m.records[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockSaleRepo) Count(context.Context, Filter) (int, error) {
	return m.total, m.countErr
}

func (m *mockSaleRepo) Find(_ context.Context, q Query) ([]Record, error) {
	start := q.Offset()
	if start >= len(m.records) {
		return nil, nil
	}
	end := min(start+q.Count, len(m.records))
	return m.records[start:end], nil
}

func (m *mockSaleRepo) Summarize(_ context.Context, from, _ time.Time) (MonthSummary, error) {
	return m.summaries[from], nil
}

func (m *mockSaleRepo) Each(ctx context.Context, fn func(*Record) error) error {
	ids := make([]string, 0, len(m.records))
	for _, r := range m.records {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r, _ := m.GetByID(ctx, id)
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// --- Helpers ---

const (
	neonTetraID = "0190a5e2-7c1b-7a55-9d6f-3c1e9b0f1a01"
	bettaID     = "0190a5e2-7c1b-7a55-9d6f-3c1e9b0f1a02"
	accountID   = "5b3a4a1e-2f1d-4c0a-9a3b-7f0c6f4d2e11"
)

var errDB = errors.New("db unavailable")

type fixture struct {
	catalog  *mockCatalog
	accounts *mockAccounts
	tokens   *auth.Tokens
	builder  *Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog: &mockCatalog{byID: map[string]product.Product{
			neonTetraID: {ID: neonTetraID, Name: "Neon tetra", Price: money.MustParse("19.99"), Stock: 50},
			bettaID:     {ID: bettaID, Name: "Betta", Price: money.MustParse("0.10"), Stock: 5},
		}},
		accounts: &mockAccounts{byID: map[string]*auth.Account{
			accountID: {ID: accountID, Name: "Marina", Role: auth.RoleCPF},
		}},
		tokens: auth.NewTokens([]byte("secret"), time.Hour),
	}
	resolver := NewIdentityResolver(f.tokens, f.accounts)
	f.builder = NewBuilder(resolver, f.catalog, BuilderConfig{DefaultShippingProvider: "standard"})
	f.builder.now = func() time.Time { return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) token(t *testing.T, id string) string {
	t.Helper()
	tok, err := f.tokens.Issue(&auth.Account{ID: id, Role: auth.RoleCPF})
	require.NoError(t, err)
	return tok
}

func ptr[T any](v T) *T { return &v }

func guestInput() *GuestInput {
	return &GuestInput{
		Name:          ptr("Ana"),
		Surname:       ptr("Souza"),
		StreetAddress: ptr("Av. Atlântica 100"),
		PostalCode:    ptr("22010-000"),
		Email:         ptr("ana@example.com"),
	}
}

func pixDraft() Draft {
	return Draft{
		Customer:      guestInput(),
		Items:         []ItemInput{{ProductID: neonTetraID, Quantity: 2}},
		Tax:           "1.50",
		Shipping:      "5.00",
		PaymentMethod: "pix",
	}
}
