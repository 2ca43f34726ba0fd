package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/money"
	"github.com/xenking/fishnet/internal/domain/product"
	"github.com/xenking/fishnet/internal/domain/sale"
	"github.com/xenking/fishnet/internal/domain/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	speciesID = "0190a7c4-1b2c-7d3e-8f40-5a6b7c8d9e01"
	saleID    = "0190a7c4-1b2c-7d3e-8f40-5a6b7c8d9e02"
	staffKey  = "staff-key"
)

var errDB = errors.New("connection reset")

// --- Mock implementations ---

type mockSpecies struct {
	list    []product.Product
	filter  product.Filter
	query   string
	byID    map[string]product.Product
	created *product.Product
	err     error
}

func (m *mockSpecies) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	m.filter = f
	return m.list, m.err
}

func (m *mockSpecies) Search(_ context.Context, query string) ([]product.Product, error) {
	m.query = query
	return m.list, m.err
}

func (m *mockSpecies) Get(_ context.Context, id string) (*product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockSpecies) Create(_ context.Context, p *product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = speciesID
	m.created = p
	return m.err
}

func (m *mockSpecies) Update(_ context.Context, id string, p *product.Product) error {
	if _, ok := m.byID[id]; !ok {
		return product.ErrNotFound
	}
	p.ID = id
	return p.Validate()
}

func (m *mockSpecies) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return product.ErrNotFound
	}
	return nil
}

func (m *mockSpecies) Each(_ context.Context, fn func(*product.Product) error) error {
	for i := range m.list {
		if err := fn(&m.list[i]); err != nil {
			return err
		}
	}
	return m.err
}

type mockSales struct {
	draft   sale.Draft
	placed  *sale.Sale
	query   sale.Query
	page    *sale.Page
	records map[string]sale.Record
	report  *sale.Report
	err     error
}

func (m *mockSales) Place(_ context.Context, dr sale.Draft) (*sale.Sale, error) {
	m.draft = dr
	if m.err != nil {
		return nil, m.err
	}
	return m.placed, nil
}

func (m *mockSales) Get(_ context.Context, id string) (*sale.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, sale.ErrNotFound
	}
	return &r, nil
}

func (m *mockSales) Filter(_ context.Context, q sale.Query) (*sale.Page, error) {
	m.query = q
	return m.page, m.err
}

func (m *mockSales) MonthlyReport(context.Context) (*sale.Report, error) {
	return m.report, m.err
}

func (m *mockSales) Each(_ context.Context, fn func(*sale.Record) error) error {
	for _, r := range m.records {
		if err := fn(&r); err != nil {
			return err
		}
	}
	return m.err
}

type mockAccounts struct {
	account *auth.Account
	tokens  *auth.Tokens
	role    auth.Role
	oldPass string
	newPass string
	err     error
}

func (m *mockAccounts) session() (*auth.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	token, err := m.tokens.Issue(m.account)
	if err != nil {
		return nil, err
	}
	return &auth.Session{Token: token, Account: m.account}, nil
}

func (m *mockAccounts) Register(context.Context, auth.RegisterRequest) (*auth.Session, error) {
	return m.session()
}

func (m *mockAccounts) Login(_ context.Context, email, password string) (*auth.Session, error) {
	if email != m.account.Email || password != "hunter22" {
		return nil, auth.ErrInvalidLogin
	}
	return m.session()
}

func (m *mockAccounts) Check(_ context.Context, claims *auth.Claims) (*auth.Account, error) {
	if claims.AccountID() != m.account.ID {
		return nil, auth.ErrAccountNotFound
	}
	return m.account, nil
}

func (m *mockAccounts) ChangePassword(_ context.Context, _, oldPassword, newPassword string) error {
	m.oldPass, m.newPass = oldPassword, newPassword
	return m.err
}

func (m *mockAccounts) List(_ context.Context, role auth.Role) ([]auth.Account, error) {
	m.role = role
	return []auth.Account{*m.account}, m.err
}

func (m *mockAccounts) Get(_ context.Context, id string) (*auth.Account, error) {
	if id != m.account.ID {
		return nil, auth.ErrAccountNotFound
	}
	return m.account, nil
}

func (m *mockAccounts) Update(_ context.Context, _ string, upd auth.AccountUpdate) (*auth.Account, error) {
	if upd.Email != nil {
		return nil, validate.Field("email", auth.ErrLockedField)
	}
	a := *m.account
	if upd.City != nil {
		a.City = *upd.City
	}
	return &a, nil
}

func (m *mockAccounts) Delete(context.Context, string) error { return m.err }

type mockKeys struct{}

func (mockKeys) Check(_ context.Context, key string) (*auth.APIKeyInfo, error) {
	if key != staffKey {
		return nil, auth.ErrUnauthorized
	}
	return &auth.APIKeyInfo{ID: "k1", Name: "ops"}, nil
}

// --- Helpers ---

type env struct {
	species  *mockSpecies
	sales    *mockSales
	accounts *mockAccounts
	tokens   *auth.Tokens
	engine   *gin.Engine
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	tokens := auth.NewTokens([]byte("test-secret"), time.Hour)
	e := &env{
		species: &mockSpecies{byID: map[string]product.Product{}},
		sales:   &mockSales{records: map[string]sale.Record{}},
		accounts: &mockAccounts{
			tokens: tokens,
			account: &auth.Account{
				ID:            "0190a7c4-1b2c-7d3e-8f40-5a6b7c8d9e03",
				Name:          "Marina Costa",
				Email:         "marina@example.com",
				PasswordHash:  []byte("secret-hash"),
				Role:          auth.RoleCPF,
				StreetAddress: "Rua das Flores 10",
				City:          "Recife",
				CPF:           "12345678901",
				CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		tokens: tokens,
		engine: gin.New(),
	}
	New(cfg, e.species, e.sales, e.accounts, tokens, mockKeys{}).Register(e.engine)
	return e
}

func (e *env) token(t *testing.T, role auth.Role) string {
	t.Helper()
	a := *e.accounts.account
	a.Role = role
	tok, err := e.tokens.Issue(&a)
	require.NoError(t, err)
	return tok
}

func (e *env) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func neonTetra() product.Product {
	return product.Product{
		ID:             speciesID,
		Name:           "Neon tetra",
		ScientificName: "Paracheirodon innesi",
		Price:          money.MustParse("19.99"),
		Stock:          40,
		Tags:           []string{"schooling"},
		Picture:        "neon.png",
		CreatedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func guestRecord() sale.Record {
	return sale.Record{
		Sale: sale.Sale{
			ID: saleID,
			Customer: sale.Guest{
				Name:          "Ana",
				Surname:       "Lima",
				StreetAddress: "Av. Boa Viagem 100",
				PostalCode:    "51020-000",
				Email:         "ana@example.com",
			},
			Items: []sale.LineItem{
				{ProductID: speciesID, UnitPrice: money.MustParse("19.99"), Quantity: 2},
			},
			Tax:              money.MustParse("1.50"),
			Shipping:         money.MustParse("5.00"),
			Total:            money.MustParse("46.48"),
			ShippingProvider: "standard",
			PaymentMethod:    sale.Pix,
			Status:           sale.InProgress,
			CreatedAt:        time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC),
		},
		CustomerName: "Ana Lima",
	}
}

const guestSaleBody = `{
	"customer": {"name": "Ana", "surname": "Lima", "street_address": "Av. Boa Viagem 100",
		"postal_code": "51020-000", "email": "ana@example.com"},
	"items": [{"id": "` + speciesID + `", "quantity": 2}],
	"tax": "1.50", "shipping": 5, "payment_method": "pix"
}`

// --- Tests ---

func TestPlaceSale_Guest(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.placed = &sale.Sale{ID: saleID}

	w := e.do(http.MethodPost, "/sales/new", guestSaleBody)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":"`+saleID+`"}`, w.Body.String())
	assert.Empty(t, e.sales.draft.Credential)
	require.NotNil(t, e.sales.draft.Customer)
	assert.Equal(t, "Ana", *e.sales.draft.Customer.Name)
	assert.Equal(t, []sale.ItemInput{{ProductID: speciesID, Quantity: 2}}, e.sales.draft.Items)
	assert.Equal(t, "5", e.sales.draft.Shipping)
}

func TestPlaceSale_Bearer(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.placed = &sale.Sale{ID: saleID}
	body := `{"items":[{"id":"` + speciesID + `","quantity":1}],"tax":"0","shipping":"0","payment_method":"pix"}`

	w := e.do(http.MethodPost, "/sales/new", body, "Authorization", "Bearer abc.def.ghi")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "abc.def.ghi", e.sales.draft.Credential)
}

func TestPlaceSale_RejectsClientPrice(t *testing.T) {
	e := newEnv(t, Config{})
	body := `{"items":[{"id":"` + speciesID + `","quantity":1}],"price":"0.01"}`

	w := e.do(http.MethodPost, "/sales/new", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	got := decode[errorBody](t, w)
	assert.Equal(t, 400, got.Code)
	assert.Contains(t, got.Message, "unknown field")
	assert.Nil(t, e.sales.draft.Items, "service must not be called")
}

func TestPlaceSale_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "Validation",
			err:     errors.Wrap(validate.Field("items[0].quantity", sale.ErrInvalidQuantity), "build sale"),
			status:  http.StatusBadRequest,
			message: "items[0].quantity: quantity must be a positive integer",
		},
		{
			name:    "OutOfStock",
			err:     sale.ErrOutOfStock,
			status:  http.StatusBadRequest,
			message: "insufficient stock",
		},
		{
			name:    "UnknownProduct",
			err:     errors.Wrap(&sale.ProductNotFoundError{ProductID: speciesID}, "price items"),
			status:  http.StatusNotFound,
			message: "species " + speciesID + " not found",
		},
		{
			name:    "BadToken",
			err:     errors.Wrap(auth.ErrInvalidCredential, "resolve identity"),
			status:  http.StatusUnauthorized,
			message: auth.ErrInvalidCredential.Error(),
		},
		{
			name:    "UnknownAccount",
			err:     errors.Wrap(auth.ErrAccountNotFound, "resolve account"),
			status:  http.StatusNotFound,
			message: auth.ErrAccountNotFound.Error(),
		},
		{
			name:    "Upstream",
			err:     errors.Wrap(errDB, "insert sale"),
			status:  http.StatusInternalServerError,
			message: "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, Config{})
			e.sales.err = tt.err

			w := e.do(http.MethodPost, "/sales/new", guestSaleBody)

			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, errorBody{Code: tt.status, Message: tt.message}, decode[errorBody](t, w))
		})
	}
}

func TestPlaceSale_BodyTooLarge(t *testing.T) {
	e := newEnv(t, Config{MaxBodyBytes: 16})

	w := e.do(http.MethodPost, "/sales/new", guestSaleBody)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, sale.ErrMalformedBody.Error(), decode[errorBody](t, w).Message)
}

func TestStaffAuthorization(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.page = &sale.Page{Match: []sale.Record{}}

	tests := []struct {
		name    string
		headers []string
		status  int
	}{
		{"NoCredential", nil, http.StatusUnauthorized},
		{"GarbageToken", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"CustomerToken", []string{"Authorization", "Bearer " + e.token(t, auth.RoleCPF)}, http.StatusForbidden},
		{"StaffToken", []string{"Authorization", "Bearer " + e.token(t, auth.RoleStaff)}, http.StatusOK},
		{"AdminRawToken", []string{"Authorization", e.token(t, auth.RoleAdmin)}, http.StatusOK},
		{"APIKey", []string{headerAPIKey, staffKey}, http.StatusOK},
		{"WrongAPIKey", []string{headerAPIKey, "guess"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodGet, "/sales/filter", "", tt.headers...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

type itemDoc struct {
	Amount   string `json:"amount"`
	Quantity int    `json:"quantity"`
}

type saleDoc struct {
	ID       string         `json:"id"`
	Customer map[string]any `json:"customer"`
	Total    string         `json:"total"`
	Subtotal string         `json:"subtotal"`
	Status   string         `json:"status"`
	Items    []itemDoc      `json:"items"`
}

type pageDoc struct {
	Match     []saleDoc `json:"match"`
	PageCount int       `json:"page_count"`
}

func TestFilterSales(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.page = &sale.Page{Match: []sale.Record{guestRecord()}, PageCount: 3}

	w := e.do(http.MethodGet, "/sales/filter?payment_method=pix&count=1&page=2&sort=-total", "", headerAPIKey, staffKey)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, e.sales.query.Count)
	assert.Equal(t, 2, e.sales.query.Page)

	got := decode[pageDoc](t, w)
	assert.Equal(t, 3, got.PageCount)
	require.Len(t, got.Match, 1)
	m := got.Match[0]
	assert.Equal(t, saleID, m.ID)
	assert.Equal(t, "ana@example.com", m.Customer["email"])
	assert.NotContains(t, m.Customer, "city")
	assert.Equal(t, "46.48", m.Total)
	assert.Equal(t, "39.98", m.Subtotal)
	assert.Equal(t, "in_progress", m.Status)
	require.Len(t, m.Items, 1)
	assert.Equal(t, "39.98", m.Items[0].Amount)
	assert.Equal(t, 2, m.Items[0].Quantity)
}

func TestFilterSales_InvalidQuery(t *testing.T) {
	e := newEnv(t, Config{})

	w := e.do(http.MethodGet, "/sales/filter?count=0", "", headerAPIKey, staffKey)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFilterSales_Empty(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.page = &sale.Page{Match: []sale.Record{}}

	w := e.do(http.MethodGet, "/sales/filter", "", headerAPIKey, staffKey)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"match":[],"page_count":0}`, w.Body.String())
}

func TestGetSale(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.records[saleID] = guestRecord()

	w := e.do(http.MethodGet, "/sales/"+saleID, "", headerAPIKey, staffKey)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "Ana Lima", got["customer_name"])
	assert.Equal(t, "pix", got["payment_method"])
	assert.NotContains(t, got, "payment_provider")
	assert.Equal(t, "2024-05-10T15:00:00Z", got["created_at"])

	w = e.do(http.MethodGet, "/sales/missing", "", headerAPIKey, staffKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonthlyReport(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.report = &sale.Report{
		CurrentTotal:  money.MustParse("125.00"),
		PreviousTotal: money.MustParse("100.00"),
		Change:        25,
		Customers:     4,
		Purchases:     6,
	}

	w := e.do(http.MethodGet, "/sales/report/monthly", "", headerAPIKey, staffKey)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"current_total":"125.00","previous_total":"100.00","change":25,"customers":4,"purchases":6}`, w.Body.String())
}

func TestListSpecies(t *testing.T) {
	e := newEnv(t, Config{ImageBaseURL: "https://cdn.example.com/img/"})
	e.species.list = []product.Product{neonTetra()}

	w := e.do(http.MethodGet, "/species?habitat=river&order_price=desc", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "river", e.species.filter.Habitat)
	got := decode[[]map[string]any](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "19.99", got[0]["price"])
	assert.Equal(t, "https://cdn.example.com/img/neon.png", got[0]["picture"])
	assert.Equal(t, []any{"schooling"}, got[0]["tags"])

	w = e.do(http.MethodGet, "/species?min_price=cheap", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchSpecies(t *testing.T) {
	e := newEnv(t, Config{})
	e.species.list = []product.Product{}

	w := e.do(http.MethodGet, "/species/search/tetra", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tetra", e.species.query)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetSpecies(t *testing.T) {
	e := newEnv(t, Config{})
	e.species.byID[speciesID] = neonTetra()

	w := e.do(http.MethodGet, "/species/"+speciesID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "neon.png", decode[map[string]any](t, w)["picture"])

	w = e.do(http.MethodGet, "/species/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSpecies(t *testing.T) {
	e := newEnv(t, Config{})
	staff := []string{"Authorization", "Bearer " + e.token(t, auth.RoleStaff)}

	w := e.do(http.MethodPost, "/species/new", `{"name":" Betta ","price":"12.50","stock":3,"tags":["labyrinth"]}`, staff...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"id":"`+speciesID+`"}`, w.Body.String())
	require.NotNil(t, e.species.created)
	assert.Equal(t, "Betta", e.species.created.Name)
	assert.True(t, money.MustParse("12.50").Equal(e.species.created.Price))

	t.Run("InvalidPrice", func(t *testing.T) {
		w := e.do(http.MethodPost, "/species/new", `{"name":"Betta","price":"free"}`, staff...)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("ZeroPrice", func(t *testing.T) {
		w := e.do(http.MethodPost, "/species/new", `{"name":"Betta"}`, staff...)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "price: price must be greater than zero", decode[errorBody](t, w).Message)
	})
	t.Run("Malformed", func(t *testing.T) {
		w := e.do(http.MethodPost, "/species/new", `{"name":`, staff...)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errBadBody.Error(), decode[errorBody](t, w).Message)
	})
	t.Run("Anonymous", func(t *testing.T) {
		w := e.do(http.MethodPost, "/species/new", `{"name":"Betta","price":"1"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUpdateDeleteSpecies(t *testing.T) {
	e := newEnv(t, Config{})
	e.species.byID[speciesID] = neonTetra()

	w := e.do(http.MethodPut, "/species/"+speciesID, `{"name":"Neon","price":"21.00"}`, headerAPIKey, staffKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[map[string]any](t, w)
	assert.Equal(t, speciesID, got["id"])
	assert.Equal(t, "21.00", got["price"])

	w = e.do(http.MethodDelete, "/species/"+speciesID, "", headerAPIKey, staffKey)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodDelete, "/species/other", "", headerAPIKey, staffKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t, Config{})

	w := e.do(http.MethodPost, "/auth/register", `{"name":"Marina Costa","email":"marina@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decode[sessionView](t, w)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, auth.RoleCPF, reg.Role)
	assert.NotContains(t, w.Body.String(), "secret-hash")

	w = e.do(http.MethodPost, "/auth/login", `{"email":"marina@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[sessionView](t, w).Token)

	w = e.do(http.MethodPost, "/auth/login", `{"email":"marina@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	e.accounts.err = auth.ErrEmailTaken
	w = e.do(http.MethodPost, "/auth/register", `{"name":"Marina Costa"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckAndChangePassword(t *testing.T) {
	e := newEnv(t, Config{})
	bearerHdr := []string{"Authorization", "Bearer " + e.token(t, auth.RoleCPF)}

	w := e.do(http.MethodGet, "/auth/check", "", bearerHdr...)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[accountView](t, w)
	assert.Equal(t, "marina@example.com", got.Email)
	assert.Equal(t, "12345678901", got.CPF)

	w = e.do(http.MethodPost, "/auth/password", `{"old_password":"hunter22","new_password":"hunter23"}`, bearerHdr...)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "hunter22", e.accounts.oldPass)
	assert.Equal(t, "hunter23", e.accounts.newPass)

	w = e.do(http.MethodGet, "/auth/check", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errMissingCredential.Error(), decode[errorBody](t, w).Message)
}

func TestUsers(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.accounts.account.ID

	w := e.do(http.MethodGet, "/users?role=cpf", "", headerAPIKey, staffKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, auth.RoleCPF, e.accounts.role)
	assert.Len(t, decode[[]accountView](t, w), 1)

	w = e.do(http.MethodGet, "/users/"+id, "", headerAPIKey, staffKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPut, "/users/"+id, `{"city":"Olinda"}`, headerAPIKey, staffKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Olinda", decode[accountView](t, w).City)

	w = e.do(http.MethodPut, "/users/"+id, `{"email":"x@example.com"}`, headerAPIKey, staffKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email: field cannot be updated", decode[errorBody](t, w).Message)

	w = e.do(http.MethodDelete, "/users/"+id, "", headerAPIKey, staffKey)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(http.MethodGet, "/users", "", "Authorization", "Bearer "+e.token(t, auth.RoleCNPJ))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func readNDJSON(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	zr, err := pgzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer zr.Close()

	var out []map[string]any
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &doc))
		out = append(out, doc)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestBackupSpecies(t *testing.T) {
	e := newEnv(t, Config{})
	betta := neonTetra()
	betta.ID, betta.Name = "0190a7c4-1b2c-7d3e-8f40-5a6b7c8d9e09", "Betta"
	e.species.list = []product.Product{neonTetra(), betta}

	w := e.do(http.MethodGet, "/admin/backup/species", "", headerAPIKey, staffKey)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "species-")
	docs := readNDJSON(t, w.Body.Bytes())
	require.Len(t, docs, 2)
	assert.Equal(t, "Neon tetra", docs[0]["name"])
	assert.Equal(t, "Betta", docs[1]["name"])
}

func TestBackupSales(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.records[saleID] = guestRecord()

	w := e.do(http.MethodGet, "/admin/backup/sales", "", headerAPIKey, staffKey)

	require.Equal(t, http.StatusOK, w.Code)
	docs := readNDJSON(t, w.Body.Bytes())
	require.Len(t, docs, 1)
	assert.Equal(t, saleID, docs[0]["id"])
	assert.Equal(t, "46.48", docs[0]["total"])
}

func TestBackup_FailureAbortsStream(t *testing.T) {
	e := newEnv(t, Config{})
	e.sales.err = errDB

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		e.do(http.MethodGet, "/admin/backup/sales", "", headerAPIKey, staffKey)
	})
}

func TestBackup_RequiresStaff(t *testing.T) {
	e := newEnv(t, Config{})

	w := e.do(http.MethodGet, "/admin/backup/sales", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
