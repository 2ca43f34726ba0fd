package auth

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/fishnet/internal/domain/validate"
)

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=6"`
	StreetAddress string `json:"street_address" validate:"required"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state"`
	Phone         string `json:"phone"`
	Picture       string `json:"picture"`
	Role          Role   `json:"role" validate:"required,oneof=admin cpf cnpj staff"`
	CPF           string `json:"cpf" validate:"omitempty,numeric,len=11"`
	CNPJ          string `json:"cnpj" validate:"omitempty,numeric,len=14"`
}

// AccountUpdate is a partial account update. ID, Email and Password are
// accepted only to be rejected as locked.
type AccountUpdate struct {
	ID            *string `json:"id"`
	Email         *string `json:"email"`
	Password      *string `json:"password"`
	Name          *string `json:"name"`
	StreetAddress *string `json:"street_address"`
	City          *string `json:"city"`
	State         *string `json:"state"`
	Phone         *string `json:"phone"`
	Picture       *string `json:"picture"`
	Role          *Role   `json:"role"`
}

// Session is the result of a successful register or login.
type Session struct {
	Token   string
	Account *Account
}

// ServiceConfig tunes the account service.
type ServiceConfig struct {
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service implements registration, login and account management.
type Service struct {
	accounts Repository
	tokens   *Tokens
	validate *validator.Validate
	cost     int
}

// NewService creates an account Service.
func NewService(accounts Repository, tokens *Tokens, cfg ServiceConfig) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		validate: NewValidator(),
		cost:     cfg.BcryptCost,
	}
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Register validates the request, stores the account and issues a token.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, fieldError(err)
	}
	if (req.CPF == "") == (req.CNPJ == "") {
		return nil, ErrDocumentRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	a := &Account{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Email:         req.Email,
		PasswordHash:  hash,
		Role:          req.Role,
		StreetAddress: req.StreetAddress,
		City:          req.City,
		State:         req.State,
		Phone:         req.Phone,
		CPF:           req.CPF,
		CNPJ:          req.CNPJ,
		Picture:       req.Picture,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, errors.Wrap(err, "create account")
	}
	return s.session(a)
}

// Login checks the password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, errors.Wrap(err, "get account")
	}
	if bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidLogin
	}
	return s.session(a)
}

// Check returns the account behind a verified token.
func (s *Service) Check(ctx context.Context, claims *Claims) (*Account, error) {
	return s.accounts.GetByID(ctx, claims.AccountID())
}

// ChangePassword replaces the password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return validate.Field("new_password", ErrInvalidRegistration)
	}
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	return s.accounts.UpdatePassword(ctx, accountID, hash)
}

// List returns accounts, optionally restricted to one role.
func (s *Service) List(ctx context.Context, role Role) ([]Account, error) {
	if role != "" && !validRole(role) {
		return nil, validate.Field("role", ErrInvalidRole)
	}
	return s.accounts.List(ctx, role)
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrAccountNotFound
	}
	return s.accounts.GetByID(ctx, id)
}

// Update applies a partial update. Identity fields are locked and the role
// can only move between customer kinds and staff.
func (s *Service) Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error) {
	switch {
	case upd.ID != nil:
		return nil, validate.Field("id", ErrLockedField)
	case upd.Email != nil:
		return nil, validate.Field("email", ErrLockedField)
	case upd.Password != nil:
		return nil, validate.Field("password", ErrLockedField)
	}
	if uuid.Validate(id) != nil {
		return nil, ErrAccountNotFound
	}
	if upd.Role != nil {
		switch *upd.Role {
		case RoleCPF, RoleCNPJ, RoleStaff:
		default:
			return nil, validate.Field("role", ErrInvalidRole)
		}
	}

	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&a.Name, upd.Name)
	set(&a.StreetAddress, upd.StreetAddress)
	set(&a.City, upd.City)
	set(&a.State, upd.State)
	set(&a.Phone, upd.Phone)
	set(&a.Picture, upd.Picture)
	if upd.Role != nil {
		a.Role = *upd.Role
	}
	if strings.TrimSpace(a.Name) == "" {
		return nil, validate.Field("name", ErrInvalidRegistration)
	}

	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, errors.Wrap(err, "update account")
	}
	return a, nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return ErrAccountNotFound
	}
	return s.accounts.Delete(ctx, id)
}

func (s *Service) session(a *Account) (*Session, error) {
	token, err := s.tokens.Issue(a)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Account: a}, nil
}

func validRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleCPF, RoleCNPJ, RoleStaff:
		return true
	}
	return false
}

// fieldError converts the first validator failure into a FieldError.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate")
	}
	fe := verrs[0]
	if fe.Field() == "role" {
		return validate.Field("role", ErrInvalidRole)
	}
	return validate.Field(fe.Field(), ErrInvalidRegistration)
}
