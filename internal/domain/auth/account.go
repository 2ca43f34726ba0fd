package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/fishnet/internal/domain/validate"
)

// Role classifies an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleCPF   Role = "cpf"  // individual customer
	RoleCNPJ  Role = "cnpj" // company customer
	RoleStaff Role = "staff"
)

// IsStaff reports whether the role may use back-office endpoints.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}

var (
	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailTaken is returned when registering an email that is already used.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidLogin is returned for an unknown email or a wrong password.
	ErrInvalidLogin = errors.New("invalid login")
)

var (
	ErrInvalidCredential   = validate.New("invalid credential")
	ErrInvalidRegistration = validate.New("invalid value")
	ErrDocumentRequired    = validate.New("exactly one of cpf or cnpj is required")
	ErrLockedField         = validate.New("field cannot be updated")
	ErrInvalidRole         = validate.New("invalid role")
	ErrWrongPassword       = validate.New("old password does not match")
)

// Account is a registered customer or staff member.
type Account struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  []byte
	Role          Role
	StreetAddress string
	City          string
	State         string
	Phone         string
	CPF           string
	CNPJ          string
	Picture       string
	CreatedAt     time.Time
}

// Repository defines account persistence.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// List returns all accounts, or only those with the given role when role
	// is non-empty.
	List(ctx context.Context, role Role) ([]Account, error)
	Update(ctx context.Context, a *Account) error
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	Delete(ctx context.Context, id string) error
}
