package sale

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/fishnet/internal/domain/auth"
	"github.com/xenking/fishnet/internal/domain/validate"
)

// Identity is the customer a sale is attributed to: either Registered or
// Guest, never both.
type Identity interface {
	isIdentity()
}

// Registered references an existing account.
type Registered struct {
	AccountID string
}

// Guest carries the contact details of an anonymous purchaser.
type Guest struct {
	Name          string `json:"name"`
	Surname       string `json:"surname"`
	StreetAddress string `json:"street_address"`
	PostalCode    string `json:"postal_code"`
	Email         string `json:"email"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

func (Registered) isIdentity() {}
func (Guest) isIdentity() {}

// FullName returns "name surname".
func (g Guest) FullName() string {
	return strings.TrimSpace(g.Name + " " + g.Surname)
}

// GuestInput is the untrusted customer object of a request. Nil fields were
// absent.
type GuestInput struct {
	Name          *string
	Surname       *string
	StreetAddress *string
	PostalCode    *string
	Email         *string
	City          *string
	State         *string
	Phone         *string
}

// AccountLookup resolves account references.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*auth.Account, error)
}

// IdentityResolver decides whether a sale belongs to an account or a guest.
type IdentityResolver struct {
	verifier auth.Verifier
	accounts AccountLookup
	validate *validator.Validate
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(verifier auth.Verifier, accounts AccountLookup) *IdentityResolver {
	return &IdentityResolver{
		verifier: verifier,
		accounts: accounts,
		validate: validator.New(),
	}
}

// Resolve returns Registered when a credential is given and Guest otherwise.
// Supplying both is rejected.
func (r *IdentityResolver) Resolve(ctx context.Context, credential string, guest *GuestInput) (Identity, error) {
	if credential != "" {
		if guest != nil {
			return nil, ErrConflictingIdentity
		}
		claims, err := r.verifier.Verify(credential)
		if err != nil {
			return nil, err
		}
		acc, err := r.accounts.GetByID(ctx, claims.AccountID())
		if err != nil {
			return nil, errors.Wrap(err, "get account")
		}
		return Registered{AccountID: acc.ID}, nil
	}

	if guest == nil {
		return nil, ErrMissingCustomer
	}
	return r.guest(guest)
}

func (r *IdentityResolver) guest(in *GuestInput) (Guest, error) {
	var g Guest
	required := []struct {
		field string
		src   *string
		dst   *string
	}{
		{"name", in.Name, &g.Name},
		{"surname", in.Surname, &g.Surname},
		{"street_address", in.StreetAddress, &g.StreetAddress},
		{"postal_code", in.PostalCode, &g.PostalCode},
		{"email", in.Email, &g.Email},
	}
	for _, f := range required {
		if f.src == nil || strings.TrimSpace(*f.src) == "" {
			return Guest{}, validate.Field("customer."+f.field, ErrMissingCustomerField)
		}
		*f.dst = strings.TrimSpace(*f.src)
	}
	if err := r.validate.Var(g.Email, "email"); err != nil {
		return Guest{}, validate.Field("customer.email", ErrInvalidCustomerField)
	}

	opt := func(v *string) string {
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	}
	g.City = opt(in.City)
	g.State = opt(in.State)
	g.Phone = opt(in.Phone)
	return g, nil
}
