package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/fishnet/internal/domain/validate"
)

// Service implements catalog writes on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates p, assigns its identity and stores it.
func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.now().UTC()
	if err := s.repo.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create species")
	}
	return nil
}

// Update replaces the species with the given id.
func (s *Service) Update(ctx context.Context, id string, p *Product) error {
	if err := uuid.Validate(id); err != nil {
		return validate.Field("id", ErrInvalidID)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = id
	return s.repo.Update(ctx, p)
}

// Get returns a species by id.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// Delete removes a species.
func (s *Service) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id)
}

// List returns the species matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Product, error) {
	return s.repo.List(ctx, f)
}

// Search matches name, scientific name or tags.
func (s *Service) Search(ctx context.Context, query string) ([]Product, error) {
	return s.repo.Search(ctx, query)
}

// Each streams the whole catalog to fn.
func (s *Service) Each(ctx context.Context, fn func(*Product) error) error {
	return s.repo.Each(ctx, fn)
}
