package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bodega/backend/internal/cache"
	"bodega/backend/internal/domain"
	"bodega/backend/internal/metrics"
	"bodega/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// logger returns the service logger tagged with the authenticated actor, if any.
func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	l := s.log
	if actor, ok := ActorFromContext(ctx); ok && actor.Subject != "" {
		l = l.With().Str("actor", actor.Subject).Logger()
	}
	return &l
}

type Service struct {
	repo     store.Repository
	products cache.ProductCache
	metrics  *metrics.Recorder
	log      zerolog.Logger
	now      func() time.Time
}

func New(repo store.Repository, productCache cache.ProductCache, recorder *metrics.Recorder, logger zerolog.Logger) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}

	return &Service{
		repo:     repo,
		products: productCache,
		metrics:  recorder,
		log:      logger.With().Str("component", "service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cached, ok, err := s.products.GetProducts(ctx)
	if err != nil {
		s.logger(ctx).Warn().Err(err).Msg("product cache read failed")
	}
	if ok {
		return cached, nil
	}

	// The generation is read before the repository so that a stock change
	// committed while loading keeps this listing out of the cache.
	generation, genErr := s.products.Generation(ctx)
	if genErr != nil {
		s.logger(ctx).Warn().Err(genErr).Msg("product cache generation read failed")
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return products, nil
	}
	if err := s.products.SetProducts(ctx, generation, products); err != nil {
		if errors.Is(err, cache.ErrGenerationChanged) {
			s.logger(ctx).Debug().Msg("product listing changed while loading; not cached")
		} else {
			s.logger(ctx).Warn().Err(err).Msg("product cache write failed")
		}
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id int) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
		Image:    strings.TrimSpace(req.Image),
		Price:    req.Price,
		Stock:    req.Stock,
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateProducts(ctx)

	s.logger(ctx).Info().Int("product_id", created.ID).Str("name", created.Name).Int("stock", created.Stock).Msg("product created")
	return *created, nil
}

// UpdateProduct merges the fields present in req into the stored product.
func (s *Service) UpdateProduct(ctx context.Context, id int, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Image != nil {
		updated.Image = strings.TrimSpace(*req.Image)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateProducts(ctx)

	if existing.Stock != saved.Stock {
		s.logger(ctx).Info().Int("product_id", saved.ID).Int("from", existing.Stock).Int("to", saved.Stock).Msg("stock set manually")
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateProducts(ctx)
	s.logger(ctx).Info().Int("product_id", id).Msg("product deleted")
	return nil
}

func (s *Service) invalidateProducts(ctx context.Context) {
	if err := s.products.Invalidate(ctx); err != nil {
		s.logger(ctx).Warn().Err(err).Msg("product cache invalidation failed")
	}
}

func validateProduct(p domain.Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", store.ErrInvalidRequest)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", store.ErrInvalidRequest)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", store.ErrInvalidRequest)
	}
	return nil
}
