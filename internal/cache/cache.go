package cache

import (
	"context"
	"errors"

	"bodega/backend/internal/domain"
)

// ErrGenerationChanged is returned by SetProducts when the listing was
// invalidated after the caller read its generation. The listing is not stored.
var ErrGenerationChanged = errors.New("product cache generation changed")

// ProductCache holds the name-ordered product listing between writes.
//
// Every Invalidate bumps the generation. A caller that loads the listing from
// the repository reads Generation first and hands it to SetProducts, so a
// listing loaded before a stock change can never overwrite a newer state.
type ProductCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetProducts(ctx context.Context, generation int64, products []domain.Product) error
	Invalidate(ctx context.Context) error
}

type NoopProductCache struct{}

func (NoopProductCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopProductCache) SetProducts(_ context.Context, _ int64, _ []domain.Product) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context) error {
	return nil
}
