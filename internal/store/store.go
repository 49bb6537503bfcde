package store

import (
	"context"
	"errors"
	"fmt"

	"bodega/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrProductNotFound   = fmt.Errorf("product %w", ErrNotFound)
	ErrSaleNotFound      = fmt.Errorf("sale %w", ErrNotFound)
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAbonoExceedsDebt  = errors.New("abono exceeds debt")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrStorage           = errors.New("storage failure")
)

// StockError reports which cart line could not be served.
type StockError struct {
	ProductID int
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): requested %d, available %d", e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Storage marks err as an I/O-layer fault so callers can tell it apart from
// domain validation failures.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int) error
	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	// InTx runs fn as one unit of work. Nothing fn wrote is visible to
	// other callers unless fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side of the ledger used by the sale lifecycle.
type Tx interface {
	// LockProducts returns the requested products that exist, keyed by id.
	LockProducts(ctx context.Context, ids []int) (map[int]domain.Product, error)
	SaveProduct(ctx context.Context, product domain.Product) error
	LockSale(ctx context.Context, id int64) (*domain.Sale, error)
	// InsertSale assigns the next sale id from the ledger sequence.
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error
	DeleteSale(ctx context.Context, id int64) error
}
