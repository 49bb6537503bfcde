package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"bodega/backend/internal/domain"
	"bodega/backend/internal/store"
)

// Store keeps products and sales in maps guarded by one lock. When path is
// set, every committed change is written to a JSON snapshot file.
type Store struct {
	mu         sync.RWMutex
	products   map[int]domain.Product
	sales      map[int64]domain.Sale
	nextSaleID int64
	path       string
}

type snapshot struct {
	Products   []domain.Product `json:"products"`
	Sales      []domain.Sale    `json:"sales"`
	NextSaleID int64            `json:"next_sale_id"`
}

func New() *Store {
	return &Store{
		products:   make(map[int]domain.Product),
		sales:      make(map[int64]domain.Sale),
		nextSaleID: 1,
	}
}

func NewSeeded() *Store {
	s := New()
	products := []domain.Product{
		{ID: 1, Name: "Arroz 1kg", Category: "abarrotes", Price: decimal.NewFromInt(4), Stock: 40},
		{ID: 2, Name: "Azucar 1kg", Category: "abarrotes", Price: decimal.NewFromFloat(3.5), Stock: 35},
		{ID: 3, Name: "Aceite 900ml", Category: "abarrotes", Price: decimal.NewFromInt(9), Stock: 20},
		{ID: 4, Name: "Leche Entera 1L", Category: "lacteos", Price: decimal.NewFromFloat(4.2), Stock: 24},
		{ID: 5, Name: "Pan Tajado", Category: "panaderia", Price: decimal.NewFromFloat(5.8), Stock: 15},
		{ID: 6, Name: "Cafe Molido 250g", Category: "bebidas", Price: decimal.NewFromInt(12), Stock: 18},
		{ID: 7, Name: "Jabon de Barra", Category: "aseo", Price: decimal.NewFromFloat(2.5), Stock: 30},
		{ID: 8, Name: "Galletas Surtidas", Category: "snacks", Price: decimal.NewFromInt(6), Stock: 25},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// Open loads the snapshot at path, starting empty when the file does not
// exist yet.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, store.Storage("read snapshot", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, store.Storage("decode snapshot", err)
	}
	for _, p := range snap.Products {
		s.products[p.ID] = p
	}
	for _, sale := range snap.Sales {
		s.sales[sale.ID] = cloneSale(sale)
		if sale.ID >= s.nextSaleID {
			s.nextSaleID = sale.ID + 1
		}
	}
	if snap.NextSaleID > s.nextSaleID {
		s.nextSaleID = snap.NextSaleID
	}
	return s, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextID := 1
	for id := range s.products {
		if id >= nextID {
			nextID = id + 1
		}
	}
	product.ID = nextID
	s.products[product.ID] = product

	if err := s.persistLocked(); err != nil {
		delete(s.products, product.ID)
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	s.products[product.ID] = product

	if err := s.persistLocked(); err != nil {
		s.products[product.ID] = previous
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.products[id]
	if !ok {
		return store.ErrProductNotFound
	}
	delete(s.products, id)

	if err := s.persistLocked(); err != nil {
		s.products[id] = previous
		return err
	}
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrSaleNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

// InTx holds the write lock for the whole of fn. Writes are staged on the
// transaction and only reach the maps (and the snapshot) when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:          s,
		products:   make(map[int]domain.Product),
		sales:      make(map[int64]domain.Sale),
		deleted:    make(map[int64]struct{}),
		nextSaleID: s.nextSaleID,
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commitLocked()
}

type memTx struct {
	s          *Store
	products   map[int]domain.Product
	sales      map[int64]domain.Sale
	deleted    map[int64]struct{}
	nextSaleID int64
}

func (t *memTx) LockProducts(_ context.Context, ids []int) (map[int]domain.Product, error) {
	result := make(map[int]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.products[id]; ok {
			result[id] = p
			continue
		}
		if p, ok := t.s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (t *memTx) SaveProduct(_ context.Context, product domain.Product) error {
	if _, ok := t.s.products[product.ID]; !ok {
		return store.ErrProductNotFound
	}
	t.products[product.ID] = product
	return nil
}

func (t *memTx) LockSale(_ context.Context, id int64) (*domain.Sale, error) {
	if _, gone := t.deleted[id]; gone {
		return nil, store.ErrSaleNotFound
	}
	if sale, ok := t.sales[id]; ok {
		dup := cloneSale(sale)
		return &dup, nil
	}
	sale, ok := t.s.sales[id]
	if !ok {
		return nil, store.ErrSaleNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale.ID = t.nextSaleID
	t.nextSaleID++
	t.sales[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (t *memTx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	if _, err := t.LockSale(ctx, sale.ID); err != nil {
		return err
	}
	t.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (t *memTx) DeleteSale(ctx context.Context, id int64) error {
	if _, err := t.LockSale(ctx, id); err != nil {
		return err
	}
	delete(t.sales, id)
	t.deleted[id] = struct{}{}
	return nil
}

func (t *memTx) commitLocked() error {
	s := t.s

	prevProducts := make(map[int]domain.Product, len(t.products))
	for id, p := range t.products {
		prevProducts[id] = s.products[id]
		s.products[id] = p
	}
	prevSales := make(map[int64]*domain.Sale, len(t.sales)+len(t.deleted))
	for id := range t.deleted {
		if old, ok := s.sales[id]; ok {
			prevSales[id] = &old
		}
		delete(s.sales, id)
	}
	for id, sale := range t.sales {
		if old, ok := s.sales[id]; ok {
			prevSales[id] = &old
		} else {
			prevSales[id] = nil
		}
		s.sales[id] = sale
	}
	prevNext := s.nextSaleID
	s.nextSaleID = t.nextSaleID

	if err := s.persistLocked(); err != nil {
		for id, p := range prevProducts {
			s.products[id] = p
		}
		for id, old := range prevSales {
			if old == nil {
				delete(s.sales, id)
				continue
			}
			s.sales[id] = *old
		}
		s.nextSaleID = prevNext
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	snap := snapshot{
		Products:   make([]domain.Product, 0, len(s.products)),
		Sales:      make([]domain.Sale, 0, len(s.sales)),
		NextSaleID: s.nextSaleID,
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	slices.SortFunc(snap.Products, func(a, b domain.Product) int { return a.ID - b.ID })
	for _, sale := range s.sales {
		snap.Sales = append(snap.Sales, sale)
	}
	slices.SortFunc(snap.Sales, func(a, b domain.Sale) int { return cmp.Compare(a.ID, b.ID) })

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return store.Storage("encode snapshot", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return store.Storage("create snapshot dir", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return store.Storage("write snapshot", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return store.Storage("replace snapshot", err)
	}
	return nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
