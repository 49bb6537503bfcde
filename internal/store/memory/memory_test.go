package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"bodega/backend/internal/domain"
	"bodega/backend/internal/store"
)

func TestCreateProductAssignsNextID(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateProduct(ctx, domain.Product{Name: "Arroz", Price: decimal.NewFromInt(4), Stock: 3})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if first.ID != 1 {
		t.Fatalf("expected first id 1, got %d", first.ID)
	}

	if _, err := s.UpdateProduct(ctx, domain.Product{ID: 7, Name: "Ghost"}); !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	s.products[9] = domain.Product{ID: 9, Name: "Imported"}
	next, err := s.CreateProduct(ctx, domain.Product{Name: "Leche"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if next.ID != 10 {
		t.Fatalf("expected id max+1=10, got %d", next.ID)
	}
}

func TestListProductsOrderedByName(t *testing.T) {
	s := NewSeeded()
	products, err := s.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for i := 1; i < len(products); i++ {
		if products[i-1].Name > products[i].Name {
			t.Fatalf("products not sorted by name: %q before %q", products[i-1].Name, products[i].Name)
		}
	}
}

func TestListProductsBreaksNameTiesByID(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, name := range []string{"Sal", "Azucar", "Sal"} {
		if _, err := s.CreateProduct(ctx, domain.Product{Name: name, Price: decimal.NewFromInt(1)}); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	got := make([]int, 0, len(products))
	for _, p := range products {
		got = append(got, p.ID)
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 1 || got[2] != 3 {
		t.Fatalf("expected ids [2 1 3], got %v", got)
	}
}

func TestInTxDiscardsWritesOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		products, err := tx.LockProducts(ctx, []int{1})
		if err != nil {
			return err
		}
		p := products[1]
		p.Stock = 0
		if err := tx.SaveProduct(ctx, p); err != nil {
			return err
		}
		if _, err := tx.InsertSale(ctx, domain.Sale{Customer: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	product, _ := s.GetProduct(ctx, 1)
	if product.Stock != 40 {
		t.Fatalf("expected stock untouched at 40, got %d", product.Stock)
	}
	sales, _ := s.ListSales(ctx)
	if len(sales) != 0 {
		t.Fatalf("expected no sales after rollback, got %d", len(sales))
	}
	if s.nextSaleID != 1 {
		t.Fatalf("expected sale sequence untouched, got %d", s.nextSaleID)
	}
}

func TestInTxDeleteThenLockReportsMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	var id int64
	if err := s.InTx(ctx, func(tx store.Tx) error {
		sale, err := tx.InsertSale(ctx, domain.Sale{Customer: "Ana"})
		id = sale.ID
		return err
	}); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.DeleteSale(ctx, id); err != nil {
			return err
		}
		_, err := tx.LockSale(ctx, id)
		return err
	})
	if !errors.Is(err, store.ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}
	if _, err := s.GetSale(ctx, id); err != nil {
		t.Fatalf("failed tx must not delete the sale: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "bodega.json")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open empty: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{Name: "Cafe", Price: decimal.NewFromInt(12), Stock: 6})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertSale(ctx, domain.Sale{
			Customer: "Luis",
			Items:    []domain.SaleItem{{ProductID: product.ID, Quantity: 2, UnitPrice: product.Price}},
			Total:    decimal.NewFromInt(24),
		})
		return err
	}); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	sales, _ := reopened.ListSales(ctx)
	if len(sales) != 1 || sales[0].Customer != "Luis" || len(sales[0].Items) != 1 {
		t.Fatalf("unexpected sales after reopen: %+v", sales)
	}
	if !sales[0].Total.Equal(decimal.NewFromInt(24)) {
		t.Fatalf("expected total 24, got %s", sales[0].Total)
	}
	if reopened.nextSaleID != 2 {
		t.Fatalf("expected sequence to resume at 2, got %d", reopened.nextSaleID)
	}
	got, err := reopened.GetProduct(ctx, product.ID)
	if err != nil || got.Name != "Cafe" {
		t.Fatalf("expected product restored, got %+v (%v)", got, err)
	}
}
