package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bodega/backend/internal/domain"
	"bodega/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = 16
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// NUMERIC columns decode straight into decimal.Decimal on every connection.
	poolConfig.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, category, image, price, stock
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, mapErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Image, &p.Price, &p.Stock); err != nil {
			return nil, mapErr("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list products", err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	var p domain.Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, category, image, price, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Image, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, mapErr("get product", err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, category, image, price, stock, created_at, updated_at)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, $5, now(), now()
		FROM products
		RETURNING id
	`, product.Name, product.Category, product.Image, product.Price, product.Stock).Scan(&product.ID)
	if err != nil {
		return nil, mapErr("create product", err)
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, category = $3, image = $4, price = $5, stock = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Image, product.Price, product.Stock)
	if err != nil {
		return nil, mapErr("update product", err)
	}
	if res.RowsAffected() == 0 {
		return nil, store.ErrProductNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete product", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrProductNotFound
	}
	return nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, customer, kind, payment_method, COALESCE(payment_reference, ''),
			total, paid, debt, tendered, change_due, status, created_at, updated_at
		FROM sales
		ORDER BY id
	`)
	if err != nil {
		return nil, mapErr("list sales", err)
	}
	sales := make([]domain.Sale, 0, 64)
	index := make(map[int64]int)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, mapErr("scan sale", err)
		}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, mapErr("list sales", err)
	}
	rows.Close()

	itemRows, err := s.pool.Query(ctx, `
		SELECT sale_id, product_id, name, quantity, unit_price
		FROM sale_items
		ORDER BY sale_id, line_no
	`)
	if err != nil {
		return nil, mapErr("list sale items", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var saleID int64
		var item domain.SaleItem
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, mapErr("scan sale item", err)
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, mapErr("list sale items", err)
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return loadSale(ctx, s.pool, id, false)
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int) (map[int]domain.Product, error) {
	result := make(map[int]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, category, image, price, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, mapErr("lock products", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Image, &p.Price, &p.Stock); err != nil {
			return nil, mapErr("scan product", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("lock products", err)
	}
	return result, nil
}

func (t *pgTx) SaveProduct(ctx context.Context, product domain.Product) error {
	res, err := t.tx.Exec(ctx, `
		UPDATE products
		SET name = $2, category = $3, image = $4, price = $5, stock = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Image, product.Price, product.Stock)
	if err != nil {
		return mapErr("save product", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrProductNotFound
	}
	return nil
}

func (t *pgTx) LockSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return loadSale(ctx, t.tx, id, true)
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (
			customer, kind, payment_method, payment_reference,
			total, paid, debt, tendered, change_due, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, sale.Customer, string(sale.Kind), sale.PaymentMethod, nullIfEmpty(sale.PaymentReference),
		sale.Total, sale.Paid, sale.Debt, sale.Tendered, sale.Change, string(sale.Status), sale.CreatedAt, sale.UpdatedAt).Scan(&sale.ID)
	if err != nil {
		return nil, mapErr("insert sale", err)
	}
	if err := t.insertItems(ctx, sale.ID, sale.Items); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (t *pgTx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	res, err := t.tx.Exec(ctx, `
		UPDATE sales
		SET customer = $2, payment_reference = $3, total = $4, paid = $5,
			debt = $6, tendered = $7, change_due = $8, status = $9, updated_at = $10
		WHERE id = $1
	`, sale.ID, sale.Customer, nullIfEmpty(sale.PaymentReference), sale.Total, sale.Paid,
		sale.Debt, sale.Tendered, sale.Change, string(sale.Status), sale.UpdatedAt)
	if err != nil {
		return mapErr("update sale", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrSaleNotFound
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return mapErr("replace sale items", err)
	}
	return t.insertItems(ctx, sale.ID, sale.Items)
}

func (t *pgTx) DeleteSale(ctx context.Context, id int64) error {
	res, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete sale", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrSaleNotFound
	}
	return nil
}

func (t *pgTx) insertItems(ctx context.Context, saleID int64, items []domain.SaleItem) error {
	for i, item := range items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, saleID, i+1, item.ProductID, item.Name, item.Quantity, item.UnitPrice)
		if err != nil {
			return mapErr("insert sale item", err)
		}
	}
	return nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func loadSale(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Sale, error) {
	query := `
		SELECT id, customer, kind, payment_method, COALESCE(payment_reference, ''),
			total, paid, debt, tendered, change_due, status, created_at, updated_at
		FROM sales
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	sale, err := scanSale(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSaleNotFound
		}
		return nil, mapErr("get sale", err)
	}

	rows, err := q.Query(ctx, `
		SELECT product_id, name, quantity, unit_price
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, mapErr("get sale items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, mapErr("scan sale item", err)
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("get sale items", err)
	}
	return &sale, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var kind, status string
	err := row.Scan(&sale.ID, &sale.Customer, &kind, &sale.PaymentMethod, &sale.PaymentReference,
		&sale.Total, &sale.Paid, &sale.Debt, &sale.Tendered, &sale.Change, &status, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Kind = domain.SaleKind(kind)
	sale.Status = domain.SaleStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	sale.Items = []domain.SaleItem{}
	return sale, nil
}

// mapErr turns serialization failures, deadlocks and unique violations into
// ErrConflict so the caller can retry; everything else is a storage fault.
func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return errors.Join(store.ErrConflict, err)
		}
	}
	return store.Storage(op, err)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
