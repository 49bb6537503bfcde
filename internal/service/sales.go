package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"bodega/backend/internal/domain"
	"bodega/backend/internal/store"
)

func (s *Service) ListSales(ctx context.Context, descending bool) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	if descending {
		slices.Reverse(sales)
	}
	return sales, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// CreateSale validates the whole cart against current stock before any
// product is touched, then decrements every line and records the sale in
// the same unit of work.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	kind := req.Kind
	if kind == "" {
		kind = domain.SaleKindSale
	}
	if !kind.Valid() {
		return domain.Sale{}, fmt.Errorf("%w: unknown sale kind %q", store.ErrInvalidRequest, req.Kind)
	}
	if req.Paid.IsNegative() {
		return domain.Sale{}, fmt.Errorf("%w: paid must not be negative", store.ErrInvalidRequest)
	}
	cart, err := normalizeCart(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	reference := strings.TrimSpace(req.PaymentReference)
	switch {
	case kind == domain.SaleKindDonation:
		method, reference = "", ""
	case method == "" && kind == domain.SaleKindWeb:
		method = "transfer"
	case method == "":
		method = "cash"
	}
	if !IsElectronicPayment(method) {
		reference = ""
	}

	customer := strings.TrimSpace(req.Customer)
	if customer == "" {
		customer = domain.DefaultSaleCustomer
		if kind == domain.SaleKindDonation {
			customer = domain.DefaultDonationRecipient
		}
	}

	var created *domain.Sale
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		ids := make([]int, 0, len(cart))
		for _, line := range cart {
			ids = append(ids, line.ProductID)
		}
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		for _, line := range cart {
			product, ok := products[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: id %d", store.ErrProductNotFound, line.ProductID)
			}
			if line.Quantity > product.Stock {
				return &store.StockError{
					ProductID: product.ID,
					Name:      product.Name,
					Requested: line.Quantity,
					Available: product.Stock,
				}
			}
		}

		items := make([]domain.SaleItem, 0, len(cart))
		total := decimal.Zero
		for _, line := range cart {
			product := products[line.ProductID]
			product.Stock -= line.Quantity
			if err := tx.SaveProduct(ctx, product); err != nil {
				return err
			}
			items = append(items, domain.SaleItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			})
			total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		st := Settle(kind, method, total, req.Paid)
		now := s.now()
		created, err = tx.InsertSale(ctx, domain.Sale{
			Customer:         customer,
			Kind:             kind,
			PaymentMethod:    method,
			PaymentReference: reference,
			Items:            items,
			Total:            st.Total,
			Paid:             st.Paid,
			Debt:             st.Debt,
			Tendered:         st.Tendered,
			Change:           st.Change,
			Status:           st.Status,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		return err
	})
	if err != nil {
		s.metrics.Failed("create")
		return domain.Sale{}, err
	}
	s.invalidateProducts(ctx)
	s.metrics.SaleCreated(string(created.Kind))

	s.logger(ctx).Info().
		Int64("sale_id", created.ID).
		Str("kind", string(created.Kind)).
		Str("method", created.PaymentMethod).
		Stringer("total", created.Total).
		Stringer("debt", created.Debt).
		Int("lines", len(created.Items)).
		Msg("sale created")
	return *created, nil
}

// ApplyAbono records a partial payment against a sale's outstanding debt.
// It never touches stock.
func (s *Service) ApplyAbono(ctx context.Context, id int64, amount decimal.Decimal) (domain.Sale, error) {
	if !amount.IsPositive() {
		return domain.Sale{}, fmt.Errorf("%w: abono amount must be positive", store.ErrInvalidRequest)
	}

	var updated domain.Sale
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if amount.GreaterThan(sale.Debt) {
			return fmt.Errorf("%w: amount %s, outstanding %s", store.ErrAbonoExceedsDebt, amount, sale.Debt)
		}

		sale.Paid = sale.Paid.Add(amount)
		sale.Tendered = sale.Tendered.Add(amount)
		sale.Debt = sale.Debt.Sub(amount)
		if sale.Debt.Sign() <= 0 {
			sale.Debt = decimal.Zero
			sale.Status = domain.SaleStatusPaid
		} else {
			sale.Status = domain.SaleStatusPartial
		}
		sale.UpdatedAt = s.now()

		if err := tx.UpdateSale(ctx, *sale); err != nil {
			return err
		}
		updated = *sale
		return nil
	})
	if err != nil {
		s.metrics.Failed("abono")
		return domain.Sale{}, err
	}
	s.metrics.AbonoApplied()

	s.logger(ctx).Info().
		Int64("sale_id", updated.ID).
		Stringer("amount", amount).
		Stringer("debt", updated.Debt).
		Str("status", string(updated.Status)).
		Msg("abono applied")
	return updated, nil
}

// stockOverride is a product whose stock a sale correction drove below zero.
type stockOverride struct {
	ProductID int
	Name      string
	Stock     int
}

// EditSale replaces the items and amounts of an existing sale. Stock of the
// old items is returned first, then the new items are taken with
// forceDecrement, which does not check availability.
func (s *Service) EditSale(ctx context.Context, id int64, req domain.SaleEditRequest) (domain.Sale, error) {
	if req.Total.IsNegative() || req.Paid.IsNegative() {
		return domain.Sale{}, fmt.Errorf("%w: total and paid must not be negative", store.ErrInvalidRequest)
	}
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return domain.Sale{}, fmt.Errorf("%w: product id is required", store.ErrInvalidRequest)
		}
		if item.Quantity <= 0 {
			return domain.Sale{}, fmt.Errorf("%w: quantity for product %d must be positive", store.ErrInvalidRequest, item.ProductID)
		}
		item.Name = strings.TrimSpace(item.Name)
		items = append(items, item)
	}

	var (
		updated   domain.Sale
		overrides []stockOverride
		skipped   []int
	)
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}

		products, err := tx.LockProducts(ctx, productIDs(sale.Items, items))
		if err != nil {
			return err
		}

		skipped = restoreStock(products, sale.Items)
		overrides, skipped = forceDecrement(products, items, skipped)
		for _, product := range products {
			if err := tx.SaveProduct(ctx, product); err != nil {
				return err
			}
		}

		for i := range items {
			if product, ok := products[items[i].ProductID]; ok && items[i].Name == "" {
				items[i].Name = product.Name
			}
		}

		if customer := strings.TrimSpace(req.Customer); customer != "" {
			sale.Customer = customer
		}
		if req.PaymentReference != nil {
			sale.PaymentReference = strings.TrimSpace(*req.PaymentReference)
		}
		st := Settle(sale.Kind, sale.PaymentMethod, req.Total, req.Paid)
		sale.Items = items
		sale.Total = st.Total
		sale.Paid = st.Paid
		sale.Debt = st.Debt
		sale.Tendered = st.Tendered
		sale.Change = st.Change
		sale.Status = st.Status
		sale.UpdatedAt = s.now()

		if err := tx.UpdateSale(ctx, *sale); err != nil {
			return err
		}
		updated = *sale
		return nil
	})
	if err != nil {
		s.metrics.Failed("edit")
		return domain.Sale{}, err
	}
	s.invalidateProducts(ctx)
	s.metrics.SaleEdited()

	log := s.logger(ctx)
	for _, productID := range skipped {
		log.Warn().Int64("sale_id", updated.ID).Int("product_id", productID).Msg("sale line references a deleted product; stock left untouched")
	}
	for _, o := range overrides {
		s.metrics.StockOverride()
		log.Warn().
			Int64("sale_id", updated.ID).
			Int("product_id", o.ProductID).
			Str("product", o.Name).
			Int("stock", o.Stock).
			Msg("sale correction left stock negative")
	}
	log.Info().
		Int64("sale_id", updated.ID).
		Stringer("total", updated.Total).
		Stringer("debt", updated.Debt).
		Str("status", string(updated.Status)).
		Msg("sale edited")
	return updated, nil
}

// DeleteSale returns every line's quantity to stock and removes the sale in
// one unit of work.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	var skipped []int
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		products, err := tx.LockProducts(ctx, productIDs(sale.Items, nil))
		if err != nil {
			return err
		}

		skipped = restoreStock(products, sale.Items)
		for _, product := range products {
			if err := tx.SaveProduct(ctx, product); err != nil {
				return err
			}
		}
		return tx.DeleteSale(ctx, id)
	})
	if err != nil {
		s.metrics.Failed("delete")
		return err
	}
	s.invalidateProducts(ctx)
	s.metrics.SaleDeleted()

	log := s.logger(ctx)
	for _, productID := range skipped {
		log.Warn().Int64("sale_id", id).Int("product_id", productID).Msg("sale line references a deleted product; stock left untouched")
	}
	log.Info().Int64("sale_id", id).Msg("sale deleted")
	return nil
}

// normalizeCart merges repeated product lines, keeping first-seen order.
func normalizeCart(lines []domain.CartItem) ([]domain.CartItem, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrInvalidRequest)
	}

	merged := make([]domain.CartItem, 0, len(lines))
	index := make(map[int]int, len(lines))
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, fmt.Errorf("%w: product id is required", store.ErrInvalidRequest)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %d must be positive", store.ErrInvalidRequest, line.ProductID)
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func productIDs(old []domain.SaleItem, next []domain.SaleItem) []int {
	seen := make(map[int]struct{}, len(old)+len(next))
	ids := make([]int, 0, len(old)+len(next))
	for _, items := range [][]domain.SaleItem{old, next} {
		for _, item := range items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// restoreStock adds each line's quantity back to its product and reports
// the lines whose product no longer exists.
func restoreStock(products map[int]domain.Product, items []domain.SaleItem) []int {
	var missing []int
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		product.Stock += item.Quantity
		products[item.ProductID] = product
	}
	return missing
}

// forceDecrement takes each line's quantity from its product without the
// availability check used by CreateSale. It is only reachable from sale
// corrections. Products left below zero are returned so the caller can
// report them once the correction commits.
func forceDecrement(products map[int]domain.Product, items []domain.SaleItem, missing []int) ([]stockOverride, []int) {
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			missing = append(missing, item.ProductID)
			continue
		}
		product.Stock -= item.Quantity
		products[item.ProductID] = product
	}

	var overrides []stockOverride
	reported := make(map[int]struct{})
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || product.Stock >= 0 {
			continue
		}
		if _, done := reported[product.ID]; done {
			continue
		}
		reported[product.ID] = struct{}{}
		overrides = append(overrides, stockOverride{ProductID: product.ID, Name: product.Name, Stock: product.Stock})
	}
	return overrides, missing
}
