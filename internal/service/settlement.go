package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"bodega/backend/internal/domain"
)

// Settlement is the financial state of a sale derived from what it cost and
// what the customer handed over. Tendered is the amount as supplied by the
// caller, before it is capped or replaced.
type Settlement struct {
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Debt     decimal.Decimal
	Tendered decimal.Decimal
	Change   decimal.Decimal
	Status   domain.SaleStatus
}

// cashLikeMethods are settled at the counter. Any other method is treated as
// an electronic payment confirmed outside the system.
var cashLikeMethods = map[string]struct{}{
	"":         {},
	"cash":     {},
	"efectivo": {},
	"credit":   {},
	"credito":  {},
	"crédito":  {},
	"fiado":    {},
}

func IsElectronicPayment(method string) bool {
	_, cash := cashLikeMethods[strings.ToLower(strings.TrimSpace(method))]
	return !cash
}

// Settle is the single place where debt and status are derived. Create and
// edit both go through it; abono only moves paid and debt along the rules
// below.
//
// Recorded paid never exceeds total: anything handed over beyond the total
// is returned as change, so paid+debt always equals total.
func Settle(kind domain.SaleKind, method string, total decimal.Decimal, paid decimal.Decimal) Settlement {
	if kind == domain.SaleKindDonation {
		return Settlement{
			Total:    decimal.Zero,
			Paid:     decimal.Zero,
			Debt:     decimal.Zero,
			Tendered: decimal.Zero,
			Change:   decimal.Zero,
			Status:   domain.SaleStatusDonation,
		}
	}

	if IsElectronicPayment(method) {
		return Settlement{
			Total:    total,
			Paid:     total,
			Debt:     decimal.Zero,
			Tendered: paid,
			Change:   decimal.Zero,
			Status:   domain.SaleStatusPaidElectronic,
		}
	}

	st := Settlement{Total: total, Paid: paid, Tendered: paid, Change: decimal.Zero}
	if paid.GreaterThan(total) {
		st.Change = paid.Sub(total)
		st.Paid = total
	}
	st.Debt = total.Sub(st.Paid)

	switch {
	case st.Debt.Sign() <= 0:
		st.Debt = decimal.Zero
		st.Status = domain.SaleStatusPaid
	case st.Paid.IsZero():
		st.Status = domain.SaleStatusOwing
	default:
		st.Status = domain.SaleStatusPartial
	}
	return st
}
