package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type ProductCreateRequest struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Image    *string          `json:"image,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Stock    *int             `json:"stock,omitempty"`
}

type SaleKind string

const (
	SaleKindSale     SaleKind = "sale"
	SaleKindDonation SaleKind = "donation"
	SaleKindWeb      SaleKind = "web"
)

func (k SaleKind) Valid() bool {
	switch k {
	case SaleKindSale, SaleKindDonation, SaleKindWeb:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusPaid           SaleStatus = "Paid"
	SaleStatusPartial        SaleStatus = "Partial"
	SaleStatusOwing          SaleStatus = "Owing"
	SaleStatusDonation       SaleStatus = "Donation"
	SaleStatusPaidElectronic SaleStatus = "Paid (electronic)"
)

const (
	DefaultSaleCustomer      = "Cliente"
	DefaultDonationRecipient = "Beneficiario"
)

// SaleItem is one cart line as it was recorded on the sale. UnitPrice is the
// product price at the time the sale was created.
type SaleItem struct {
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Sale struct {
	ID               int64           `json:"id"`
	Customer         string          `json:"customer"`
	Kind             SaleKind        `json:"kind"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Items            []SaleItem      `json:"items"`
	Total            decimal.Decimal `json:"total"`
	Paid             decimal.Decimal `json:"paid"`
	Debt             decimal.Decimal `json:"debt"`
	Tendered         decimal.Decimal `json:"tendered"`
	Change           decimal.Decimal `json:"change"`
	Status           SaleStatus      `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type CartItem struct {
	ProductID int    `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Name      string `json:"name,omitempty"`
}

type SaleCreateRequest struct {
	Customer         string          `json:"customer"`
	Kind             SaleKind        `json:"kind"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	Paid             decimal.Decimal `json:"paid"`
	Items            []CartItem      `json:"items"`
}

type SaleEditRequest struct {
	Customer         string          `json:"customer"`
	Total            decimal.Decimal `json:"total"`
	Paid             decimal.Decimal `json:"paid"`
	Items            []SaleItem      `json:"items"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
}

type AbonoRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Subject string `json:"subject"`
}
