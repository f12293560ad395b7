package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

type CustomerData struct {
	Email           string
	Name            string
	Phone           string
	ShippingAddress string
	Currency        string
}

func (c CustomerData) CurrencyOrDefault() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return c.Currency
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type Order struct {
	ID              int64
	OrderNumber     string
	Email           string
	Name            string
	Phone           string
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Currency        string
	Status          OrderStatus
	SessionID       string
	IdempotencyKey  string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
