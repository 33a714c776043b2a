package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusOrderReceived  OrderStatus = "Order Received"
	StatusPreparing      OrderStatus = "Preparing"
	StatusReadyForPickup OrderStatus = "Ready for Pickup"
	StatusPickedUp       OrderStatus = "Picked Up"
	StatusCanceled       OrderStatus = "Canceled"
)

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentGCash PaymentMethod = "gcash"
)

type Order struct {
	OrderNumber   string          `json:"orderNumber"`
	Reference     string          `json:"reference,omitempty"`
	User          Identity        `json:"user"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod,omitempty"`
	Branch        string          `json:"branch,omitempty"`
	Status        OrderStatus     `json:"status,omitempty"` // owned by the order service
}

type OrderItem struct {
	ProductID ProductID       `json:"product"`
	Variant   string          `json:"variant"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Branch    string          `json:"branch"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Receipt is the local ledger record of a submitted order.
type Receipt struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Reference     string          `json:"reference"`
	CustomerName  string          `json:"customerName"`
	Contact       string          `json:"contact"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Branch        string          `json:"branch"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	Items         []OrderItem     `json:"items"`
}

func NewReceipt(order *Order) *Receipt {
	return &Receipt{
		OrderNumber:   order.OrderNumber,
		Reference:     order.Reference,
		CustomerName:  order.User.Name,
		Contact:       order.User.Contact,
		PaymentMethod: order.PaymentMethod,
		Branch:        order.Branch,
		Total:         order.Total,
		Items:         order.Items,
	}
}

/*
Mysql Table

CREATE TABLE receipts (
	id INT AUTO_INCREMENT PRIMARY KEY,
	order_number VARCHAR(32) NOT NULL,
	reference VARCHAR(64) NOT NULL UNIQUE,
	customer_name VARCHAR(255) NOT NULL,
	contact VARCHAR(255) NOT NULL,
	payment_method VARCHAR(32) NOT NULL,
	branch VARCHAR(64) NOT NULL,
	total DECIMAL(18,4) NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_receipts_order_number (order_number)
);

CREATE TABLE receipt_items (
	id INT AUTO_INCREMENT PRIMARY KEY,
	receipt_id INT NOT NULL,
	product_id VARCHAR(64) NOT NULL,
	variant VARCHAR(255) NOT NULL,
	quantity INT NOT NULL,
	price DECIMAL(18,4) NOT NULL,
	branch VARCHAR(64) NOT NULL,
	FOREIGN KEY (receipt_id) REFERENCES receipts(id) ON DELETE CASCADE
);

*/
