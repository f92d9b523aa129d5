package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus статус заказа
type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusProcessing OrderStatus = "Processing"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// порядок статусов в прямом жизненном цикле заказа
var statusRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// Terminal - из Delivered и Cancelled переходов нет
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo проверяет переход между статусами.
// Движение только вперёд по Pending -> Processing -> Shipped -> Delivered,
// отмена возможна только из Pending.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return s == StatusPending
	}
	return statusRank[next] > statusRank[s]
}

// PaymentMethod способ оплаты
type PaymentMethod string

const (
	PaymentCOD        PaymentMethod = "COD"
	PaymentUPI        PaymentMethod = "UPI"
	PaymentNetBanking PaymentMethod = "NetBanking"
	PaymentCreditCard PaymentMethod = "CreditCard"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCOD, PaymentUPI, PaymentNetBanking, PaymentCreditCard:
		return true
	}
	return false
}

const DefaultCountry = "India"

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// OrderItem позиция заказа. Цена фиксируется в момент оформления.
type OrderItem struct {
	ID       int64           `json:"id"`
	CropID   int64           `json:"crop"` // 0, если культура уже удалена
	CropName string          `json:"cropName,omitempty"`
	FarmerID int64           `json:"farmer"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Subtotal стоимость позиции
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusUpdate запись в истории статусов; записи только добавляются
type StatusUpdate struct {
	Status    OrderStatus `json:"status"`
	Comment   string      `json:"comment"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Order представляет заказ покупателя
type Order struct {
	ID              int64           `json:"id"`
	BuyerID         int64           `json:"buyer"`
	BuyerRole       Role            `json:"buyerRole,omitempty"` // заполняется через JOIN с users
	Items           []OrderItem     `json:"orderItems"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Status          OrderStatus     `json:"status"`
	StatusUpdates   []StatusUpdate  `json:"statusUpdates"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	Reviewed        bool            `json:"reviewed"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// HasFarmer - есть ли в заказе позиция этого фермера
func (o *Order) HasFarmer(farmerID int64) bool {
	for _, item := range o.Items {
		if item.FarmerID == farmerID {
			return true
		}
	}
	return false
}

// ItemsOf возвращает позиции конкретного фермера
func (o *Order) ItemsOf(farmerID int64) []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.FarmerID == farmerID {
			items = append(items, item)
		}
	}
	return items
}

// ComputeTotal сумма price*quantity по всем позициям
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
