package model

import (
	"fmt"
	"time"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderPaid, OrderCancelled},
	OrderPaid:       {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

// ParseOrderStatus 解析外部传入的状态字符串
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	switch status {
	case OrderPending, OrderPaid, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Destination 收货地址
type Destination struct {
	ReceiverName  string `json:"receiver_name" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	Province      string `json:"province"`
	City          string `json:"city" binding:"required"`
	District      string `json:"district"`
	DetailAddress string `json:"detail_address" binding:"required"`
	PostalCode    string `json:"postal_code"`
}

// Order 订单，金额均为最小货币单位
type Order struct {
	ID                  int64       `json:"id"`
	OrderNumber         string      `json:"order_number"`
	IdempotencyKey      string      `json:"-"`
	CustomerID          int64       `json:"customer_id"`
	Destination         Destination `json:"destination"`
	Subtotal            int64       `json:"subtotal"`
	ShippingCost        int64       `json:"shipping_cost"`
	Discount            int64       `json:"discount"`
	Total               int64       `json:"total"`
	Status              OrderStatus `json:"status"`
	PaymentType         string      `json:"payment_type,omitempty"`
	PaymentReference    string      `json:"payment_reference,omitempty"`
	DeliveredAt         *time.Time  `json:"delivered_at,omitempty"`
	ReturnWindowExpires *time.Time  `json:"return_window_expires,omitempty"`
	IsReturnable        bool        `json:"is_returnable"`
	HasActiveReturns    bool        `json:"has_active_returns"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	Lines               []OrderLine `json:"lines,omitempty"`
}

// Line 按行 ID 查找订单行
func (o *Order) Line(lineID int64) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i]
		}
	}
	return nil
}

// StampDelivered 记录签收时间并计算退货窗口
func (o *Order) StampDelivered(at time.Time) {
	o.DeliveredAt = &at
	o.ReturnWindowExpires = nil
	o.IsReturnable = false
	for _, line := range o.Lines {
		expires := line.ReturnExpiry(o.DeliveredAt)
		if expires == nil {
			continue
		}
		o.IsReturnable = true
		if o.ReturnWindowExpires == nil || expires.After(*o.ReturnWindowExpires) {
			o.ReturnWindowExpires = expires
		}
	}
}

// OrderLine 订单行，创建后不可修改
type OrderLine struct {
	ID               int64     `json:"id"`
	OrderID          int64     `json:"order_id"`
	SKU              SKU       `json:"sku"`
	CategoryID       *int64    `json:"category_id,omitempty"`
	Quantity         int       `json:"quantity"`
	UnitPrice        int64     `json:"unit_price"`
	LineTotal        int64     `json:"line_total"`
	ReturnWindowDays int       `json:"return_window_days"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReturnExpiry 该行的退货截止时间，未签收或不可退时返回 nil
func (l OrderLine) ReturnExpiry(deliveredAt *time.Time) *time.Time {
	if deliveredAt == nil || l.ReturnWindowDays <= 0 {
		return nil
	}
	expires := deliveredAt.AddDate(0, 0, l.ReturnWindowDays)
	return &expires
}

// LineRequest 下单请求中的一行
type LineRequest struct {
	SKU      SKU `json:"sku" binding:"required"`
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// PlaceOrderRequest 下单参数
type PlaceOrderRequest struct {
	IdempotencyKey string        `json:"idempotency_key" binding:"required,max=64"`
	AddressID      int64         `json:"address_id"`
	Destination    *Destination  `json:"destination"`
	Lines          []LineRequest `json:"lines" binding:"required,min=1,dive"`
	ShippingCost   int64         `json:"shipping_cost" binding:"gte=0"`
	Discount       int64         `json:"discount" binding:"gte=0"`
}

// PaymentNotification 支付网关异步通知，已在网关边界完成归一化
type PaymentNotification struct {
	OrderNumber       string `json:"order_number"`
	PaymentType       string `json:"payment_type"`
	PaymentReference  string `json:"payment_reference"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	GrossAmount       string `json:"gross_amount"`
}
