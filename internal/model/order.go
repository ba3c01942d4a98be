package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPaid      = "PAID"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

const PayStatusPaid = "PAID"

// RefundStatusNone 退款流程由外部系统维护，这里只写入初始状态
const RefundStatusNone = "NONE"

const (
	PaymentMethodCash = "CASH"
	PaymentMethodCoin = "COIN"
)

// IsValidOrderStatus 订单列表的状态过滤值
func IsValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPaid, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

func IsValidPaymentMethod(m string) bool {
	return m == PaymentMethodCash || m == PaymentMethodCoin
}

// Order 夺宝订单
// 金额字段创建后不可变；状态三元组可由后台/退款流程修改
type Order struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID         string          `gorm:"type:varchar(64);index:idx_order_user_treasure;not null" json:"user_id"`
	TreasureID     string          `gorm:"type:varchar(36);index:idx_order_user_treasure;not null" json:"treasure_id"`
	OriginalAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"original_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"discount_amount"`
	CouponAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"coupon_amount"`
	CoinAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"coin_amount"`
	CoinsUsed      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"coins_used"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"final_amount"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	BuyQuantity    int             `gorm:"not null" json:"buy_quantity"`
	PaymentMethod  string          `gorm:"type:varchar(8);not null" json:"payment_method"`
	CouponID       *string         `gorm:"type:varchar(36)" json:"coupon_id"`
	AddressID      *string         `gorm:"type:varchar(36)" json:"address_id"`
	OrderStatus    string          `gorm:"type:varchar(20);index;not null" json:"order_status"`
	PayStatus      string          `gorm:"type:varchar(20);not null" json:"pay_status"`
	RefundStatus   string          `gorm:"type:varchar(20);not null" json:"refund_status"`
	GroupID        *string         `gorm:"type:varchar(36);index" json:"group_id"`
	IsGroupOwner   bool            `gorm:"not null;default:false" json:"is_group_owner"`
	PaidAt         *time.Time      `json:"paid_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
