package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TreasureStateActive   = "ACTIVE"
	TreasureStateInactive = "INACTIVE"
)

// Treasure 夺宝商品（目录由外部维护，这里只读写库存计数）
// 不变式：0 <= seq_buy_quantity <= seq_shelves_quantity，只能通过条件更新保证
type Treasure struct {
	ID                 string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name               string          `gorm:"type:varchar(128)" json:"name"`
	State              string          `gorm:"type:varchar(16);not null;index" json:"state"`
	UnitAmount         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"unit_amount"`
	SeqShelvesQuantity int             `gorm:"not null;default:0" json:"seq_shelves_quantity"`
	SeqBuyQuantity     int             `gorm:"not null;default:0" json:"seq_buy_quantity"`
	MaxPerBuyQuantity  *int            `json:"max_per_buy_quantity"`
	MaxUnitCoins       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"max_unit_coins"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Treasure) TableName() string {
	return "treasures"
}

// Available 剩余可售份数
func (t *Treasure) Available() int {
	return t.SeqShelvesQuantity - t.SeqBuyQuantity
}
