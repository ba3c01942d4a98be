package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale 金额列统一为 decimal(20,2)
const MoneyScale = 2

// Wallet 用户钱包
// 余额只允许通过账本原语修改，所有扣减都带 balance >= amount 条件
type Wallet struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	CashBalance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cash_balance"`
	CoinBalance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"coin_balance"`
	FrozenBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"frozen_balance"`
	TotalRecharge decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_recharge"`
	TotalWithdraw decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"total_withdraw"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// BalanceOf 返回指定余额类型的当前值
func (w *Wallet) BalanceOf(balanceType string) decimal.Decimal {
	if balanceType == BalanceTypeCoin {
		return w.CoinBalance
	}
	return w.CashBalance
}
