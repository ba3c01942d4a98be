package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeRecharge     = "RECHARGE"      // 充值
	TransactionTypeConsumption  = "CONSUMPTION"   // 消费
	TransactionTypeRefund       = "REFUND"        // 退款
	TransactionTypeReward       = "REWARD"        // 奖励
	TransactionTypeWithdrawal   = "WITHDRAWAL"    // 提现
	TransactionTypeCoinExchange = "COIN_EXCHANGE" // 金币兑换
	TransactionTypeInviteReward = "INVITE_REWARD" // 邀请奖励
)

const (
	BalanceTypeCash = "CASH"
	BalanceTypeCoin = "COIN"
)

const (
	TransactionStatusSuccess = "SUCCESS"
)

const (
	RelatedTypeOrder = "ORDER"
)

var validTransactionTypes = map[string]bool{
	TransactionTypeRecharge:     true,
	TransactionTypeConsumption:  true,
	TransactionTypeRefund:       true,
	TransactionTypeReward:       true,
	TransactionTypeWithdrawal:   true,
	TransactionTypeCoinExchange: true,
	TransactionTypeInviteReward: true,
}

func IsValidTransactionType(t string) bool {
	return validTransactionTypes[t]
}

func IsValidBalanceType(t string) bool {
	return t == BalanceTypeCash || t == BalanceTypeCoin
}

// WalletTransaction 钱包流水
//
// 【重要】流水只追加，不修改，不删除
// 唯一的例外：结算事务内创建订单后回填 related_id
type WalletTransaction struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID          string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	WalletID        string          `gorm:"type:varchar(36);index;not null" json:"wallet_id"`
	TransactionType string          `gorm:"type:varchar(20);not null" json:"transaction_type"`
	BalanceType     string          `gorm:"type:varchar(8);not null" json:"balance_type"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // 正数入账，负数出账
	BalanceBefore   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	RelatedID       string          `gorm:"type:varchar(64);index" json:"related_id"`
	RelatedType     string          `gorm:"type:varchar(20)" json:"related_type"`
	Description     string          `gorm:"type:varchar(256)" json:"description"`
	Status          string          `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
