package repository

import (
	"context"
	"errors"

	"treasurebuy/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func balanceColumn(balanceType string) string {
	if balanceType == model.BalanceTypeCoin {
		return "coin_balance"
	}
	return "cash_balance"
}

func (r *WalletRepository) GetByUserID(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error) {
	return r.getByUserID(ctx, tx, userID, false)
}

func (r *WalletRepository) getByUserID(ctx context.Context, tx *gorm.DB, userID string, forUpdate bool) (*model.Wallet, error) {
	var wallet model.Wallet
	query := pick(r.db, tx).WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// Ensure 确保用户钱包存在
// 使用 ON CONFLICT DO NOTHING，并发调用不会产生重复钱包
func (r *WalletRepository) Ensure(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error) {
	wallet, err := r.GetByUserID(ctx, tx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	newWallet := &model.Wallet{
		ID:     uuid.NewString(),
		UserID: userID,
	}
	err = pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newWallet).Error
	if err != nil {
		return nil, err
	}

	// 并发首次创建时本次插入被忽略；可重复读下普通读仍停留在之前的快照，
	// 加锁读才能看到对方已提交的钱包
	return r.getByUserID(ctx, tx, userID, true)
}

// Increase 入账，trackRecharge 为 true 时同时累计充值总额
func (r *WalletRepository) Increase(ctx context.Context, tx *gorm.DB, userID, balanceType string, amount decimal.Decimal, trackRecharge bool) error {
	column := balanceColumn(balanceType)
	updates := map[string]interface{}{
		column: gorm.Expr(column+" + ?", amount),
	}
	if trackRecharge {
		updates["total_recharge"] = gorm.Expr("total_recharge + ?", amount)
	}

	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Deduct 出账
//
// 【关键点】余额校验和扣减是同一条 UPDATE 语句：
//
//	UPDATE wallets SET cash_balance = cash_balance - ? WHERE user_id = ? AND cash_balance >= ?
//
// 影响行数为 0 即余额不足，不存在先查后改的竞态
func (r *WalletRepository) Deduct(ctx context.Context, tx *gorm.DB, userID, balanceType string, amount decimal.Decimal, trackWithdraw bool) error {
	db := pick(r.db, tx)
	column := balanceColumn(balanceType)
	updates := map[string]interface{}{
		column: gorm.Expr(column+" - ?", amount),
	}
	if trackWithdraw {
		updates["total_withdraw"] = gorm.Expr("total_withdraw + ?", amount)
	}

	result := db.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("user_id = ? AND "+column+" >= ?", userID, amount).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByUserID(ctx, db, userID); err != nil {
			return err
		}
		return ErrBalanceNotEnough
	}
	return nil
}
