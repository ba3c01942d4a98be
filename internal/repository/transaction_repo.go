package repository

import (
	"context"

	"treasurebuy/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.WalletTransaction) error {
	return pick(r.db, tx).WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

// BackfillRelated 回填流水的关联业务ID，只允许在创建该业务对象的同一事务内调用
func (r *TransactionRepository) BackfillRelated(ctx context.Context, tx *gorm.DB, transactionNos []string, relatedID, relatedType string) error {
	if len(transactionNos) == 0 {
		return nil
	}
	return pick(r.db, tx).WithContext(ctx).
		Model(&model.WalletTransaction{}).
		Where("transaction_no IN ?", transactionNos).
		Updates(map[string]interface{}{
			"related_id":   relatedID,
			"related_type": relatedType,
		}).Error
}

func (r *TransactionRepository) ListByRelated(ctx context.Context, userID, relatedType, relatedID string) ([]*model.WalletTransaction, error) {
	var transactions []*model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND related_type = ? AND related_id = ?", userID, relatedType, relatedID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(Offset(page, pageSize)).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
