package repository

import (
	"context"
	"errors"

	"treasurebuy/internal/model"

	"gorm.io/gorm"
)

type TreasureRepository struct {
	db *gorm.DB
}

func NewTreasureRepository(db *gorm.DB) *TreasureRepository {
	return &TreasureRepository{db: db}
}

func (r *TreasureRepository) Create(ctx context.Context, tx *gorm.DB, treasure *model.Treasure) error {
	return pick(r.db, tx).WithContext(ctx).Create(treasure).Error
}

func (r *TreasureRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Treasure, error) {
	var treasure model.Treasure
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&treasure).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTreasureNotFound
		}
		return nil, err
	}
	return &treasure, nil
}

// ReserveEntries 占用库存
//
// 【关键点】防超卖依赖这一条条件更新，而不是前面的预检查：
//
//	UPDATE treasures SET seq_buy_quantity = seq_buy_quantity + ?
//	WHERE id = ? AND state = 'ACTIVE' AND seq_shelves_quantity - seq_buy_quantity >= ?
func (r *TreasureRepository) ReserveEntries(ctx context.Context, tx *gorm.DB, id string, entries int) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Treasure{}).
		Where("id = ? AND state = ? AND seq_shelves_quantity - seq_buy_quantity >= ?", id, model.TreasureStateActive, entries).
		UpdateColumn("seq_buy_quantity", gorm.Expr("seq_buy_quantity + ?", entries))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStockNotEnough
	}
	return nil
}
