package repository

import (
	"context"
	"errors"

	"treasurebuy/internal/model"

	"gorm.io/gorm"
)

type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// GetValue 读取配置项，不存在时返回 found=false
func (r *ConfigRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	var cfg model.SystemConfig
	err := r.db.WithContext(ctx).Where("config_key = ?", key).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return cfg.ConfigValue, true, nil
}

func (r *ConfigRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).
		Where(model.SystemConfig{ConfigKey: key}).
		Assign(model.SystemConfig{ConfigValue: value}).
		FirstOrCreate(&model.SystemConfig{}).Error
}
