package model

import "time"

const ConfigKeyExchangeRate = "exchange_rate"

// SystemConfig 系统配置（外部维护，只读）
type SystemConfig struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConfigKey   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"config_key"`
	ConfigValue string    `gorm:"type:varchar(256);not null" json:"config_value"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemConfig) TableName() string {
	return "system_configs"
}
