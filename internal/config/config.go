package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
// driver 支持 mysql / postgres / sqlite；postgres 与 sqlite 直接使用 dsn
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderPaid string `mapstructure:"order_paid"`
}

type BusinessConfig struct {
	DefaultExchangeRate      string `mapstructure:"default_exchange_rate"`
	ExchangeRateCacheSeconds int    `mapstructure:"exchange_rate_cache_seconds"`
	GroupPreviewSize         int    `mapstructure:"group_preview_size"`
	DefaultPageSize          int    `mapstructure:"default_page_size"`
	MaxPageSize              int    `mapstructure:"max_page_size"`
	MaxRetryCount            int    `mapstructure:"max_retry_count"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Default 返回带默认值的配置，测试与缺省字段都以此为基准
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver:       "mysql",
			Port:         3306,
			MaxOpenConns: 50,
			MaxIdleConns: 10,
			LogLevel:     "warn",
		},
		Kafka: KafkaConfig{
			Topic: KafkaTopicConfig{OrderPaid: "treasure_order_paid"},
		},
		Business: BusinessConfig{
			DefaultExchangeRate:      "10",
			ExchangeRateCacheSeconds: 60,
			GroupPreviewSize:         5,
			DefaultPageSize:          10,
			MaxPageSize:              100,
			MaxRetryCount:            5,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig 加载配置文件
// 先尝试加载 .env，再读取 yaml，环境变量优先（database.host -> DATABASE_HOST）
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return cfg, nil
}
