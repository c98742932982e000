package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
	"github.com/nemonet1337/zaiVariantStock/pkg/variant/storage"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Stock    StockConfig    `yaml:"stock"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
// データベース設定を保持
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            int           `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	DBName          string        `yaml:"dbname" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port" env:"API_PORT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env:"API_IDLE_TIMEOUT"`
	EnableCORS    bool          `yaml:"enable_cors" env:"API_ENABLE_CORS"`
	EnableMetrics bool          `yaml:"enable_metrics" env:"API_ENABLE_METRICS"`
	MaxUploadSize int64         `yaml:"max_upload_size" env:"API_MAX_UPLOAD_SIZE"`
}

// StockConfig holds stock engine configuration
// 在庫エンジン固有の設定を保持
type StockConfig struct {
	LowStockThreshold     int64  `yaml:"low_stock_threshold" env:"STOCK_LOW_STOCK_THRESHOLD"`
	DefaultIdentifierKind string `yaml:"default_identifier_kind" env:"STOCK_DEFAULT_IDENTIFIER_KIND"`
	HistoryLimit          int    `yaml:"history_limit" env:"STOCK_HISTORY_LIMIT"`
	MaxBatchSize          int    `yaml:"max_batch_size" env:"STOCK_MAX_BATCH_SIZE"`
	MaxTrackedQuantity    int64  `yaml:"max_tracked_quantity" env:"STOCK_MAX_TRACKED_QUANTITY"`
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // json, console
}

// Default returns the built-in configuration
// 既定の設定を返す
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "variant_stock",
			Password:        "password",
			DBName:          "variant_stock_db",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		API: APIConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			EnableCORS:    true,
			EnableMetrics: true,
			MaxUploadSize: 10 << 20,
		},
		Stock: StockConfig{
			LowStockThreshold:     variant.DefaultLowStockThreshold,
			DefaultIdentifierKind: string(variant.IdentifierKindSerial),
			HistoryLimit:          100,
			MaxBatchSize:          500,
			MaxTrackedQuantity:    variant.DefaultMaxTrackedQuantity,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from CONFIG_FILE, .env and environment variables
// 設定ファイル・.env・環境変数の順に設定を読み込み
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile loads configuration using path as the YAML file; an empty path skips the file
// 指定したYAMLファイルから設定を読み込み（空の場合はスキップ）
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
		}
	}

	// .envは存在しなくてもよい
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗しました: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の解析に失敗しました: %w", err)
	}

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	// データベース設定チェック
	if c.Database.Host == "" {
		return fmt.Errorf("データベースホストが指定されていません")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("無効なデータベースポート: %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("データベースユーザーが指定されていません")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("データベース名が指定されていません")
	}

	// API設定チェック
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("無効なAPIポート: %d", c.API.Port)
	}

	// 在庫設定チェック
	if c.Stock.LowStockThreshold < 0 {
		return fmt.Errorf("低在庫閾値は0以上である必要があります")
	}
	if err := variant.ValidateIdentifierKind(variant.IdentifierKind(c.Stock.DefaultIdentifierKind)); err != nil {
		return fmt.Errorf("無効な識別子種別: %s", c.Stock.DefaultIdentifierKind)
	}
	if c.Stock.HistoryLimit <= 0 {
		return fmt.Errorf("履歴取得件数は1以上である必要があります")
	}
	if c.Stock.MaxTrackedQuantity <= 0 {
		return fmt.Errorf("個体追跡数量の上限は1以上である必要があります")
	}

	// ログ設定チェック
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("無効なログレベル: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("無効なログフォーマット: %s", c.Logging.Format)
	}

	return nil
}

// DSN generates PostgreSQL Data Source Name
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// Pool returns the connection pool settings for the storage layer
// ストレージ層向けの接続プール設定
func (c *Config) Pool() storage.PoolConfig {
	return storage.PoolConfig{
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// Engine returns the stock manager configuration
// 在庫マネージャー向けの設定
func (c *Config) Engine() *variant.Config {
	return &variant.Config{
		LowStockThreshold:     c.Stock.LowStockThreshold,
		DefaultIdentifierKind: variant.IdentifierKind(c.Stock.DefaultIdentifierKind),
		HistoryLimit:          c.Stock.HistoryLimit,
		MaxBatchSize:          c.Stock.MaxBatchSize,
		MaxTrackedQuantity:    c.Stock.MaxTrackedQuantity,
	}
}
