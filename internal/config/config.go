package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/tscv-go/internal/models"
)

// Config is the application configuration loaded from config.yaml and the
// environment.
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Data        DataConfig       `mapstructure:"data"`
	Train       TrainConfig      `mapstructure:"train"`
	Fit         models.FitConfig `mapstructure:"fit"`
	CrossVal    CrossValConfig   `mapstructure:"cross_val"`
	Backtest    BacktestSettings `mapstructure:"backtest"`
	Features    FeaturesConfig   `mapstructure:"features"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Security    SecurityConfig   `mapstructure:"security"`
}

// DataConfig describes the input dataset.
type DataConfig struct {
	TargetColumnIdx []int  `mapstructure:"target_column_idx"`
	CSVPath         string `mapstructure:"csv_path"`
	HasHeader       bool   `mapstructure:"has_header"`
}

// TrainConfig holds the windowing and training parameters.
type TrainConfig struct {
	InputLength    int     `mapstructure:"input_length"`
	OutputLength   int     `mapstructure:"output_length"`
	Horizon        int     `mapstructure:"horizon"`
	Stride         int     `mapstructure:"stride"`
	TrainTestRatio float64 `mapstructure:"train_test_ratio"`
	Shuffle        bool    `mapstructure:"shuffle"`
	Seed           int64   `mapstructure:"seed"`
	Model          string  `mapstructure:"model"`
	Metric         string  `mapstructure:"metric"`
	Ridge          float64 `mapstructure:"ridge"`
}

// CrossValConfig describes the folds. Workers is the number of folds trained
// at once; 0 sizes the pool from host load.
type CrossValConfig struct {
	FoldLength int `mapstructure:"fold_length"`
	FoldStride int `mapstructure:"fold_stride"`
	Workers    int `mapstructure:"workers"`
}

type BacktestSettings struct {
	Stride       int     `mapstructure:"stride"`
	StartRatio   float64 `mapstructure:"start_ratio"`
	Retrain      bool    `mapstructure:"retrain"`
	RetrainEvery int     `mapstructure:"retrain_every"`
}

// FeaturesConfig controls the technical-indicator covariates appended to a
// series before windowing.
type FeaturesConfig struct {
	Enabled       bool  `mapstructure:"enabled"`
	SourceChannel int   `mapstructure:"source_channel"`
	SMAPeriods    []int `mapstructure:"sma_periods"`
	EMAPeriods    []int `mapstructure:"ema_periods"`
	RSIPeriod     int   `mapstructure:"rsi_period"`
}

type ServerConfig struct {
	Port            int               `mapstructure:"port"`
	AllowedOrigins  []string          `mapstructure:"allowed_origins"`
	ShutdownTimeout string            `mapstructure:"shutdown_timeout"`
	MaxSeriesLength int               `mapstructure:"max_series_length"`
	RunTimeouts     RunTimeoutsConfig `mapstructure:"run_timeouts"`
}

// RunTimeoutsConfig is the time budget of each evaluation route. Empty
// values use the built-in default.
type RunTimeoutsConfig struct {
	Train         string `mapstructure:"train"`
	CrossValidate string `mapstructure:"cross_validate"`
	Backtest      string `mapstructure:"backtest"`
}

type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
	ConnectRetries  int    `mapstructure:"connect_retries"`
}

type RedisConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	ConnectRetries int    `mapstructure:"connect_retries"`
}

type CacheConfig struct {
	TTL string `mapstructure:"ttl"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	LogsEnabled  bool    `mapstructure:"logs_enabled"`
}

type SecurityConfig struct {
	AuthEnabled  bool   `mapstructure:"auth_enabled"`
	JWTSecret    string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry    string `mapstructure:"jwt_expiry"`
	AdminKeyHash string `mapstructure:"admin_key_hash" json:"-" yaml:"-"`
	BcryptCost   int    `mapstructure:"bcrypt_cost"`
}

// Load reads the configuration, applies defaults and environment overrides,
// and validates the result.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("security.admin_key_hash", "ADMIN_KEY_HASH"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_KEY_HASH environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the security settings and every evaluation section.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Security.AuthEnabled && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required when auth is enabled outside development")
	}
	if c.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(c.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Security.BcryptCost)
	}
	if c.Security.AdminKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Security.AdminKeyHash)); err != nil {
			return fmt.Errorf("admin key hash is not a bcrypt hash: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid server shutdown timeout: %w", err)
	}
	timeouts := map[string]string{
		"train":          c.Server.RunTimeouts.Train,
		"cross_validate": c.Server.RunTimeouts.CrossValidate,
		"backtest":       c.Server.RunTimeouts.Backtest,
	}
	for name, value := range timeouts {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("invalid server.run_timeouts.%s %q", name, value)
		}
	}
	if len(c.Data.TargetColumnIdx) == 0 {
		return errors.New("data.target_column_idx must list at least one column")
	}
	if c.Train.TrainTestRatio <= 0 || c.Train.TrainTestRatio >= 1 {
		return fmt.Errorf("train.train_test_ratio must be in (0, 1), got %g", c.Train.TrainTestRatio)
	}
	if _, err := c.WindowSpec(); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	if _, err := c.FoldConfig(); err != nil {
		return fmt.Errorf("cross_val: %w", err)
	}
	if c.CrossVal.Workers < 0 {
		return fmt.Errorf("cross_val.workers must be >= 0, got %d", c.CrossVal.Workers)
	}
	if _, err := c.BacktestConfig(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	return nil
}

// WindowSpec returns the validated windowing parameters.
func (c *Config) WindowSpec() (models.WindowSpec, error) {
	return models.NewWindowSpec(c.Train.InputLength, c.Train.OutputLength, c.Train.Horizon, c.Train.Stride)
}

// FoldConfig returns the validated cross-validation parameters.
func (c *Config) FoldConfig() (models.FoldConfig, error) {
	return models.NewFoldConfig(c.CrossVal.FoldLength, c.CrossVal.FoldStride)
}

// BacktestConfig returns the validated walk-forward parameters.
func (c *Config) BacktestConfig() (models.BacktestConfig, error) {
	return models.NewBacktestConfig(c.Backtest.Stride, c.Backtest.StartRatio, c.Backtest.Retrain, c.Backtest.RetrainEvery)
}

// CacheTTL returns the result cache TTL. Load guarantees it parses.
func (c *Config) CacheTTL() time.Duration {
	ttl, _ := time.ParseDuration(c.Cache.TTL)
	return ttl
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Data
	viper.SetDefault("data.target_column_idx", []int{0, 1})
	viper.SetDefault("data.csv_path", "data/raw/data.csv")
	viper.SetDefault("data.has_header", true)

	// Windowing and training
	viper.SetDefault("train.input_length", 10)
	viper.SetDefault("train.output_length", 7)
	viper.SetDefault("train.horizon", 4)
	viper.SetDefault("train.stride", 1)
	viper.SetDefault("train.train_test_ratio", 0.7)
	viper.SetDefault("train.shuffle", true)
	viper.SetDefault("train.seed", 42)
	viper.SetDefault("train.model", "last_value")
	viper.SetDefault("train.metric", "mae")
	viper.SetDefault("train.ridge", 0.0)

	viper.SetDefault("fit.epochs", 50)
	viper.SetDefault("fit.batch_size", 16)
	viper.SetDefault("fit.validation_split", 0.3)
	viper.SetDefault("fit.patience", 2)
	viper.SetDefault("fit.verbose", false)

	viper.SetDefault("cross_val.fold_length", 200)
	viper.SetDefault("cross_val.fold_stride", 100)
	viper.SetDefault("cross_val.workers", 1)

	viper.SetDefault("backtest.stride", 1)
	viper.SetDefault("backtest.start_ratio", 0.9)
	viper.SetDefault("backtest.retrain", true)
	viper.SetDefault("backtest.retrain_every", 1)

	viper.SetDefault("features.enabled", false)
	viper.SetDefault("features.source_channel", 0)
	viper.SetDefault("features.sma_periods", []int{5, 20})
	viper.SetDefault("features.ema_periods", []int{12})
	viper.SetDefault("features.rsi_period", 14)

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.max_series_length", 100000)
	viper.SetDefault("server.run_timeouts.train", "1m")
	viper.SetDefault("server.run_timeouts.cross_validate", "5m")
	viper.SetDefault("server.run_timeouts.backtest", "5m")

	// Database
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "tscv")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")
	viper.SetDefault("database.connect_retries", 3)

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.connect_retries", 3)

	viper.SetDefault("cache.ttl", "1h")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "otlp")
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.service_name", "tscv-go")
	viper.SetDefault("telemetry.sample_rate", 1.0)
	viper.SetDefault("telemetry.logs_enabled", false)

	// Security
	viper.SetDefault("security.auth_enabled", false)
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.admin_key_hash", "")
	viper.SetDefault("security.bcrypt_cost", 12)
}
