package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	// DataDir holds the JSON stores when the database is disabled.
	DataDir   string          `mapstructure:"data_dir"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Rates     RatesConfig     `mapstructure:"rates"`
	CryptoPay CryptoPayConfig `mapstructure:"cryptopay"`
	Platega   PlategaConfig   `mapstructure:"platega"`
	FreeKassa FreeKassaConfig `mapstructure:"freekassa"`
	TON       TONConfig       `mapstructure:"ton"`
	Fragment  FragmentConfig  `mapstructure:"fragment"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Workers   WorkerConfig    `mapstructure:"workers"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	// URL empty means the service runs on the JSON file store instead
	// of Postgres.
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	Enabled         bool   `mapstructure:"enabled"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
	Enabled    bool   `mapstructure:"enabled"`
}

type AdminConfig struct {
	// JWTSecret signs admin tokens (HS256). Empty disables admin routes.
	JWTSecret string `mapstructure:"jwt_secret"`
	// Issuer, when set, is enforced against the token's iss claim.
	Issuer string `mapstructure:"issuer"`
}

type RatesConfig struct {
	// FilePath is the JSON rate override file, written atomically.
	FilePath string `mapstructure:"file_path"`
	// FeedURL is the TON/RUB quote endpoint (CoinPaprika ticker shape).
	FeedURL      string `mapstructure:"feed_url"`
	FeedCacheTTL int    `mapstructure:"feed_cache_ttl"`
}

type CryptoPayConfig struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
	Asset    string `mapstructure:"asset"`
	Timeout  int    `mapstructure:"timeout"`
}

type PlategaConfig struct {
	MerchantID string `mapstructure:"merchant_id"`
	Secret     string `mapstructure:"secret"`
	BaseURL    string `mapstructure:"base_url"`
	ReturnURL  string `mapstructure:"return_url"`
	Timeout    int    `mapstructure:"timeout"`
}

type FreeKassaConfig struct {
	MerchantID string `mapstructure:"merchant_id"`
	Secret1    string `mapstructure:"secret1"`
	Secret2    string `mapstructure:"secret2"`
	// APIKey authorizes merchant API polling.
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

type TONConfig struct {
	// MerchantAddress receives raw on-chain payments.
	MerchantAddress string `mapstructure:"merchant_address"`
	IndexerBaseURL  string `mapstructure:"indexer_base_url"`
	IndexerAPIKey   string `mapstructure:"indexer_api_key"`
	EventScanLimit  int    `mapstructure:"event_scan_limit"`
	// WalletAPIURL points at the custody wallet service that signs and
	// sends stars/premium delivery transfers.
	WalletAPIURL  string `mapstructure:"wallet_api_url"`
	WalletAPIKey  string `mapstructure:"wallet_api_key"`
	WalletAddress string `mapstructure:"wallet_address"`
	Timeout       int    `mapstructure:"timeout"`
}

type FragmentConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Cookie  string `mapstructure:"cookie"`
	APIHash string `mapstructure:"api_hash"`
	Timeout int    `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	// NotifyChatID receives manual top-up tasks and payout requests.
	NotifyChatID int64 `mapstructure:"notify_chat_id"`
	BotUsername  string `mapstructure:"bot_username"`
	Timeout      int    `mapstructure:"timeout"`
}

// WorkerConfig contains background worker configuration
type WorkerConfig struct {
	ReconcileEnabled bool   `mapstructure:"reconcile_enabled"`
	ReconcileSpec    string `mapstructure:"reconcile_spec"`
	// ReconcileGraceSec leaves fresh orders to the webhook/poll race
	// before the worker re-checks them.
	ReconcileGraceSec int `mapstructure:"reconcile_grace_sec"`
	// ReconcileMaxAgeSec stops re-checking orders this old.
	ReconcileMaxAgeSec int `mapstructure:"reconcile_max_age_sec"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.Enabled && config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("data_dir", "data")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 120)

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "store_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)

	// Admin defaults
	viper.SetDefault("admin.issuer", "store_service")

	// Rates defaults
	viper.SetDefault("rates.file_path", "data/rates.json")
	viper.SetDefault("rates.feed_url", "https://api.coinpaprika.com/v1/tickers/toncoin-the-open-network")
	viper.SetDefault("rates.feed_cache_ttl", 60)

	// Gateway defaults
	viper.SetDefault("cryptopay.base_url", "https://pay.crypt.bot/api")
	viper.SetDefault("cryptopay.asset", "USDT")
	viper.SetDefault("cryptopay.timeout", 15)
	viper.SetDefault("platega.base_url", "https://app.platega.io")
	viper.SetDefault("platega.timeout", 15)
	viper.SetDefault("freekassa.base_url", "https://api.fk.life/v1")
	viper.SetDefault("freekassa.timeout", 15)
	viper.SetDefault("ton.indexer_base_url", "https://tonapi.io")
	viper.SetDefault("ton.event_scan_limit", 50)
	viper.SetDefault("ton.timeout", 20)
	viper.SetDefault("fragment.base_url", "https://fragment.com")
	viper.SetDefault("fragment.timeout", 20)
	viper.SetDefault("telegram.timeout", 10)

	// Worker defaults
	viper.SetDefault("workers.reconcile_enabled", true)
	viper.SetDefault("workers.reconcile_spec", "@every 1m")
	viper.SetDefault("workers.reconcile_grace_sec", 120)
	viper.SetDefault("workers.reconcile_max_age_sec", 86400)
}

func overrideFromEnv() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
		viper.Set("database.enabled", true)
	}

	// Admin
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		viper.Set("admin.jwt_secret", secret)
	}

	// Gateways
	if token := os.Getenv("CRYPTOBOT_API_TOKEN"); token != "" {
		viper.Set("cryptopay.api_token", token)
	}
	if id := os.Getenv("PLATEGA_MERCHANT_ID"); id != "" {
		viper.Set("platega.merchant_id", id)
	}
	if secret := os.Getenv("PLATEGA_SECRET"); secret != "" {
		viper.Set("platega.secret", secret)
	}
	if id := os.Getenv("FREEKASSA_MERCHANT_ID"); id != "" {
		viper.Set("freekassa.merchant_id", id)
	}
	if addr := os.Getenv("TON_MERCHANT_ADDRESS"); addr != "" {
		viper.Set("ton.merchant_address", addr)
	}
	if key := os.Getenv("TONAPI_KEY"); key != "" {
		viper.Set("ton.indexer_api_key", key)
	}
	if key := os.Getenv("TON_WALLET_API_KEY"); key != "" {
		viper.Set("ton.wallet_api_key", key)
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		viper.Set("telegram.bot_token", token)
	}
	if chat := os.Getenv("TON_NOTIFY_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			viper.Set("telegram.notify_chat_id", id)
		}
	}
}

func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Database.Enabled && config.Database.URL == "" {
		return fmt.Errorf("database enabled but no URL configured")
	}
	if config.Environment == "production" {
		if config.Admin.JWTSecret == "" {
			return fmt.Errorf("admin.jwt_secret is required in production")
		}
		if config.CryptoPay.APIToken == "" &&
			config.Platega.MerchantID == "" &&
			config.FreeKassa.MerchantID == "" &&
			config.TON.MerchantAddress == "" {
			return fmt.Errorf("at least one payment rail must be configured")
		}
	}
	return nil
}
