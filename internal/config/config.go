package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
		// PublicBaseURL is where gateways reach this service (callback and return URLs).
		PublicBaseURL string `mapstructure:"public_base_url"`
		// AppReturnURL is the app deep link the browser is sent to after a gateway return.
		AppReturnURL string `mapstructure:"app_return_url"`
	} `mapstructure:"server"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Redis struct {
		Addr      string        `mapstructure:"addr"`
		Password  string        `mapstructure:"password"`
		DB        int           `mapstructure:"db"`
		StatusTTL time.Duration `mapstructure:"status_ttl"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret          string `mapstructure:"secret"`
		ExpirationHours int    `mapstructure:"expiration_hours"`
		Issuer          string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Crypto struct {
		CurrentKey  string `mapstructure:"current_key"`
		PreviousKey string `mapstructure:"previous_key"`
	} `mapstructure:"crypto"`

	VNPay struct {
		Enabled       bool   `mapstructure:"enabled"`
		TmnCode       string `mapstructure:"tmn_code"`
		HashSecret    string `mapstructure:"hash_secret"`
		PayURL        string `mapstructure:"pay_url"`
		Locale        string `mapstructure:"locale"`
		ExpireMinutes int    `mapstructure:"expire_minutes"`
	} `mapstructure:"vnpay"`

	MoMo struct {
		Enabled     bool          `mapstructure:"enabled"`
		PartnerCode string        `mapstructure:"partner_code"`
		AccessKey   string        `mapstructure:"access_key"`
		SecretKey   string        `mapstructure:"secret_key"`
		Endpoint    string        `mapstructure:"endpoint"`
		RequestType string        `mapstructure:"request_type"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"momo"`

	Archive struct {
		Bucket    string `mapstructure:"bucket"`
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"archive"`
}

// Load reads configs/config.yaml (optional), .env (optional) and the environment.
// Environment variables win: VNPAY_HASH_SECRET overrides vnpay.hash_secret.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DB_* variables are what the deployment manifests set
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.app_return_url", "rentalapp://payment-result")

	v.SetDefault("log.level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "rental_db")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.status_ttl", 5*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "rental-backend")

	v.SetDefault("crypto.current_key", "")
	v.SetDefault("crypto.previous_key", "")

	v.SetDefault("vnpay.enabled", true)
	v.SetDefault("vnpay.tmn_code", "")
	v.SetDefault("vnpay.hash_secret", "")
	v.SetDefault("vnpay.pay_url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("vnpay.locale", "vn")
	v.SetDefault("vnpay.expire_minutes", 15)

	v.SetDefault("momo.enabled", true)
	v.SetDefault("momo.partner_code", "")
	v.SetDefault("momo.access_key", "")
	v.SetDefault("momo.secret_key", "")
	v.SetDefault("momo.endpoint", "https://test-payment.momo.vn/v2/gateway/api/create")
	v.SetDefault("momo.request_type", "captureWallet")
	v.SetDefault("momo.timeout", 10*time.Second)

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "auto")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
}

// Validate reports the first missing secret the service cannot start without.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret (JWT_SECRET) is required")
	}
	if c.Crypto.CurrentKey == "" {
		return errors.New("crypto.current_key (CRYPTO_CURRENT_KEY) is required")
	}
	if c.VNPay.Enabled && (c.VNPay.TmnCode == "" || c.VNPay.HashSecret == "") {
		return errors.New("vnpay.tmn_code and vnpay.hash_secret are required when vnpay is enabled")
	}
	if c.MoMo.Enabled && (c.MoMo.PartnerCode == "" || c.MoMo.AccessKey == "" || c.MoMo.SecretKey == "") {
		return errors.New("momo.partner_code, momo.access_key and momo.secret_key are required when momo is enabled")
	}
	return nil
}

// DatabaseURL builds the pgx connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name, c.Database.SSLMode)
}

// ArchiveEnabled reports whether inbound gateway messages are copied to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != ""
}
