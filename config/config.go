package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Log      LogConfig      `envPrefix:"LOG_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Tokens   TokensConfig   `envPrefix:"TOKENS_"`
	Password PasswordConfig `envPrefix:"PASSWORD_"`
	Throttle ThrottleConfig `envPrefix:"THROTTLE_"`
	Reports  ReportsConfig  `envPrefix:"REPORTS_"`
	Sweeper  SweeperConfig  `envPrefix:"SWEEPER_"`
	Mail     MailConfig     `envPrefix:"MAIL_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"SafePoint"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
	// TrustedProxies lists addresses or CIDRs allowed to set X-Forwarded-For.
	// Throttle keys come from the resolved client address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"safepoint.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type TokensConfig struct {
	VerificationExpiry time.Duration `env:"VERIFICATION_EXPIRY" envDefault:"24h"`
	ResetExpiry        time.Duration `env:"RESET_EXPIRY" envDefault:"1h"`
	// TokenBytes is the amount of random data behind every token.
	TokenBytes int `env:"TOKEN_BYTES" envDefault:"32"`
}

type PasswordConfig struct {
	MinLength  int `env:"MIN_LENGTH" envDefault:"6"`
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

type ThrottleConfig struct {
	ResetCooldown       time.Duration `env:"RESET_COOLDOWN" envDefault:"5m"`
	ResendMaxRequests   int           `env:"RESEND_MAX_REQUESTS" envDefault:"5"`
	ResendBlockDuration time.Duration `env:"RESEND_BLOCK_DURATION" envDefault:"10m"`
	ReportMaxRequests   int           `env:"REPORT_MAX_REQUESTS" envDefault:"5"`
	ReportBlockDuration time.Duration `env:"REPORT_BLOCK_DURATION" envDefault:"10m"`
	ValidateRate        float64       `env:"VALIDATE_RATE" envDefault:"1"`
	ValidateBurst       int           `env:"VALIDATE_BURST" envDefault:"10"`
	EvictionInterval    time.Duration `env:"EVICTION_INTERVAL" envDefault:"10m"`
	EvictionIdle        time.Duration `env:"EVICTION_IDLE" envDefault:"1h"`
}

type ReportsConfig struct {
	DailyLimit   int `env:"DAILY_LIMIT" envDefault:"99"`
	SuffixLength int `env:"SUFFIX_LENGTH" envDefault:"4"`
	MaxAttempts  int `env:"MAX_ATTEMPTS" envDefault:"5"`
}

type SweeperConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"tls"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME" envDefault:"SafePoint"`
	TemplatesDir string `env:"TEMPLATES_DIR" envDefault:"templates/mail"`
}

type MetricsConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	Namespace string `env:"NAMESPACE" envDefault:"safepoint"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validateTokensConfig(&c.Tokens); err != nil {
		return err
	}
	if err := validateReportsConfig(&c.Reports); err != nil {
		return err
	}
	return validateThrottleConfig(&c.Throttle)
}

func validateTokensConfig(cfg *TokensConfig) error {
	if cfg.TokenBytes < 16 {
		return fmt.Errorf("token length must be at least 16 bytes, got %d", cfg.TokenBytes)
	}
	if cfg.VerificationExpiry <= 0 || cfg.ResetExpiry <= 0 {
		return fmt.Errorf("token expiry must be positive")
	}
	return nil
}

func validateReportsConfig(cfg *ReportsConfig) error {
	// the sequence part of an identifier is two digits wide
	if cfg.DailyLimit < 1 || cfg.DailyLimit > 99 {
		return fmt.Errorf("daily report limit must be between 1 and 99, got %d", cfg.DailyLimit)
	}
	if cfg.SuffixLength < 1 {
		return fmt.Errorf("identifier suffix length must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("report max attempts must be positive")
	}
	return nil
}

func validateThrottleConfig(cfg *ThrottleConfig) error {
	if cfg.ResendMaxRequests < 1 || cfg.ReportMaxRequests < 1 {
		return fmt.Errorf("throttle max requests must be positive")
	}
	if cfg.ResetCooldown < 0 || cfg.ResendBlockDuration <= 0 || cfg.ReportBlockDuration <= 0 {
		return fmt.Errorf("throttle durations must be positive")
	}
	if cfg.ValidateRate <= 0 || cfg.ValidateBurst < 1 {
		return fmt.Errorf("token validation rate and burst must be positive")
	}
	return nil
}
