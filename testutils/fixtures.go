package testutils

import (
	"time"

	"github.com/tech-arch1tect/safepoint/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: "0",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Tokens: config.TokensConfig{
			VerificationExpiry: 24 * time.Hour,
			ResetExpiry:        time.Hour,
			TokenBytes:         32,
		},
		Password: config.PasswordConfig{
			MinLength:  6,
			BcryptCost: bcrypt.MinCost,
		},
		Throttle: config.ThrottleConfig{
			ResetCooldown:       5 * time.Minute,
			ResendMaxRequests:   5,
			ResendBlockDuration: 10 * time.Minute,
			ReportMaxRequests:   5,
			ReportBlockDuration: 10 * time.Minute,
			ValidateRate:        1,
			ValidateBurst:       10,
		},
		Reports: config.ReportsConfig{
			DailyLimit:   99,
			SuffixLength: 4,
			MaxAttempts:  5,
		},
		Sweeper: config.SweeperConfig{
			Enabled:  false,
			Interval: time.Hour,
		},
		Mail: config.MailConfig{
			Host:         "localhost",
			Port:         1025,
			Encryption:   "none",
			FromAddress:  "noreply@example.com",
			FromName:     "Test App",
			TemplatesDir: "",
		},
		Metrics: config.MetricsConfig{
			Enabled:   false,
			Namespace: "test",
		},
	}
}

// Epoch is the fixed starting instant for fake clocks in tests.
var Epoch = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

var TestUsers = struct {
	Verified   TestUser
	Unverified TestUser
}{
	Verified: TestUser{
		Email:    "verified@example.com",
		Password: "Password123",
	},
	Unverified: TestUser{
		Email:    "pending@example.com",
		Password: "Password123",
	},
}

type TestUser struct {
	Email    string
	Password string
}
