package testutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// each connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)

	if len(models) > 0 {
		err = db.AutoMigrate(models...)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func CleanupTestDB(t *testing.T, db *gorm.DB, tables ...string) {
	if len(tables) > 0 {
		for _, table := range tables {
			err := db.Exec("DELETE FROM " + table).Error
			require.NoError(t, err)
		}
	}
}

// User mirrors the minimal users table the default account store writes to.
type User struct {
	ID              uint   `gorm:"primaryKey"`
	Email           string `gorm:"uniqueIndex;not null"`
	Password        string
	EmailVerifiedAt *time.Time
}

func (User) TableName() string {
	return "users"
}

// CreateUser inserts an account row and returns it.
func CreateUser(t *testing.T, db *gorm.DB, email string) *User {
	t.Helper()

	user := &User{Email: email, Password: "initial-hash"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// LoadUser re-reads the account row for email.
func LoadUser(t *testing.T, db *gorm.DB, email string) *User {
	t.Helper()

	var user User
	require.NoError(t, db.Where("email = ?", email).First(&user).Error)
	return &user
}

// CloseDB closes the underlying pool so later queries fail as if the store
// were unreachable.
func CloseDB(t *testing.T, db *gorm.DB) {
	t.Helper()

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
