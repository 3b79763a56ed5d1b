package tokens

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/safepoint/internal/clock"
	"gorm.io/gorm"
)

// Accounts applies token side effects to the account store. Both methods run
// inside the transaction that redeems the token, so a failure here rolls the
// redemption back.
type Accounts interface {
	MarkVerified(tx *gorm.DB, subject string) error
	SetCredential(tx *gorm.DB, email, credentialHash string) error
}

// CredentialHasher turns a plaintext credential into its stored form.
type CredentialHasher interface {
	Hash(credential string) (string, error)
}

// UsersTable is the default Accounts implementation against a plain users
// table with email, password and email_verified_at columns. Verification
// subjects are matched against SubjectColumn.
type UsersTable struct {
	Table         string
	SubjectColumn string
	db            *gorm.DB
	clock         clock.Clock
}

func NewUsersTable(db *gorm.DB, clk clock.Clock) *UsersTable {
	return &UsersTable{
		Table:         "users",
		SubjectColumn: "email",
		db:            db,
		clock:         clock.Or(clk),
	}
}

func (u *UsersTable) MarkVerified(tx *gorm.DB, subject string) error {
	res := tx.Table(u.Table).
		Where(u.SubjectColumn+" = ?", subject).
		Update("email_verified_at", u.clock.Now())
	if res.Error != nil {
		return fmt.Errorf("failed to mark account verified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

func (u *UsersTable) SetCredential(tx *gorm.DB, email, credentialHash string) error {
	res := tx.Table(u.Table).
		Where("email = ?", email).
		Update("password", credentialHash)
	if res.Error != nil {
		return fmt.Errorf("failed to update credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

// EmailExists reports whether an account is registered under email.
func (u *UsersTable) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := u.db.WithContext(ctx).Table(u.Table).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up account: %w", err)
	}
	return count > 0, nil
}
