package tokens

import (
	"time"
)

type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

// SecurityToken is a single-use, time-bounded secret bound to a subject. For
// verification tokens the subject is the account being verified; for reset
// tokens it is the email address the reset was requested for.
//
// UniqueSubject is set to "purpose:subject" for purposes that allow one live
// token per subject, so the store rejects a second row. It is NULL otherwise.
type SecurityToken struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Token     string     `json:"-" gorm:"uniqueIndex;size:128;not null"`
	Purpose   Purpose    `json:"purpose" gorm:"index:idx_security_tokens_purpose_subject;size:32;not null"`
	Subject   string     `json:"subject" gorm:"index:idx_security_tokens_purpose_subject;size:255;not null"`
	IssuedAt  time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	Used      bool       `json:"used" gorm:"default:false;not null"`
	UsedAt    *time.Time `json:"used_at,omitempty"`

	UniqueSubject *string `json:"-" gorm:"uniqueIndex;size:300"`
}

func (SecurityToken) TableName() string {
	return "security_tokens"
}

// ExpiredAt reports whether the token is past its expiry at now.
func (t *SecurityToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
