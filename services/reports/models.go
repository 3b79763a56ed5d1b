package reports

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	validation "github.com/jellydator/validation"
)

type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusUnderReview   Status = "under_review"
	StatusResolved      Status = "resolved"
	StatusRejected      Status = "rejected"
)

var ErrInvalidReport = errors.New("invalid report")

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type Report struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	PublicID     string    `json:"public_id" gorm:"uniqueIndex;size:32;not null"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	Email        string    `json:"email" gorm:"size:255;not null"`
	Category     string    `json:"category" gorm:"size:64"`
	Description  string    `json:"description" gorm:"type:text"`
	ExternalLink string    `json:"external_link,omitempty" gorm:"size:2048"`
	Status       Status    `json:"status" gorm:"size:32;not null;default:pending_review"`
	Timestamp    time.Time `json:"timestamp" gorm:"index;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Report) TableName() string {
	return "reports"
}

// Validate checks the fields a reporter fills in.
func (r *Report) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required.Error("name is required"),
			validation.Length(1, 255),
		),
		validation.Field(&r.Email,
			validation.Required.Error("email is required"),
			validation.Match(emailPattern).Error("email should be valid"),
			validation.Length(5, 255),
		),
		validation.Field(&r.Category, validation.Length(0, 64)),
		validation.Field(&r.ExternalLink, validation.Length(0, 2048)),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidReport, err.Error())
	}
	return nil
}

// DailyCounter holds the number of identifier slots handed out for one UTC
// day. Slots are reserved by a conditional increment on this row.
type DailyCounter struct {
	Day    string `gorm:"primaryKey;size:10"`
	Issued int    `gorm:"not null;default:0"`
}

func (DailyCounter) TableName() string {
	return "report_daily_counters"
}
