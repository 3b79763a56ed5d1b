package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrReportNotFound      = errors.New("report not found")
	ErrIdentifierExhausted = errors.New("could not allocate a unique report identifier")
)

type Service struct {
	db          *gorm.DB
	generator   *Generator
	clock       clock.Clock
	logger      *logging.Service
	metrics     *metrics.Collector
	maxAttempts int
}

func NewService(cfg *config.ReportsConfig, db *gorm.DB, generator *Generator, clk clock.Clock, logger *logging.Service, collector *metrics.Collector) *Service {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Service{
		db:          db,
		generator:   generator,
		clock:       clock.Or(clk),
		logger:      logger.Named("reports"),
		metrics:     collector,
		maxAttempts: attempts,
	}
}

// Submit stores report under a freshly minted public identifier. The slot
// reservation and the insert share one transaction; a suffix collision
// rolls both back and the whole attempt is retried.
func (s *Service) Submit(ctx context.Context, report *Report) (*Report, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.clock.Now()
		candidate := *report
		candidate.ID = 0
		candidate.Timestamp = now
		candidate.Status = StatusPendingReview

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			id, err := s.generator.next(tx, now)
			if err != nil {
				return err
			}
			candidate.PublicID = id
			return tx.Create(&candidate).Error
		})
		if err == nil {
			s.logger.Info("report submitted",
				zap.String("public_id", candidate.PublicID),
				zap.String("category", candidate.Category))
			return &candidate, nil
		}

		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			if !errors.Is(err, ErrDailyLimitExceeded) {
				s.logger.Error("failed to submit report", zap.Error(err))
			}
			return nil, err
		}

		s.logger.Warn("report identifier collision, retrying",
			zap.String("public_id", candidate.PublicID),
			zap.Int("attempt", attempt))
		s.metrics.ReportIdentifier("collision")
	}

	return nil, ErrIdentifierExhausted
}

func (s *Service) FindByPublicID(ctx context.Context, publicID string) (*Report, error) {
	var report Report
	if err := s.db.WithContext(ctx).Where("public_id = ?", publicID).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return &report, nil
}

// CountForDay counts reports whose timestamp falls on the UTC date of day.
func (s *Service) CountForDay(ctx context.Context, day time.Time) (int64, error) {
	start, end := dayBounds(day)

	var count int64
	if err := s.db.WithContext(ctx).Model(&Report{}).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}
