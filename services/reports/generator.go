package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/internal/random"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDailyLimitExceeded = errors.New("the daily report submission limit has been reached, please try again tomorrow")

const (
	dayKeyLayout   = "2006-01-02"
	datePartLayout = "060102"
)

// Generator mints public report identifiers of the form YYMMDD-NN-RRRR where
// YYMMDD is the UTC date, NN the 1-based position of the report within that
// day and RRRR a random lowercase alphanumeric suffix.
type Generator struct {
	db           *gorm.DB
	random       random.Source
	clock        clock.Clock
	logger       *logging.Service
	metrics      *metrics.Collector
	dailyLimit   int
	suffixLength int
}

func NewGenerator(cfg *config.ReportsConfig, db *gorm.DB, src random.Source, clk clock.Clock, logger *logging.Service, collector *metrics.Collector) *Generator {
	if src == nil {
		src = random.NewSecure()
	}
	return &Generator{
		db:           db,
		random:       src,
		clock:        clock.Or(clk),
		logger:       logger.Named("reports"),
		metrics:      collector,
		dailyLimit:   cfg.DailyLimit,
		suffixLength: cfg.SuffixLength,
	}
}

// Generate reserves the next slot of the current UTC day and returns its
// identifier. The slot stays consumed even if no report is ever stored under
// it, so it counts toward the daily limit. Use Service.Submit to store a
// report; it reserves the slot in the same transaction as the insert.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	var id string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = g.next(tx, g.clock.Now())
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// next reserves a slot inside tx and formats the identifier for it. The
// reservation is undone if tx rolls back.
func (g *Generator) next(tx *gorm.DB, now time.Time) (string, error) {
	slot, err := g.reserve(tx, now)
	if err != nil {
		if errors.Is(err, ErrDailyLimitExceeded) {
			g.logger.Warn("daily report limit reached",
				zap.String("day", now.Format(dayKeyLayout)),
				zap.Int("limit", g.dailyLimit))
			g.metrics.ReportIdentifier("daily_limit")
		} else {
			g.logger.Error("failed to reserve report slot", zap.Error(err))
			g.metrics.ReportIdentifier("error")
		}
		return "", err
	}

	suffix, err := g.random.String(g.suffixLength, random.LowerAlphanumeric)
	if err != nil {
		g.logger.Error("failed to generate identifier suffix", zap.Error(err))
		g.metrics.ReportIdentifier("error")
		return "", err
	}

	g.metrics.ReportIdentifier("issued")
	return Format(now, slot, suffix), nil
}

func (g *Generator) reserve(tx *gorm.DB, now time.Time) (int, error) {
	day := now.UTC().Format(dayKeyLayout)

	if err := g.seed(tx, now); err != nil {
		return 0, err
	}

	res := tx.Model(&DailyCounter{}).
		Where("day = ? AND issued < ?", day, g.dailyLimit).
		UpdateColumn("issued", gorm.Expr("issued + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reserve report slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrDailyLimitExceeded
	}

	var counter DailyCounter
	if err := tx.Where("day = ?", day).First(&counter).Error; err != nil {
		return 0, fmt.Errorf("failed to read report slot: %w", err)
	}
	return counter.Issued, nil
}

// seed creates the day's counter on first use, starting from the number of
// reports already stored for that day.
func (g *Generator) seed(tx *gorm.DB, now time.Time) error {
	day := now.UTC().Format(dayKeyLayout)

	var existing int64
	if err := tx.Model(&DailyCounter{}).Where("day = ?", day).Count(&existing).Error; err != nil {
		return fmt.Errorf("failed to read report counter: %w", err)
	}
	if existing > 0 {
		return nil
	}

	start, end := dayBounds(now)
	var stored int64
	if err := tx.Model(&Report{}).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Count(&stored).Error; err != nil {
		return fmt.Errorf("failed to count reports for %s: %w", day, err)
	}

	counter := DailyCounter{Day: day, Issued: int(stored)}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
		return fmt.Errorf("failed to create report counter: %w", err)
	}
	return nil
}

// PurgeCountersBefore deletes counters for UTC days strictly before day.
func (g *Generator) PurgeCountersBefore(ctx context.Context, day time.Time) (int64, error) {
	res := g.db.WithContext(ctx).
		Where("day < ?", day.UTC().Format(dayKeyLayout)).
		Delete(&DailyCounter{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge report counters: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		g.logger.Debug("report counters purged", zap.Int64("counters_removed", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Format renders an identifier. slot is zero padded to two digits.
func Format(now time.Time, slot int, suffix string) string {
	return fmt.Sprintf("%s-%02d-%s", now.UTC().Format(datePartLayout), slot, suffix)
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
