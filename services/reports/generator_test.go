package reports

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/internal/random"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"github.com/tech-arch1tect/safepoint/testutils"
	"gorm.io/gorm"
)

var identifierPattern = regexp.MustCompile(`^\d{6}-\d{2}-[0-9a-z]{4}$`)

// scriptedSource returns the given suffixes in order, then repeats the last.
type scriptedSource struct {
	mu       sync.Mutex
	suffixes []string
}

func (s *scriptedSource) OpaqueToken(n int) (string, error) {
	return random.NewSecure().OpaqueToken(n)
}

func (s *scriptedSource) String(int, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.suffixes[0]
	if len(s.suffixes) > 1 {
		s.suffixes = s.suffixes[1:]
	}
	return next, nil
}

type fixture struct {
	db        *gorm.DB
	clock     *clock.Fake
	cfg       *config.ReportsConfig
	generator *Generator
	service   *Service
	metrics   *metrics.Collector
}

func setup(t *testing.T, src random.Source) *fixture {
	t.Helper()

	db := testutils.SetupTestDB(t, &Report{}, &DailyCounter{})
	clk := clock.NewFake(testutils.Epoch)
	cfg := testutils.GetTestConfig().Reports
	collector := metrics.NewCollector("test")

	gen := NewGenerator(&cfg, db, src, clk, nil, collector)
	svc := NewService(&cfg, db, gen, clk, nil, collector)

	return &fixture{db: db, clock: clk, cfg: &cfg, generator: gen, service: svc, metrics: collector}
}

func seedReports(t *testing.T, db *gorm.DB, at time.Time, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		report := &Report{
			PublicID:  fmt.Sprintf("seed-%s-%03d", at.Format("20060102"), i),
			Name:      "Seed",
			Email:     "seed@example.com",
			Status:    StatusPendingReview,
			Timestamp: at,
		}
		require.NoError(t, db.Create(report).Error)
	}
}

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("first identifier of the day", func(t *testing.T) {
		f := setup(t, nil)

		id, err := f.generator.Generate(ctx)

		require.NoError(t, err)
		assert.Regexp(t, identifierPattern, id)
		assert.Equal(t, "250314-01-", id[:10])
	})

	t.Run("sequence increments within the day", func(t *testing.T) {
		f := setup(t, &scriptedSource{suffixes: []string{"ab12"}})

		first, err := f.generator.Generate(ctx)
		require.NoError(t, err)
		second, err := f.generator.Generate(ctx)
		require.NoError(t, err)

		assert.Equal(t, "250314-01-ab12", first)
		assert.Equal(t, "250314-02-ab12", second)
	})

	t.Run("98 stored reports yields index 99", func(t *testing.T) {
		f := setup(t, nil)
		seedReports(t, f.db, testutils.Epoch.Add(-time.Hour), 98)

		id, err := f.generator.Generate(ctx)

		require.NoError(t, err)
		assert.Equal(t, "99", id[7:9])
	})

	t.Run("99 stored reports exceeds the daily limit", func(t *testing.T) {
		f := setup(t, nil)
		seedReports(t, f.db, testutils.Epoch.Add(-time.Hour), 99)

		id, err := f.generator.Generate(ctx)

		assert.Empty(t, id)
		assert.ErrorIs(t, err, ErrDailyLimitExceeded)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReportIdentifiers().WithLabelValues("daily_limit")))
	})

	t.Run("limit reached through generation", func(t *testing.T) {
		f := setup(t, nil)
		seedReports(t, f.db, testutils.Epoch, 97)

		_, err := f.generator.Generate(ctx)
		require.NoError(t, err)
		_, err = f.generator.Generate(ctx)
		require.NoError(t, err)

		_, err = f.generator.Generate(ctx)
		assert.ErrorIs(t, err, ErrDailyLimitExceeded)
	})

	t.Run("yesterday's reports do not count", func(t *testing.T) {
		f := setup(t, nil)
		seedReports(t, f.db, testutils.Epoch.Add(-24*time.Hour), 99)

		id, err := f.generator.Generate(ctx)

		require.NoError(t, err)
		assert.Equal(t, "250314-01-", id[:10])
	})

	t.Run("new UTC day starts a new sequence", func(t *testing.T) {
		f := setup(t, &scriptedSource{suffixes: []string{"zzzz"}})

		_, err := f.generator.Generate(ctx)
		require.NoError(t, err)
		f.clock.Set(time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC))

		id, err := f.generator.Generate(ctx)

		require.NoError(t, err)
		assert.Equal(t, "250315-01-zzzz", id)
	})

	t.Run("date part uses UTC", func(t *testing.T) {
		f := setup(t, &scriptedSource{suffixes: []string{"0000"}})
		tz := time.FixedZone("UTC+10", 10*60*60)
		f.clock.Set(time.Date(2025, time.March, 15, 8, 0, 0, 0, tz))

		id, err := f.generator.Generate(ctx)

		require.NoError(t, err)
		assert.Equal(t, "250314-01-0000", id)
	})

	t.Run("standalone slot is not reused by submit", func(t *testing.T) {
		f := setup(t, &scriptedSource{suffixes: []string{"aaaa", "bbbb"}})

		reserved, err := f.generator.Generate(ctx)
		require.NoError(t, err)
		assert.Equal(t, "250314-01-aaaa", reserved)

		stored, err := f.service.Submit(ctx, validReport())
		require.NoError(t, err)
		assert.Equal(t, "250314-02-bbbb", stored.PublicID)

		var count int64
		require.NoError(t, f.db.Model(&Report{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestGenerator_ConcurrentGenerationHonoursLimit(t *testing.T) {
	f := setup(t, nil)
	f.generator.dailyLimit = 10

	const workers = 25
	var mu sync.Mutex
	var ids []string
	var limited int
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.generator.Generate(context.Background())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrDailyLimitExceeded)
				limited++
				return
			}
			ids = append(ids, id)
		}()
	}
	wg.Wait()

	require.Len(t, ids, 10)
	assert.Equal(t, workers-10, limited)

	indexes := map[string]bool{}
	for _, id := range ids {
		indexes[id[7:9]] = true
	}
	assert.Len(t, indexes, 10)
}

func TestGenerator_PurgeCountersBefore(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	for _, day := range []string{"2025-03-12", "2025-03-13", "2025-03-14"} {
		require.NoError(t, f.db.Create(&DailyCounter{Day: day, Issued: 3}).Error)
	}

	removed, err := f.generator.PurgeCountersBefore(ctx, testutils.Epoch.AddDate(0, 0, -1))

	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var remaining []DailyCounter
	require.NoError(t, f.db.Order("day").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, "2025-03-13", remaining[0].Day)
}

func TestGenerator_StoreUnavailable(t *testing.T) {
	f := setup(t, nil)
	testutils.CloseDB(t, f.db)

	_, err := f.generator.Generate(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDailyLimitExceeded)
}

func TestGenerator_RandomFailure(t *testing.T) {
	f := setup(t, random.NewSecureFrom(testutils.FailingReader{}))

	_, err := f.generator.Generate(context.Background())
	require.Error(t, err)

	var counter DailyCounter
	require.NoError(t, f.db.Where("day = ?", "2025-03-14").Find(&counter).Error)
	assert.Equal(t, 0, counter.Issued)
}

func TestFormat(t *testing.T) {
	at := time.Date(2024, time.January, 5, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "240105-07-x9y8", Format(at, 7, "x9y8"))
	assert.Equal(t, "240105-99-0000", Format(at, 99, "0000"))
}
