package portal

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/mail"
	"github.com/tech-arch1tect/safepoint/services/password"
	"github.com/tech-arch1tect/safepoint/services/reports"
	"github.com/tech-arch1tect/safepoint/services/throttle"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"github.com/tech-arch1tect/safepoint/testutils"
	"gorm.io/gorm"
)

const (
	ip      = "198.51.100.7"
	otherIP = "198.51.100.8"
)

type fixture struct {
	db        *gorm.DB
	clock     *clock.Fake
	notifier  *testutils.MockNotifier
	passwords *password.Service
	service   *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t,
		&tokens.SecurityToken{},
		&reports.Report{},
		&reports.DailyCounter{},
		&testutils.User{},
	)
	clk := clock.NewFake(testutils.Epoch)
	passwords := password.NewService(&cfg.Password, nil)

	tokenService := tokens.NewService(&cfg.Tokens, tokens.Deps{DB: db, Hasher: passwords, Clock: clk})
	generator := reports.NewGenerator(&cfg.Reports, db, nil, clk, nil, nil)
	reportService := reports.NewService(&cfg.Reports, db, generator, clk, nil, nil)
	notifier := &testutils.MockNotifier{}

	svc := NewService(cfg, Deps{
		Tokens:    tokenService,
		Reports:   reportService,
		Throttle:  throttle.New(clk, nil, nil),
		Policies:  throttle.PoliciesFromConfig(&cfg.Throttle),
		Notifier:  notifier,
		Directory: tokens.NewUsersTable(db, clk),
		Passwords: passwords,
	})

	t.Cleanup(func() { notifier.AssertExpectations(t) })

	return &fixture{db: db, clock: clk, notifier: notifier, passwords: passwords, service: svc}
}

// expectLink registers a notification expectation and returns a func that
// yields the token carried by the mailed link.
func (f *fixture) expectLink(address, template, param string) func() string {
	var link string
	f.notifier.On("Notify", mock.Anything, address, template, mock.Anything).
		Run(func(args mock.Arguments) {
			link = args.Get(3).(map[string]any)[param].(string)
		}).
		Return(nil).
		Once()

	return func() string {
		u, err := url.Parse(link)
		if err != nil {
			return ""
		}
		return u.Query().Get("token")
	}
}

func TestService_RequestPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("mails a reset link to a known address", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		token := f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")

		err := f.service.RequestPasswordReset(ctx, ip, "alice@example.com")

		require.NoError(t, err)
		assert.NotEmpty(t, token())
		require.NoError(t, f.service.ShowResetForm(ctx, ip, token()))
	})

	t.Run("unknown address looks the same and sends nothing", func(t *testing.T) {
		f := setup(t)

		err := f.service.RequestPasswordReset(ctx, ip, "nobody@example.com")

		require.NoError(t, err)
		var count int64
		require.NoError(t, f.db.Model(&tokens.SecurityToken{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("second request inside the cooldown is throttled", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")

		require.NoError(t, f.service.RequestPasswordReset(ctx, ip, "alice@example.com"))
		f.clock.Advance(time.Minute)
		err := f.service.RequestPasswordReset(ctx, ip, "alice@example.com")

		require.ErrorIs(t, err, ErrTooManyRequests)
		var throttled *ThrottledError
		require.True(t, errors.As(err, &throttled))
		assert.Equal(t, 4*time.Minute, throttled.RetryAfter)

		f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")
		require.NoError(t, f.service.RequestPasswordReset(ctx, otherIP, "alice@example.com"))

		f.clock.Advance(4*time.Minute + time.Second)
		f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")
		require.NoError(t, f.service.RequestPasswordReset(ctx, ip, "alice@example.com"))
	})

	t.Run("throttles unknown addresses too", func(t *testing.T) {
		f := setup(t)

		require.NoError(t, f.service.RequestPasswordReset(ctx, ip, "nobody@example.com"))
		err := f.service.RequestPasswordReset(ctx, ip, "someone-else@example.com")

		assert.ErrorIs(t, err, ErrTooManyRequests)
	})

	t.Run("mail failure is reported", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		f.notifier.On("Notify", mock.Anything, "alice@example.com", mail.TemplatePasswordReset, mock.Anything).
			Return(errors.New("smtp down")).Once()

		err := f.service.RequestPasswordReset(ctx, ip, "alice@example.com")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send password reset email")
	})
}

func TestService_ShowResetForm(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token is coarsened", func(t *testing.T) {
		f := setup(t)

		err := f.service.ShowResetForm(ctx, ip, "bogus")

		assert.Equal(t, ErrInvalidOrExpiredToken, err)
	})

	t.Run("expired token is coarsened", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		token := f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")
		require.NoError(t, f.service.RequestPasswordReset(ctx, ip, "alice@example.com"))

		f.clock.Advance(61 * time.Minute)
		err := f.service.ShowResetForm(ctx, ip, token())

		assert.Equal(t, ErrInvalidOrExpiredToken, err)
	})

	t.Run("validation attempts are rate limited", func(t *testing.T) {
		f := setup(t)

		for i := 0; i < 10; i++ {
			assert.ErrorIs(t, f.service.ShowResetForm(ctx, ip, "guess"), ErrInvalidOrExpiredToken)
		}
		assert.ErrorIs(t, f.service.ShowResetForm(ctx, ip, "guess"), ErrTooManyRequests)

		f.clock.Advance(time.Second)
		assert.ErrorIs(t, f.service.ShowResetForm(ctx, ip, "guess"), ErrInvalidOrExpiredToken)
	})
}

func TestService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("changes the password once", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		token := f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")
		require.NoError(t, f.service.RequestPasswordReset(ctx, ip, "alice@example.com"))
		f.notifier.On("Notify", mock.Anything, "alice@example.com", mail.TemplatePasswordResetSuccess, mock.Anything).
			Return(nil).Once()

		err := f.service.ResetPassword(ctx, ip, token(), "brand-new-secret")

		require.NoError(t, err)
		stored := testutils.LoadUser(t, f.db, "alice@example.com").Password
		assert.NoError(t, f.passwords.Verify(stored, "brand-new-secret"))

		err = f.service.ResetPassword(ctx, ip, token(), "another-secret")
		assert.Equal(t, ErrInvalidOrExpiredToken, err)
	})

	t.Run("weak password keeps the token usable", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		token := f.expectLink("alice@example.com", mail.TemplatePasswordReset, "ResetURL")
		require.NoError(t, f.service.RequestPasswordReset(ctx, ip, "alice@example.com"))

		err := f.service.ResetPassword(ctx, ip, token(), "abc")

		assert.ErrorIs(t, err, password.ErrTooShort)
		assert.NoError(t, f.service.ShowResetForm(ctx, ip, token()))
	})

	t.Run("unknown token", func(t *testing.T) {
		f := setup(t)

		err := f.service.ResetPassword(ctx, ip, "bogus", "brand-new-secret")

		assert.Equal(t, ErrInvalidOrExpiredToken, err)
	})
}

func TestService_EmailVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("verifies the account once", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		token := f.expectLink("alice@example.com", mail.TemplateEmailVerification, "VerificationURL")

		require.NoError(t, f.service.SendVerification(ctx, "alice@example.com", "alice@example.com"))
		subject, err := f.service.VerifyEmail(ctx, ip, token())

		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", subject)
		assert.NotNil(t, testutils.LoadUser(t, f.db, "alice@example.com").EmailVerifiedAt)

		_, err = f.service.VerifyEmail(ctx, ip, token())
		assert.Equal(t, ErrInvalidOrExpiredToken, err)
	})

	t.Run("resend invalidates the previous link", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		first := f.expectLink("alice@example.com", mail.TemplateEmailVerification, "VerificationURL")
		require.NoError(t, f.service.SendVerification(ctx, "alice@example.com", "alice@example.com"))
		firstToken := first()

		second := f.expectLink("alice@example.com", mail.TemplateEmailVerification, "VerificationURL")
		require.NoError(t, f.service.ResendVerification(ctx, ip, "alice@example.com"))

		_, err := f.service.VerifyEmail(ctx, ip, firstToken)
		assert.Equal(t, ErrInvalidOrExpiredToken, err)
		_, err = f.service.VerifyEmail(ctx, ip, second())
		assert.NoError(t, err)
	})

	t.Run("expired link leaves the account unverified", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		token := f.expectLink("alice@example.com", mail.TemplateEmailVerification, "VerificationURL")
		require.NoError(t, f.service.SendVerification(ctx, "alice@example.com", "alice@example.com"))

		f.clock.Advance(25 * time.Hour)
		_, err := f.service.VerifyEmail(ctx, ip, token())

		assert.Equal(t, ErrInvalidOrExpiredToken, err)
		assert.Nil(t, testutils.LoadUser(t, f.db, "alice@example.com").EmailVerifiedAt)
	})

	t.Run("resend is blocked after five requests", func(t *testing.T) {
		f := setup(t)
		testutils.CreateUser(t, f.db, "alice@example.com")
		f.notifier.On("Notify", mock.Anything, "alice@example.com", mail.TemplateEmailVerification, mock.Anything).
			Return(nil).Times(5)

		for i := 0; i < 5; i++ {
			require.NoError(t, f.service.ResendVerification(ctx, ip, "alice@example.com"))
		}
		err := f.service.ResendVerification(ctx, ip, "alice@example.com")
		assert.ErrorIs(t, err, ErrTooManyRequests)

		f.clock.Advance(5 * time.Minute)
		assert.ErrorIs(t, f.service.ResendVerification(ctx, ip, "alice@example.com"), ErrTooManyRequests)
	})

	t.Run("resend for unknown address sends nothing", func(t *testing.T) {
		f := setup(t)

		assert.NoError(t, f.service.ResendVerification(ctx, ip, "nobody@example.com"))
	})

	t.Run("store failure is not coarsened", func(t *testing.T) {
		f := setup(t)
		testutils.CloseDB(t, f.db)

		_, err := f.service.VerifyEmail(ctx, ip, "anything")

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidOrExpiredToken)
	})
}

func TestService_SubmitReport(t *testing.T) {
	ctx := context.Background()
	newReport := func() *reports.Report {
		return &reports.Report{Name: "Sam", Email: "sam@example.com", Category: "other", Description: "details"}
	}

	t.Run("stores report with identifier", func(t *testing.T) {
		f := setup(t)

		stored, err := f.service.SubmitReport(ctx, ip, newReport())

		require.NoError(t, err)
		assert.Regexp(t, `^250314-01-[0-9a-z]{4}$`, stored.PublicID)
	})

	t.Run("sixth submission from one address is blocked", func(t *testing.T) {
		f := setup(t)

		for i := 0; i < 5; i++ {
			_, err := f.service.SubmitReport(ctx, ip, newReport())
			require.NoError(t, err)
		}
		_, err := f.service.SubmitReport(ctx, ip, newReport())
		assert.ErrorIs(t, err, ErrTooManyRequests)

		_, err = f.service.SubmitReport(ctx, otherIP, newReport())
		assert.NoError(t, err)
	})

	t.Run("daily limit is reported verbatim", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.db.Create(&reports.DailyCounter{Day: "2025-03-14", Issued: 99}).Error)

		_, err := f.service.SubmitReport(ctx, ip, newReport())

		assert.ErrorIs(t, err, reports.ErrDailyLimitExceeded)
	})
}
