// Package portal implements the public account and reporting flows. Every
// operation consults the throttle before touching tokens or reports, and
// token failures are reported to callers without saying why.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/mail"
	"github.com/tech-arch1tect/safepoint/services/reports"
	"github.com/tech-arch1tect/safepoint/services/throttle"
	"github.com/tech-arch1tect/safepoint/services/tokens"
	"go.uber.org/zap"
)

var (
	ErrTooManyRequests       = errors.New("too many requests, please try again later")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)

// ThrottledError is returned when a throttle rejects the caller. It matches
// ErrTooManyRequests with errors.Is.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return ErrTooManyRequests.Error()
}

func (e *ThrottledError) Unwrap() error {
	return ErrTooManyRequests
}

type Notifier interface {
	Notify(ctx context.Context, address, templateName string, params map[string]any) error
}

type Directory interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

type PasswordPolicy interface {
	Validate(password string) error
}

type Deps struct {
	Tokens    *tokens.Service
	Reports   *reports.Service
	Throttle  *throttle.Throttle
	Policies  throttle.Policies
	Notifier  Notifier
	Directory Directory
	Passwords PasswordPolicy
	Logger    *logging.Service
}

type Service struct {
	appURL             string
	verificationExpiry time.Duration
	resetExpiry        time.Duration

	tokens    *tokens.Service
	reports   *reports.Service
	throttle  *throttle.Throttle
	policies  throttle.Policies
	notifier  Notifier
	directory Directory
	passwords PasswordPolicy
	logger    *logging.Service
}

func NewService(cfg *config.Config, deps Deps) *Service {
	return &Service{
		appURL:             strings.TrimRight(cfg.App.URL, "/"),
		verificationExpiry: cfg.Tokens.VerificationExpiry,
		resetExpiry:        cfg.Tokens.ResetExpiry,
		tokens:             deps.Tokens,
		reports:            deps.Reports,
		throttle:           deps.Throttle,
		policies:           deps.Policies,
		notifier:           deps.Notifier,
		directory:          deps.Directory,
		passwords:          deps.Passwords,
		logger:             deps.Logger.Named("portal"),
	}
}

func (s *Service) gate(key string, p throttle.Policy) error {
	res := s.throttle.Check(key, p)
	if res.Allowed() {
		return nil
	}
	return &ThrottledError{RetryAfter: res.RetryAfter}
}

// coarsen hides the reason a token was rejected.
func coarsen(err error) error {
	if tokens.IsInvalid(err) {
		return ErrInvalidOrExpiredToken
	}
	return err
}

// RequestPasswordReset mails a reset link when email belongs to an account.
// The result is the same whether or not it does.
func (s *Service) RequestPasswordReset(ctx context.Context, ip, email string) error {
	if err := s.gate(ip, s.policies.PasswordReset); err != nil {
		return err
	}

	exists, err := s.directory.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Info("password reset requested for unknown address")
		return nil
	}

	token, err := s.tokens.IssueResetToken(ctx, email)
	if err != nil {
		return err
	}

	err = s.notifier.Notify(ctx, email, mail.TemplatePasswordReset, map[string]any{
		"Email":          email,
		"ResetURL":       s.link("/password/reset", token.Token),
		"ExpiryDuration": s.resetExpiry.String(),
	})
	if err != nil {
		s.logger.Error("failed to send password reset email", zap.Error(err), zap.String("email", email))
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	s.logger.Info("password reset email sent", zap.String("email", email))
	return nil
}

// ShowResetForm checks a reset link before the new-password form is shown.
func (s *Service) ShowResetForm(ctx context.Context, ip, token string) error {
	if err := s.gate(ip, s.policies.TokenValidation); err != nil {
		return err
	}

	_, err := s.tokens.ValidateResetToken(ctx, token)
	return coarsen(err)
}

func (s *Service) ResetPassword(ctx context.Context, ip, token, newPassword string) error {
	if err := s.gate(ip, s.policies.TokenValidation); err != nil {
		return err
	}

	if s.passwords != nil {
		if err := s.passwords.Validate(newPassword); err != nil {
			return err
		}
	}

	resetToken, err := s.tokens.ValidateResetToken(ctx, token)
	if err != nil {
		return coarsen(err)
	}

	if err := s.tokens.ConsumeResetToken(ctx, token, newPassword); err != nil {
		return coarsen(err)
	}

	err = s.notifier.Notify(ctx, resetToken.Subject, mail.TemplatePasswordResetSuccess, map[string]any{
		"Email": resetToken.Subject,
	})
	if err != nil {
		s.logger.Warn("failed to send password reset confirmation",
			zap.Error(err),
			zap.String("email", resetToken.Subject))
		return fmt.Errorf("password was reset but failed to send confirmation email: %w", err)
	}
	return nil
}

// SendVerification issues a verification token for subject and mails the
// link to email. It is called on signup and is not throttled.
func (s *Service) SendVerification(ctx context.Context, subject, email string) error {
	token, err := s.tokens.IssueVerificationToken(ctx, subject)
	if err != nil {
		return err
	}

	err = s.notifier.Notify(ctx, email, mail.TemplateEmailVerification, map[string]any{
		"Email":           email,
		"VerificationURL": s.link("/verify-email", token.Token),
		"ExpiryDuration":  s.verificationExpiry.String(),
	})
	if err != nil {
		s.logger.Error("failed to send verification email", zap.Error(err), zap.String("email", email))
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("verification email sent", zap.String("email", email))
	return nil
}

// ResendVerification replaces the account's verification link. Unknown
// addresses are ignored silently.
func (s *Service) ResendVerification(ctx context.Context, ip, email string) error {
	if err := s.gate(ip, s.policies.ResendVerification); err != nil {
		return err
	}

	exists, err := s.directory.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Info("verification resend requested for unknown address")
		return nil
	}

	return s.SendVerification(ctx, email, email)
}

// VerifyEmail redeems a verification link and returns the verified subject.
func (s *Service) VerifyEmail(ctx context.Context, ip, token string) (string, error) {
	if err := s.gate(ip, s.policies.TokenValidation); err != nil {
		return "", err
	}

	subject, err := s.tokens.ValidateAndConsumeVerification(ctx, token)
	if err != nil {
		return "", coarsen(err)
	}
	return subject, nil
}

// SubmitReport stores a report from ip. The daily limit error is returned
// as is.
func (s *Service) SubmitReport(ctx context.Context, ip string, report *reports.Report) (*reports.Report, error) {
	if err := s.gate(ip, s.policies.ReportSubmission); err != nil {
		return nil, err
	}

	return s.reports.Submit(ctx, report)
}

func (s *Service) link(path, token string) string {
	return s.appURL + path + "?token=" + url.QueryEscape(token)
}
