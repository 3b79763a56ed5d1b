package tokens

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
)

var (
	ErrNotFound       = errors.New("token not found")
	ErrExpired        = errors.New("token has expired")
	ErrAlreadyUsed    = errors.New("token has already been used")
	ErrUnknownAccount = errors.New("no account matches the token subject")
)

// IsInvalid reports whether err is an ordinary negative outcome of token
// validation rather than a store or randomness fault. Callers show the same
// generic message for all of them.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrUnknownAccount)
}

type Deps struct {
	DB       *gorm.DB
	Accounts Accounts
	Hasher   CredentialHasher
	Random   random.Source
	Clock    clock.Clock
	Logger   *logging.Service
	Metrics  *metrics.Collector
}

type Service struct {
	db           *gorm.DB
	accounts     Accounts
	hasher       CredentialHasher
	random       random.Source
	clock        clock.Clock
	logger       *logging.Service
	metrics      *metrics.Collector
	tokenBytes   int
	verification Policy
	reset        Policy
}

func NewService(cfg *config.TokensConfig, deps Deps) *Service {
	src := deps.Random
	if src == nil {
		src = random.NewSecure()
	}
	clk := clock.Or(deps.Clock)

	accounts := deps.Accounts
	if accounts == nil {
		accounts = NewUsersTable(deps.DB, clk)
	}

	return &Service{
		db:           deps.DB,
		accounts:     accounts,
		hasher:       deps.Hasher,
		random:       src,
		clock:        clk,
		logger:       deps.Logger.Named("tokens"),
		metrics:      deps.Metrics,
		tokenBytes:   cfg.TokenBytes,
		verification: VerificationPolicy(cfg.VerificationExpiry),
		reset:        ResetPolicy(cfg.ResetExpiry),
	}
}

// IssueVerificationToken replaces any verification token held by subject with
// a fresh one.
func (s *Service) IssueVerificationToken(ctx context.Context, subject string) (*SecurityToken, error) {
	return s.issue(ctx, s.verification, subject)
}

// IssueResetToken creates a new reset token for email. Earlier reset tokens
// for the same address stay valid.
func (s *Service) IssueResetToken(ctx context.Context, email string) (*SecurityToken, error) {
	return s.issue(ctx, s.reset, email)
}

const issueAttempts = 5

func uniqueSubjectKey(p Purpose, subject string) string {
	return string(p) + ":" + subject
}

func (s *Service) issue(ctx context.Context, p Policy, subject string) (*SecurityToken, error) {
	value, err := s.random.OpaqueToken(s.tokenBytes)
	if err != nil {
		s.logger.Error("failed to generate token",
			zap.Error(err),
			zap.String("purpose", string(p.Purpose)))
		s.metrics.TokenOutcome(string(p.Purpose), "error")
		return nil, err
	}

	var (
		token    *SecurityToken
		replaced int64
	)
	for attempt := 1; attempt <= issueAttempts; attempt++ {
		now := s.clock.Now()
		token = &SecurityToken{
			Token:     value,
			Purpose:   p.Purpose,
			Subject:   subject,
			IssuedAt:  now,
			ExpiresAt: now.Add(p.TTL),
		}
		if p.UniquePerSubject {
			key := uniqueSubjectKey(p.Purpose, subject)
			token.UniqueSubject = &key
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if p.UniquePerSubject {
				res := tx.Where("purpose = ? AND subject = ?", p.Purpose, subject).Delete(&SecurityToken{})
				if res.Error != nil {
					return fmt.Errorf("failed to remove previous tokens: %w", res.Error)
				}
				replaced = res.RowsAffected
			}
			if err := tx.Create(token).Error; err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			return nil
		})
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}

		// a concurrent issuance for the same subject committed first
		s.logger.Warn("token issuance raced, retrying",
			zap.String("purpose", string(p.Purpose)),
			zap.String("subject", subject),
			zap.Int("attempt", attempt))
		s.metrics.TokenOutcome(string(p.Purpose), "collision")
	}
	if err != nil {
		s.logger.Error("failed to issue token",
			zap.Error(err),
			zap.String("purpose", string(p.Purpose)),
			zap.String("subject", subject))
		s.metrics.TokenOutcome(string(p.Purpose), "error")
		return nil, err
	}

	s.logger.Info("token issued",
		zap.String("purpose", string(p.Purpose)),
		zap.String("subject", subject),
		zap.Int64("replaced", replaced),
		zap.Time("expires_at", token.ExpiresAt))
	s.metrics.TokenOutcome(string(p.Purpose), "issued")
	return token, nil
}

// ValidateAndConsumeVerification redeems a verification token and returns
// the subject it verified. An expired token is left in place for the sweeper.
func (s *Service) ValidateAndConsumeVerification(ctx context.Context, value string) (string, error) {
	var subject string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.find(tx, s.verification, value)
		if err != nil {
			return err
		}

		res := tx.Where("id = ?", token.ID).Delete(&SecurityToken{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete verification token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := s.accounts.MarkVerified(tx, token.Subject); err != nil {
			return err
		}
		subject = token.Subject
		return nil
	})
	if err != nil {
		s.reject(s.verification, value, err)
		return "", err
	}

	s.logger.Info("verification token consumed", zap.String("subject", subject))
	s.metrics.TokenOutcome(string(PurposeVerification), "consumed")
	return subject, nil
}

// ValidateResetToken checks a reset token without consuming it.
func (s *Service) ValidateResetToken(ctx context.Context, value string) (*SecurityToken, error) {
	token, err := s.find(s.db.WithContext(ctx), s.reset, value)
	if err != nil {
		s.reject(s.reset, value, err)
		return nil, err
	}

	s.logger.Debug("reset token valid", zap.String("subject", token.Subject))
	return token, nil
}

// ConsumeResetToken claims the token, hashes newCredential and stores it on
// the account in one transaction. Of several concurrent calls for the same
// token at most one succeeds.
func (s *Service) ConsumeResetToken(ctx context.Context, value, newCredential string) error {
	if s.hasher == nil {
		return fmt.Errorf("credential hasher is not configured")
	}

	var email string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.find(tx, s.reset, value)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		res := tx.Model(&SecurityToken{}).
			Where("id = ? AND used = ?", token.ID, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to mark reset token used: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyUsed
		}

		hash, err := s.hasher.Hash(newCredential)
		if err != nil {
			return err
		}
		if err := s.accounts.SetCredential(tx, token.Subject, hash); err != nil {
			return err
		}
		email = token.Subject
		return nil
	})
	if err != nil {
		s.reject(s.reset, value, err)
		return err
	}

	s.logger.Info("reset token consumed", zap.String("email", email))
	s.metrics.TokenOutcome(string(PurposeReset), "consumed")
	return nil
}

// PurgeExpiredResetTokens deletes reset tokens that expired before now.
func (s *Service) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.purge(ctx, PurposeReset, now)
}

// PurgeExpiredVerificationTokens deletes verification tokens that expired
// before now.
func (s *Service) PurgeExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.purge(ctx, PurposeVerification, now)
}

func (s *Service) purge(ctx context.Context, purpose Purpose, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("purpose = ? AND expires_at < ?", purpose, now).
		Delete(&SecurityToken{})
	if res.Error != nil {
		s.logger.Error("failed to purge expired tokens",
			zap.Error(res.Error),
			zap.String("purpose", string(purpose)))
		return 0, fmt.Errorf("failed to purge expired %s tokens: %w", purpose, res.Error)
	}

	s.metrics.TokensPurged(string(purpose), res.RowsAffected)
	if res.RowsAffected > 0 {
		s.logger.Info("expired tokens purged",
			zap.String("purpose", string(purpose)),
			zap.Int64("tokens_removed", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// find looks the token up and applies the expiry and single-use checks in
// that order, so an expired token reports ErrExpired even once used.
func (s *Service) find(db *gorm.DB, p Policy, value string) (*SecurityToken, error) {
	var token SecurityToken
	err := db.Where("token = ? AND purpose = ?", value, p.Purpose).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up %s token: %w", p.Purpose, err)
	}

	if token.ExpiredAt(s.clock.Now()) {
		return nil, ErrExpired
	}
	if p.Consume == MarkUsedOnConsume && token.Used {
		return nil, ErrAlreadyUsed
	}
	return &token, nil
}

func (s *Service) reject(p Policy, value string, err error) {
	purpose := string(p.Purpose)
	hash := logging.TokenHash(value)

	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("unknown token presented", zap.String("purpose", purpose), hash)
		s.metrics.TokenOutcome(purpose, "not_found")
	case errors.Is(err, ErrExpired):
		s.logger.Warn("expired token presented", zap.String("purpose", purpose), hash)
		s.metrics.TokenOutcome(purpose, "expired")
	case errors.Is(err, ErrAlreadyUsed):
		s.logger.Warn("used token presented", zap.String("purpose", purpose), hash)
		s.metrics.TokenOutcome(purpose, "already_used")
	case errors.Is(err, ErrUnknownAccount):
		s.logger.Warn("token subject has no account", zap.String("purpose", purpose), hash)
		s.metrics.TokenOutcome(purpose, "unknown_account")
	default:
		s.logger.Error("token operation failed", zap.Error(err), zap.String("purpose", purpose))
		s.metrics.TokenOutcome(purpose, "error")
	}
}
