package password

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/safepoint/config"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTooShort           = errors.New("password is too short")
	ErrTooLong            = errors.New("password is too long")
	ErrHashingFailed      = errors.New("failed to hash password")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// bcrypt ignores everything past 72 bytes.
const maxLength = 72

type Service struct {
	minLength int
	cost      int
	logger    *logging.Service
}

func NewService(cfg *config.PasswordConfig, logger *logging.Service) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		minLength: cfg.MinLength,
		cost:      cost,
		logger:    logger,
	}
}

func (s *Service) Validate(password string) error {
	if len(password) < s.minLength {
		if s.logger != nil {
			s.logger.Warn("password validation failed: insufficient length",
				zap.Int("length", len(password)),
				zap.Int("min_required", s.minLength))
		}
		return fmt.Errorf("%w: must be at least %d characters", ErrTooShort, s.minLength)
	}
	if len(password) > maxLength {
		return fmt.Errorf("%w: must be at most %d bytes", ErrTooLong, maxLength)
	}
	return nil
}

// Hash validates password and returns its bcrypt hash.
func (s *Service) Hash(password string) (string, error) {
	if err := s.Validate(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrHashingFailed
	}
	return string(hash), nil
}

func (s *Service) Verify(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if s.logger != nil {
			s.logger.Debug("password verification failed")
		}
		return ErrInvalidCredentials
	}
	return nil
}

// IsPolicyViolation reports whether err came from Validate.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrTooShort) || errors.Is(err, ErrTooLong)
}
