package throttle

import (
	"time"

	"github.com/tech-arch1tect/safepoint/config"
	"golang.org/x/time/rate"
)

type Kind int

const (
	KindCooldown Kind = iota + 1
	KindCountAndBlock
	KindSteady
)

func (k Kind) String() string {
	switch k {
	case KindCooldown:
		return "cooldown"
	case KindCountAndBlock:
		return "count_and_block"
	case KindSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Policy is a tagged variant; only the fields belonging to Kind are read.
// Name scopes the per-key state, so two policies with different names never
// share a record for the same actor key.
type Policy struct {
	Name string
	Kind Kind

	Cooldown time.Duration

	MaxRequests   int
	BlockDuration time.Duration

	Rate  rate.Limit
	Burst int
}

// Cooldown allows one request per interval.
func Cooldown(interval time.Duration) Policy {
	return Policy{Kind: KindCooldown, Cooldown: interval}
}

// CountAndBlock allows max requests per window of length block, then rejects
// everything for block.
func CountAndBlock(max int, block time.Duration) Policy {
	return Policy{Kind: KindCountAndBlock, MaxRequests: max, BlockDuration: block}
}

// Steady is a token bucket refilled at perSecond with the given burst.
func Steady(perSecond float64, burst int) Policy {
	return Policy{Kind: KindSteady, Rate: rate.Limit(perSecond), Burst: burst}
}

func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

func (p Policy) scope() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind.String()
}

// Policies are the named throttles the portal gates its operations with.
type Policies struct {
	PasswordReset      Policy
	ResendVerification Policy
	ReportSubmission   Policy
	TokenValidation    Policy
}

func PoliciesFromConfig(cfg *config.ThrottleConfig) Policies {
	return Policies{
		PasswordReset:      Cooldown(cfg.ResetCooldown).Named("password_reset"),
		ResendVerification: CountAndBlock(cfg.ResendMaxRequests, cfg.ResendBlockDuration).Named("resend_verification"),
		ReportSubmission:   CountAndBlock(cfg.ReportMaxRequests, cfg.ReportBlockDuration).Named("report_submission"),
		TokenValidation:    Steady(cfg.ValidateRate, cfg.ValidateBurst).Named("token_validation"),
	}
}
