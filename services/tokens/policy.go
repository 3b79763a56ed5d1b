package tokens

import "time"

type ConsumeMode int

const (
	// DeleteOnConsume removes the token when it is redeemed.
	DeleteOnConsume ConsumeMode = iota + 1
	// MarkUsedOnConsume keeps the row and flips Used exactly once.
	MarkUsedOnConsume
)

// Policy captures what differs between token purposes.
type Policy struct {
	Purpose          Purpose
	TTL              time.Duration
	UniquePerSubject bool
	Consume          ConsumeMode
}

// VerificationPolicy allows one live token per subject and deletes it on use.
func VerificationPolicy(ttl time.Duration) Policy {
	return Policy{
		Purpose:          PurposeVerification,
		TTL:              ttl,
		UniquePerSubject: true,
		Consume:          DeleteOnConsume,
	}
}

// ResetPolicy lets several live tokens coexist; each is single-use.
func ResetPolicy(ttl time.Duration) Policy {
	return Policy{
		Purpose:          PurposeReset,
		TTL:              ttl,
		UniquePerSubject: false,
		Consume:          MarkUsedOnConsume,
	}
}
