// Package random produces unguessable tokens and identifier suffixes from
// crypto/rand. There is deliberately no weaker fallback source.
package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
)

const LowerAlphanumeric = "0123456789abcdefghijklmnopqrstuvwxyz"

type Source interface {
	// OpaqueToken returns a URL-safe token carrying n bytes of entropy.
	OpaqueToken(n int) (string, error)
	// String returns length characters drawn uniformly from alphabet.
	String(length int, alphabet string) (string, error)
}

type Secure struct {
	reader io.Reader
}

func NewSecure() *Secure {
	return &Secure{reader: rand.Reader}
}

// NewSecureFrom reads entropy from r instead of crypto/rand.Reader.
func NewSecureFrom(r io.Reader) *Secure {
	return &Secure{reader: r}
}

func (s *Secure) OpaqueToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token must carry at least 16 bytes of entropy, got %d", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *Secure) String(length int, alphabet string) (string, error) {
	if alphabet == "" {
		return "", fmt.Errorf("alphabet must not be empty")
	}

	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(s.reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
