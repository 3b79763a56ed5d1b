package testutils

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, address, templateName string, params map[string]any) error {
	args := m.Called(ctx, address, templateName, params)
	return args.Error(0)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

// PlainHasher stands in for bcrypt in tests that only care where the
// credential ends up.
type PlainHasher struct {
	Err error
}

func (h PlainHasher) Hash(credential string) (string, error) {
	if h.Err != nil {
		return "", h.Err
	}
	return "hashed:" + credential, nil
}

// FailingReader is an entropy source that always errors.
type FailingReader struct{}

func (FailingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

// SequenceReader yields the bytes of a repeating pattern, for deterministic
// random output.
type SequenceReader struct {
	Pattern string
	pos     int
}

func (r *SequenceReader) Read(p []byte) (int, error) {
	if r.Pattern == "" {
		r.Pattern = "\x00"
	}
	for i := range p {
		p[i] = r.Pattern[r.pos%len(r.Pattern)]
		r.pos++
	}
	return len(p), nil
}
