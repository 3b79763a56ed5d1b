package safepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/safepoint/testutils"
)

func TestNew(t *testing.T) {
	a, err := New(
		WithConfig(testutils.GetTestConfig()),
		WithDatabase(&testutils.User{}),
		WithNotifier(&testutils.MockNotifier{}),
		WithMetrics(),
		WithSweeper(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { testutils.CloseDB(t, a.DB()) })

	assert.NotNil(t, a.Portal())
	assert.NotNil(t, a.Metrics())
	assert.NotNil(t, a.Sweeper())
	assert.Nil(t, a.Server())
	assert.True(t, a.DB().Migrator().HasTable("users"))
}

func TestNew_PropagatesBuildErrors(t *testing.T) {
	_, err := New(
		WithConfig(testutils.GetTestConfig()),
		WithMail(),
		WithNotifier(&testutils.MockNotifier{}),
	)

	assert.Error(t, err)
}
