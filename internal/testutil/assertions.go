package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/cigraph/internal/evalerr"
)

// RequireKind fails the test unless err belongs to the given taxonomy kind.
func RequireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind, "got %s error: %v", evalerr.KindName(err), err)
}

// AssertLogged checks that the captured log output contains substr.
func AssertLogged(t *testing.T, logs *SafeBuffer, substr string) {
	t.Helper()
	require.True(t,
		strings.Contains(logs.String(), substr),
		"expected %q in log output:\n%s", substr, logs.String(),
	)
}
