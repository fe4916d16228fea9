package method

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	require.True(t, Safe(GET))
	require.True(t, Safe(HEAD))
	require.False(t, Safe(POST))
	require.False(t, Safe("get"))
}
