//go:build !windows

package startup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsupportedManager(t *testing.T) {
	m := New()
	on, err := m.IsEnabled()
	require.NoError(t, err)
	assert.False(t, on)

	assert.ErrorIs(t, m.SetEnabled(true), ErrNotSupported)
	assert.NoError(t, m.SetEnabled(false))
}
