//go:build windows

package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShowWindowProcResolves(t *testing.T) {
	require.NoError(t, procShowWindow.Find())
}
