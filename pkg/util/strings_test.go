package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBefore(t *testing.T) {
	require.Equal(t, "211", Before("211-abc-def", "-"))
	require.Equal(t, "EURUSD", Before("EURUSD", ":"))
	require.Equal(t, "", Before("-x", "-"))
}
