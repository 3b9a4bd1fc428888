package evict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrEvictionStuck_CarriesAttempts(t *testing.T) {
	err := ErrEvictionStuck(42)
	require.ErrorContains(t, err, "42")
}
