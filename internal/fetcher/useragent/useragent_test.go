package useragent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomDrawsFromPool(t *testing.T) {
	t.Parallel()

	pool := All()
	for i := 0; i < 50; i++ {
		require.Contains(t, pool, Random())
		require.Contains(t, languages, Language())
	}
}
