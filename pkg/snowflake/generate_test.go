package snowflake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStringID_Unique(t *testing.T) {
	require.NoError(t, Init(1, 1))

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id, err := NextStringID()
		require.NoError(t, err)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
