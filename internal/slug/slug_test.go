package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoIDGenerator_Format(t *testing.T) {
	gen := NewNanoIDGenerator()

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		s, err := gen.Generate()
		require.NoError(t, err)

		ok, reason := Validate(s)
		require.True(t, ok, "slug %q: %s", s, reason)
		seen[s] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestValidate(t *testing.T) {
	cases := map[string]bool{
		"ab3k-9f2pq":  true,
		"zzzz-00000":  true,
		"ab3k9f2pq":   false,
		"ab3k-9f2p":   false,
		"AB3K-9F2PQ":  false,
		"ab3k_9f2pq":  false,
		"ab3k-9f2pq0": false,
		"":            false,
	}
	for in, want := range cases {
		ok, _ := Validate(in)
		assert.Equal(t, want, ok, in)
	}
}
