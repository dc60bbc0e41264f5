package patchcache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dselans/beampatch/patchcache"
)

func TestLoadOnMissingFileIsEmpty(t *testing.T) {
	s, err := patchcache.Open(t.TempDir())
	require.Nil(t, err)

	applied, err := s.Load()
	require.Nil(t, err)
	require.Empty(t, applied)
}

func TestMarkAppliedPersists(t *testing.T) {
	s, err := patchcache.Open(t.TempDir())
	require.Nil(t, err)

	require.Nil(t, s.MarkApplied("patch_001.thor"))
	require.Nil(t, s.MarkApplied("patch_002.rgz"))

	applied, err := s.Load()
	require.Nil(t, err)
	for _, name := range []string{"patch_001.thor", "patch_002.rgz"} {
		require.Contains(t, applied, name)
	}
}

func TestResetClearsCache(t *testing.T) {
	s, err := patchcache.Open(t.TempDir())
	require.Nil(t, err)
	require.Nil(t, s.MarkApplied("patch_001.thor"))
	require.Nil(t, s.Reset())

	applied, err := s.Load()
	require.Nil(t, err)
	require.Empty(t, applied)
}
