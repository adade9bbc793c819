package meros_test

import (
	"path/filepath"
	"testing"

	"github.com/nuclix-bio/k2r/meros"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, meros.Meros{K: 31, L: 15}.Validate())
	require.Error(t, meros.Meros{K: 10, L: 15}.Validate())
	require.Error(t, meros.Meros{K: 0, L: 0}.Validate())
	require.Error(t, meros.Meros{K: 64, L: 64}.Validate())
}

func TestWindow(t *testing.T) {
	require.Equal(t, 1, meros.Meros{K: 15, L: 15}.Window())
	require.Equal(t, 17, meros.Meros{K: 31, L: 15}.Window())
}

func TestIndexOptionsRoundTrip(t *testing.T) {
	minClear := uint64(123456)
	opts := meros.FromMeros(meros.Meros{
		K:                 31,
		L:                 15,
		SpacedSeedMask:    0x3fffffff,
		ToggleMask:        0xe37e28c4271b5a2d,
		MinClearHashValue: &minClear,
	})

	path := filepath.Join(t.TempDir(), "opts.k2d")
	require.NoError(t, opts.WriteToFile(path))

	got, err := meros.ReadIndexOptions(path)
	require.NoError(t, err)
	require.Equal(t, opts.Meros.K, got.Meros.K)
	require.Equal(t, opts.Meros.L, got.Meros.L)
	require.Equal(t, opts.Meros.SpacedSeedMask, got.Meros.SpacedSeedMask)
	require.Equal(t, opts.Meros.ToggleMask, got.Meros.ToggleMask)
	require.NotNil(t, got.Meros.MinClearHashValue)
	require.Equal(t, *opts.Meros.MinClearHashValue, *got.Meros.MinClearHashValue)
	require.True(t, got.DNADB)
}

func TestIndexOptionsNoMinClear(t *testing.T) {
	opts := meros.FromMeros(meros.Meros{K: 21, L: 11})
	path := filepath.Join(t.TempDir(), "opts.k2d")
	require.NoError(t, opts.WriteToFile(path))

	got, err := meros.ReadIndexOptions(path)
	require.NoError(t, err)
	require.Nil(t, got.Meros.MinClearHashValue)
}
