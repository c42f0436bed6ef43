package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v1")))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, m.Set(ctx, "k", []byte("v2")))
	got, _, _ = m.Get(ctx, "k")
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, m.Remove(ctx, "k"))
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	src := []byte("original")
	require.NoError(t, m.Set(ctx, "k", src))
	src[0] = 'X'

	got, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("original"), got, "stored value must not alias the caller's slice")

	got[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("original"), again)
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "snap", []byte(`{"page":"/create/image"}`)))
	got, ok, err := s.Get(ctx, "snap")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"page":"/create/image"}`), got)

	// Upsert semantics.
	require.NoError(t, s.Set(ctx, "snap", []byte("replaced")))
	got, _, _ = s.Get(ctx, "snap")
	assert.Equal(t, []byte("replaced"), got)

	require.NoError(t, s.Remove(ctx, "snap"))
	_, ok, err = s.Get(ctx, "snap")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing an absent key is not an error.
	assert.NoError(t, s.Remove(ctx, "never-there"))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("survives")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("survives"), got)
}
