package lock

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, "/data/replica")
	require.NoError(t, err)
	second, err := New(dir, "/data/replica")
	require.NoError(t, err)
	assert.Equal(t, first.Path(), second.Path())

	require.NoError(t, first.Lock())
	assert.ErrorIs(t, second.Lock(), ErrLocked)

	require.NoError(t, first.Unlock())
	assert.FileExists(t, first.Path())

	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}

func TestLockFileReusedAfterUnlock(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, "/data/replica")
	require.NoError(t, err)
	require.NoError(t, first.Lock())
	require.NoError(t, first.Unlock())
	require.FileExists(t, first.Path())

	// later contenders still meet on the one file left behind
	second, err := New(dir, "/data/replica")
	require.NoError(t, err)
	third, err := New(dir, "/data/replica")
	require.NoError(t, err)

	require.NoError(t, second.Lock())
	assert.ErrorIs(t, third.Lock(), ErrLocked)
	require.NoError(t, second.Unlock())

	require.NoError(t, third.Lock())
	assert.ErrorIs(t, first.Lock(), ErrLocked)
	require.NoError(t, third.Unlock())
}

func TestLockPathPerReplica(t *testing.T) {
	dir := t.TempDir()

	a, err := New(dir, "/data/a")
	require.NoError(t, err)
	b, err := New(dir, "/data/b")
	require.NoError(t, err)

	assert.NotEqual(t, a.Path(), b.Path())
	assert.Equal(t, dir, filepath.Dir(a.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(a.Path()), "mirror-sync-"))

	require.NoError(t, a.Lock())
	require.NoError(t, b.Lock())
	require.NoError(t, a.Unlock())
	require.NoError(t, b.Unlock())
}

func TestUnlockWithoutLock(t *testing.T) {
	l, err := New(t.TempDir(), "/data/replica")
	require.NoError(t, err)
	assert.NoError(t, l.Unlock())
}
