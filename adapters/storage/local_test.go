package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/adapters/storage"
	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

func TestNewLocal_TouchesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	storage.NewLocal(root, 0)
	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")
	l := storage.NewLocal(root, 0)
	dir := filepath.Join(root, "a", "b")

	state, err := l.EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, storage.DirCreated, state)

	state, err = l.EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, storage.DirExisted, state)
}

func TestEnsureDir_Concurrent(t *testing.T) {
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	dir := filepath.Join(root, "x", "y", "z")

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.EnsureDir(dir)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestEnsureDir_BlockedByFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := storage.NewLocal(root, 0).EnsureDir(filepath.Join(blocker, "sub"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDirectoryNotExists)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryStorage))
	assert.False(t, apperrors.IsRecovered(err))
}

func TestPutExists(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	key := core.StorageKey{Bucket: "albums", Path: "photo_w=1&h=&c=0&q=.png"}

	ok, err := l.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.EnsureDir(filepath.Join(root, "albums"))
	require.NoError(t, err)
	require.NoError(t, l.Put(ctx, key, strings.NewReader("first version")))
	require.NoError(t, l.Put(ctx, key, strings.NewReader("second")))

	ok, err = l.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := os.ReadFile(l.PathOf(key))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	fi, err := os.Stat(l.PathOf(key))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(root, "albums"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// stallingReader yields head, then blocks until release is closed.
type stallingReader struct {
	head    []byte
	reached chan struct{}
	release chan struct{}
}

func (r *stallingReader) Read(p []byte) (int, error) {
	if len(r.head) > 0 {
		n := copy(p, r.head)
		r.head = r.head[n:]
		return n, nil
	}
	close(r.reached)
	<-r.release
	return 0, io.EOF
}

func TestPut_InvisibleUntilComplete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	key := core.StorageKey{Path: "photo_w=10&h=&c=0&q=.png"}

	r := &stallingReader{head: []byte("PARTIAL"), reached: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() { done <- l.Put(ctx, key, r) }()

	<-r.reached
	ok, err := l.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, l.PathOf(key))

	close(r.release)
	require.NoError(t, <-done)
	data, err := os.ReadFile(l.PathOf(key))
	require.NoError(t, err)
	assert.Equal(t, "PARTIAL", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("source went away") }

func TestPut_FailureKeepsPreviousFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	key := core.StorageKey{Path: "photo.png"}

	require.NoError(t, l.Put(ctx, key, strings.NewReader("good")))
	err := l.Put(ctx, key, io.MultiReader(strings.NewReader("ba"), failingReader{}))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryStorage))

	data, err := os.ReadFile(l.PathOf(key))
	require.NoError(t, err)
	assert.Equal(t, "good", string(data))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestPathOf_StaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	p := l.PathOf(core.StorageKey{Bucket: "../../etc", Path: "../passwd"})
	assert.True(t, strings.HasPrefix(p, root), p)
}

func TestExists_DirectoryIsNotAFile(t *testing.T) {
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	require.NoError(t, os.Mkdir(filepath.Join(root, "d"), 0o755))

	ok, err := l.Exists(context.Background(), core.StorageKey{Path: "d"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := storage.NewLocal(root, 0)
	key := core.StorageKey{Path: "a.png"}

	release, err := l.Lock(ctx, key)
	require.NoError(t, err)
	assert.FileExists(t, l.PathOf(key)+".lock")

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, key)
	assert.Error(t, err, "lock held twice")

	require.NoError(t, release())
	assert.FileExists(t, l.PathOf(key)+".lock")

	release, err = l.Lock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestDirStateString(t *testing.T) {
	assert.Equal(t, "race_recovered", storage.DirRaceRecovered.String())
}
