// Package storage provides the filesystem cache behind StorageAdapter.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// DirState reports how EnsureDir found the directory.
type DirState int

const (
	DirExisted DirState = iota
	DirCreated
	// DirRaceRecovered means MkdirAll failed but the directory exists, i.e.
	// a concurrent request created it first.
	DirRaceRecovered
)

func (s DirState) String() string {
	switch s {
	case DirExisted:
		return "existed"
	case DirCreated:
		return "created"
	case DirRaceRecovered:
		return "race_recovered"
	}
	return "unknown"
}

const lockRetryDelay = 25 * time.Millisecond

// Local stores variants below a cache root on the local filesystem.
// Directories are created lazily; nothing is touched at construction.
type Local struct {
	rootDir     string
	permissions os.FileMode
	dirPerm     os.FileMode
}

// NewLocal creates a Local storage adapter rooted at dir.
func NewLocal(dir string, perm os.FileMode) *Local {
	if perm == 0 {
		perm = 0o644
	}
	return &Local{rootDir: dir, permissions: perm, dirPerm: 0o755}
}

// Root returns the cache root.
func (l *Local) Root() string { return l.rootDir }

// PathOf returns the absolute path for key. Bucket maps to a subdirectory.
func (l *Local) PathOf(key core.StorageKey) string {
	return filepath.Join(l.rootDir, filepath.FromSlash(filepath.Clean("/" + key.Bucket)[1:]), filepath.Base(key.Path))
}

// EnsureDir creates dir and its parents if absent. A failed create is only
// reported when the directory is still missing afterwards.
func (l *Local) EnsureDir(dir string) (DirState, error) {
	if isDir(dir) {
		return DirExisted, nil
	}
	if err := os.MkdirAll(dir, l.dirPerm); err != nil {
		if isDir(dir) {
			return DirRaceRecovered, nil
		}
		return 0, apperrors.New(apperrors.CategoryStorage, "local.ensure_dir",
			fmt.Errorf("%w: %s: %v", apperrors.ErrDirectoryNotExists, dir, err))
	}
	return DirCreated, nil
}

func isDir(dir string) bool {
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}

// Put writes r to key. The bytes go to a temporary file in the same
// directory that is renamed over the key once complete, so a reader sees
// either the previous file or the whole new one. Concurrent writers of the
// same key are not coordinated; the last rename wins.
func (l *Local) Put(ctx context.Context, key core.StorageKey, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}
	if err := WriteFile(l.PathOf(key), r, l.permissions); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}
	return nil
}

// WriteFile atomically replaces path with the contents of r. On failure only
// the temporary file is removed; an existing path is left untouched.
func WriteFile(path string, r io.Reader, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

// Exists reports whether key is a regular file.
func (l *Local) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists", err)
	}
	fi, err := os.Stat(l.PathOf(key))
	if err == nil {
		return fi.Mode().IsRegular(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists.stat", err)
}

// Lock takes an exclusive inter-process lock on a sibling "<file>.lock" and
// returns the release func. The key's directory must already exist. The lock
// file stays behind after release: unlinking it would let a waiter holding
// the old inode and a newcomer on a fresh file both proceed.
func (l *Local) Lock(ctx context.Context, key core.StorageKey) (func() error, error) {
	fl := flock.New(l.PathOf(key) + ".lock")
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.lock", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.CategoryStorage, "local.lock",
			fmt.Errorf("lock not acquired: %s", fl.Path()))
	}
	return fl.Unlock, nil
}
