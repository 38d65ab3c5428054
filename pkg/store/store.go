// Package store persists game saves. A Store maps a save name to an
// opaque blob; the server decides what goes in the blob. Two backends
// ship with the package: DiskStore for a local saves directory and
// S3Store for shared hosting.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoSave is returned by Load and Delete when no save exists under
// the given name.
var ErrNoSave = errors.New("store: no such save")

// SaveInfo describes one stored save.
type SaveInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store reads and writes named save blobs. Implementations must make
// Save atomic: a concurrent Load sees either the previous blob or the
// new one, never a partial write.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]SaveInfo, error)
	Delete(ctx context.Context, name string) error
}

// validName reports whether name is usable as a save name. Names
// become file names and object keys, so path syntax is rejected.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

var errBadName = errors.New("store: invalid save name")
