package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const saveExt = ".sav"

// DiskStore keeps saves as files in a single directory, one
// "<name>.sav" per save. Writes go to a temp file in the same
// directory and are renamed into place, so a crash mid-write never
// corrupts an existing save.
type DiskStore struct {
	dir string
}

// NewDiskStore opens a save directory, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) path(name string) string {
	return filepath.Join(s.dir, name+saveExt)
}

// Save writes data under name, replacing any previous save.
func (s *DiskStore) Save(_ context.Context, name string, data []byte) error {
	if !validName(name) {
		return errBadName
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads the save stored under name.
func (s *DiskStore) Load(_ context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, errBadName
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSave
	}
	return data, err
}

// List returns every save in the directory, sorted by name.
func (s *DiskStore) List(_ context.Context) ([]SaveInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), saveExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		saves = append(saves, SaveInfo{
			Name:    strings.TrimSuffix(entry.Name(), saveExt),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(saves, func(i, j int) bool { return saves[i].Name < saves[j].Name })
	return saves, nil
}

// Delete removes the save stored under name.
func (s *DiskStore) Delete(_ context.Context, name string) error {
	if !validName(name) {
		return errBadName
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoSave
	}
	return err
}
