package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EntryType distinguishes files from directories in records and queries.
type EntryType string

const (
	TypeFile   EntryType = "file"
	TypeFolder EntryType = "folder"
)

// Record describes one file or directory. ID is a stable identity derived
// from the filesystem (device and inode on unix); two distinct entries never
// share an ID and the same entry always yields the same one. Records are
// computed on demand by stat — the filesystem is the source of truth, and
// any persisted copy is advisory.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Type       EntryType `json:"type"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Describe stats parentAbs/name and builds its Record. The path field is
// relative to the sandbox root.
func (s Sandbox) Describe(parentAbs, name string) (Record, error) {
	full := filepath.Join(parentAbs, name)

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("stat %s: %w", name, ErrNotFound)
		}
		return Record{}, fmt.Errorf("stat %s: %v: %w", name, err, ErrIO)
	}

	rec := Record{
		ID:         entryID(full, info),
		Name:       name,
		Path:       s.Rel(full),
		Type:       TypeFile,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}
	if info.IsDir() {
		rec.Type = TypeFolder
	}
	return rec, nil
}
