package fsops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Catalog is the write-through contract the operator needs from the metadata
// store. Catalog failures never fail the filesystem operation; they are
// logged and the operation proceeds.
type Catalog interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, path string) error
}

// Listing is the result of listing one directory level.
type Listing struct {
	CurrentPath     string   `json:"current_path"`
	Files           []Record `json:"files"`
	ParentDirectory *string  `json:"parent_directory"`
}

// Operator performs sandboxed directory and item operations.
type Operator struct {
	sandbox Sandbox
	catalog Catalog
	logger  *zap.Logger
}

// NewOperator creates an operator over the given sandbox. catalog may be nil
// when no metadata store is configured.
func NewOperator(sandbox Sandbox, catalog Catalog, logger *zap.Logger) *Operator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Operator{sandbox: sandbox, catalog: catalog, logger: logger}
}

// Sandbox exposes the operator's sandbox for collaborators that resolve
// paths themselves (upload pipeline, compression engine).
func (o *Operator) Sandbox() Sandbox { return o.sandbox }

// List enumerates the immediate children of a directory. Entries whose
// metadata read fails are skipped and logged, not fatal. Results are sorted
// directories-first, then case-insensitively by name.
func (o *Operator) List(path string) (Listing, error) {
	abs, err := o.sandbox.Resolve(path)
	if err != nil {
		return Listing{}, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Listing{}, fmt.Errorf("list %q: %w", path, ErrNotFound)
	}
	if !info.IsDir() {
		return Listing{}, fmt.Errorf("list %q: not a directory: %w", path, ErrInvalidDestination)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return Listing{}, fmt.Errorf("list %q: %v: %w", path, err, ErrIO)
	}

	files := make([]Record, 0, len(entries))
	for _, entry := range entries {
		rec, err := o.sandbox.Describe(abs, entry.Name())
		if err != nil {
			o.logger.Warn("skipping unreadable entry",
				zap.String("name", entry.Name()),
				zap.Error(err))
			continue
		}
		files = append(files, rec)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Type != files[j].Type {
			return files[i].Type == TypeFolder
		}
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})

	listing := Listing{CurrentPath: o.sandbox.Rel(abs), Files: files}
	if listing.CurrentPath != "" {
		parent := filepath.Dir(listing.CurrentPath)
		if parent == "." {
			parent = ""
		}
		listing.ParentDirectory = &parent
	}
	return listing, nil
}

// CreateDir creates a new directory named name inside path.
func (o *Operator) CreateDir(ctx context.Context, path, name string) (Record, error) {
	if err := ValidateName(name); err != nil {
		return Record{}, err
	}

	abs, err := o.sandbox.Resolve(path)
	if err != nil {
		return Record{}, err
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return Record{}, fmt.Errorf("create directory in %q: %w", path, ErrNotFound)
	}

	target := filepath.Join(abs, name)
	if _, err := os.Stat(target); err == nil {
		return Record{}, fmt.Errorf("directory %q: %w", name, ErrAlreadyExists)
	}

	if err := os.Mkdir(target, 0o755); err != nil {
		return Record{}, fmt.Errorf("mkdir %q: %v: %w", name, err, ErrIO)
	}

	rec, err := o.sandbox.Describe(abs, name)
	if err != nil {
		return Record{}, err
	}
	o.catalogPut(ctx, rec)
	return rec, nil
}

// Delete removes a file or recursively removes a directory. Deletion is not
// atomic: a tree may be left partially removed on error.
func (o *Operator) Delete(ctx context.Context, path string) error {
	abs, err := o.sandbox.Resolve(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("delete %q: %w", path, ErrNotFound)
	}

	if info.IsDir() {
		err = os.RemoveAll(abs)
	} else {
		err = os.Remove(abs)
	}
	if err != nil {
		return fmt.Errorf("delete %q: %v: %w", path, err, ErrIO)
	}

	o.catalogDelete(ctx, o.sandbox.Rel(abs))
	return nil
}

// Rename gives the entry at path a new name in place. isDirectory is the
// caller's claim about the entry's type; a mismatch fails before any I/O,
// catching requests built against a stale listing.
func (o *Operator) Rename(ctx context.Context, path string, isDirectory bool, newName string) (Record, error) {
	if err := ValidateName(newName); err != nil {
		return Record{}, err
	}

	abs, err := o.sandbox.Resolve(path)
	if err != nil {
		return Record{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Record{}, fmt.Errorf("rename %q: %w", path, ErrNotFound)
	}
	if info.IsDir() != isDirectory {
		return Record{}, fmt.Errorf("rename %q: entry type mismatch: %w", path, ErrBadRequest)
	}

	parent := filepath.Dir(abs)
	target := filepath.Join(parent, newName)
	if _, err := os.Stat(target); err == nil {
		return Record{}, fmt.Errorf("rename to %q: %w", newName, ErrAlreadyExists)
	}

	if err := os.Rename(abs, target); err != nil {
		return Record{}, fmt.Errorf("rename %q: %v: %w", path, err, ErrIO)
	}

	o.catalogDelete(ctx, o.sandbox.Rel(abs))
	rec, err := o.sandbox.Describe(parent, newName)
	if err != nil {
		return Record{}, err
	}
	o.catalogPut(ctx, rec)
	return rec, nil
}

// Move relocates the entry at src into the directory dst. Fails with
// ErrConflict when an entry with the same base name already exists there;
// nothing is ever silently overwritten.
func (o *Operator) Move(ctx context.Context, src, dst string) (Record, error) {
	srcAbs, dstAbs, err := o.resolvePair(src, dst)
	if err != nil {
		return Record{}, err
	}

	target := filepath.Join(dstAbs, filepath.Base(srcAbs))
	if _, err := os.Stat(target); err == nil {
		return Record{}, fmt.Errorf("move target %q: %w", filepath.Base(srcAbs), ErrConflict)
	}

	if err := os.Rename(srcAbs, target); err != nil {
		return Record{}, fmt.Errorf("move %q: %v: %w", src, err, ErrIO)
	}

	o.catalogDelete(ctx, o.sandbox.Rel(srcAbs))
	rec, err := o.sandbox.Describe(dstAbs, filepath.Base(srcAbs))
	if err != nil {
		return Record{}, err
	}
	o.catalogPut(ctx, rec)
	return rec, nil
}

// Copy duplicates the entry at src into the directory dst, recursing through
// directory trees. File contents are preserved; timestamps are not.
func (o *Operator) Copy(ctx context.Context, src, dst string) (Record, error) {
	srcAbs, dstAbs, err := o.resolvePair(src, dst)
	if err != nil {
		return Record{}, err
	}

	target := filepath.Join(dstAbs, filepath.Base(srcAbs))
	if _, err := os.Stat(target); err == nil {
		return Record{}, fmt.Errorf("copy target %q: %w", filepath.Base(srcAbs), ErrConflict)
	}

	if err := copyTree(srcAbs, target); err != nil {
		return Record{}, fmt.Errorf("copy %q: %v: %w", src, err, ErrIO)
	}

	rec, err := o.sandbox.Describe(dstAbs, filepath.Base(srcAbs))
	if err != nil {
		return Record{}, err
	}
	o.catalogPut(ctx, rec)
	return rec, nil
}

// resolvePair validates a source/destination pair: both sandboxed, source
// existing, destination an existing directory, not identical, and the
// destination not inside the source. Copying a tree into its own subtree
// would recurse over its own output forever.
func (o *Operator) resolvePair(src, dst string) (string, string, error) {
	srcAbs, err := o.sandbox.Resolve(src)
	if err != nil {
		return "", "", err
	}
	dstAbs, err := o.sandbox.Resolve(dst)
	if err != nil {
		return "", "", err
	}

	if srcAbs == dstAbs {
		return "", "", fmt.Errorf("source and destination are identical: %w", ErrConflict)
	}
	if strings.HasPrefix(dstAbs, srcAbs+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("destination %q is inside source %q: %w", dst, src, ErrInvalidDestination)
	}
	if _, err := os.Stat(srcAbs); err != nil {
		return "", "", fmt.Errorf("source %q: %w", src, ErrNotFound)
	}
	info, err := os.Stat(dstAbs)
	if err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("destination %q: %w", dst, ErrInvalidDestination)
	}
	return srcAbs, dstAbs, nil
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (o *Operator) catalogPut(ctx context.Context, rec Record) {
	if o.catalog == nil {
		return
	}
	if err := o.catalog.Put(ctx, rec); err != nil {
		o.logger.Warn("catalog write failed", zap.String("path", rec.Path), zap.Error(err))
	}
}

func (o *Operator) catalogDelete(ctx context.Context, path string) {
	if o.catalog == nil {
		return
	}
	if err := o.catalog.Delete(ctx, path); err != nil {
		o.logger.Warn("catalog delete failed", zap.String("path", path), zap.Error(err))
	}
}
