package fsops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOperator(t *testing.T) (*Operator, string) {
	t.Helper()
	root := t.TempDir()
	return NewOperator(NewSandbox(root), nil, nil), root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// TestOperatorList tests listing order, the response shape, and parent
// derivation at each depth.
func TestOperatorList(t *testing.T) {
	op, root := newTestOperator(t)

	writeFile(t, filepath.Join(root, "zeta.txt"), "z")
	writeFile(t, filepath.Join(root, "Alpha.txt"), "a")
	require.NoError(t, os.Mkdir(filepath.Join(root, "beta"), 0o755))

	listing, err := op.List("")
	require.NoError(t, err)

	assert.Equal(t, "", listing.CurrentPath)
	assert.Nil(t, listing.ParentDirectory)
	require.Len(t, listing.Files, 3)

	// Directories first, then case-insensitive by name.
	assert.Equal(t, "beta", listing.Files[0].Name)
	assert.Equal(t, TypeFolder, listing.Files[0].Type)
	assert.Equal(t, "Alpha.txt", listing.Files[1].Name)
	assert.Equal(t, "zeta.txt", listing.Files[2].Name)

	sub, err := op.List("beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", sub.CurrentPath)
	require.NotNil(t, sub.ParentDirectory)
	assert.Equal(t, "", *sub.ParentDirectory)
}

func TestOperatorListErrors(t *testing.T) {
	op, root := newTestOperator(t)
	writeFile(t, filepath.Join(root, "plain.txt"), "x")

	_, err := op.List("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = op.List("plain.txt")
	assert.ErrorIs(t, err, ErrInvalidDestination)

	_, err = op.List("../outside")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestOperatorCreateDir(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	rec, err := op.CreateDir(ctx, "", "projects")
	require.NoError(t, err)
	assert.Equal(t, "projects", rec.Name)
	assert.Equal(t, TypeFolder, rec.Type)
	assert.DirExists(t, filepath.Join(root, "projects"))

	_, err = op.CreateDir(ctx, "", "projects")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = op.CreateDir(ctx, "missing", "child")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = op.CreateDir(ctx, "", "bad/name")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestOperatorDelete(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "tree", "deep", "leaf.txt"), "x")
	writeFile(t, filepath.Join(root, "single.txt"), "y")

	require.NoError(t, op.Delete(ctx, "single.txt"))
	assert.NoFileExists(t, filepath.Join(root, "single.txt"))

	require.NoError(t, op.Delete(ctx, "tree"))
	assert.NoDirExists(t, filepath.Join(root, "tree"))

	// Deleting again reports not found rather than succeeding silently.
	assert.ErrorIs(t, op.Delete(ctx, "tree"), ErrNotFound)
}

func TestOperatorRename(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "old.txt"), "content")
	writeFile(t, filepath.Join(root, "taken.txt"), "other")
	require.NoError(t, os.Mkdir(filepath.Join(root, "folder"), 0o755))

	rec, err := op.Rename(ctx, "old.txt", false, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", rec.Name)
	assert.FileExists(t, filepath.Join(root, "new.txt"))
	assert.NoFileExists(t, filepath.Join(root, "old.txt"))

	rec, err = op.Rename(ctx, "folder", true, "renamed")
	require.NoError(t, err)
	assert.Equal(t, TypeFolder, rec.Type)
	assert.DirExists(t, filepath.Join(root, "renamed"))

	_, err = op.Rename(ctx, "new.txt", false, "taken.txt")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = op.Rename(ctx, "ghost.txt", false, "any.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestOperatorRenameTypeMismatch verifies the is-directory claim is checked
// against the actual entry before anything moves.
func TestOperatorRenameTypeMismatch(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "plain.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(root, "folder"), 0o755))

	_, err := op.Rename(ctx, "plain.txt", true, "other.txt")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.FileExists(t, filepath.Join(root, "plain.txt"))

	_, err = op.Rename(ctx, "folder", false, "other")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.DirExists(t, filepath.Join(root, "folder"))
}

func TestOperatorMove(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "report.txt"), "data")
	require.NoError(t, os.Mkdir(filepath.Join(root, "archive"), 0o755))

	rec, err := op.Move(ctx, "report.txt", "archive")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("archive", "report.txt"), rec.Path)
	assert.FileExists(t, filepath.Join(root, "archive", "report.txt"))
	assert.NoFileExists(t, filepath.Join(root, "report.txt"))

	// A second entry with the same base name must not overwrite.
	writeFile(t, filepath.Join(root, "report.txt"), "newer")
	_, err = op.Move(ctx, "report.txt", "archive")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOperatorMoveErrors(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "a.txt"), "x")

	_, err := op.Move(ctx, "a.txt", "a.txt")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = op.Move(ctx, "ghost.txt", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = op.Move(ctx, "a.txt", "a.txt/sub")
	assert.ErrorIs(t, err, ErrInvalidDestination)
}

// TestOperatorTransferIntoOwnSubtree verifies that copying or moving a
// directory into its own descendant is rejected before any I/O. A copy that
// recursed over its own output would grow the tree without bound.
func TestOperatorTransferIntoOwnSubtree(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "src", "file.txt"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(root, "src", "nested"), 0o755))

	_, err := op.Copy(ctx, "src", "src/nested")
	assert.ErrorIs(t, err, ErrInvalidDestination)

	_, err = op.Copy(ctx, "src", "src")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = op.Move(ctx, "src", "src/nested")
	assert.ErrorIs(t, err, ErrInvalidDestination)

	// The source is untouched and nothing was written into the subtree.
	assert.FileExists(t, filepath.Join(root, "src", "file.txt"))
	entries, readErr := os.ReadDir(filepath.Join(root, "src", "nested"))
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestOperatorCopy(t *testing.T) {
	op, root := newTestOperator(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(root, "src", "one.txt"), "1")
	writeFile(t, filepath.Join(root, "src", "nested", "two.txt"), "22")
	require.NoError(t, os.Mkdir(filepath.Join(root, "dst"), 0o755))

	rec, err := op.Copy(ctx, "src", "dst")
	require.NoError(t, err)
	assert.Equal(t, TypeFolder, rec.Type)

	// Source intact, destination has the full tree.
	assert.FileExists(t, filepath.Join(root, "src", "one.txt"))
	assert.FileExists(t, filepath.Join(root, "dst", "src", "one.txt"))
	copied, err := os.ReadFile(filepath.Join(root, "dst", "src", "nested", "two.txt"))
	require.NoError(t, err)
	assert.Equal(t, "22", string(copied))

	_, err = op.Copy(ctx, "src", "dst")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOperatorDownload(t *testing.T) {
	op, root := newTestOperator(t)

	writeFile(t, filepath.Join(root, "img.png"), "fakepng")
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))

	info, err := op.Download("img.png", true)
	require.NoError(t, err)
	assert.Equal(t, "img.png", info.Name)
	assert.Equal(t, int64(7), info.Size)
	assert.Contains(t, info.ContentType, "image/png")
	assert.True(t, info.Inline)

	// Attachment when inline was not requested.
	info, err = op.Download("img.png", false)
	require.NoError(t, err)
	assert.False(t, info.Inline)

	_, err = op.Download("", false)
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = op.Download("dir", false)
	assert.ErrorIs(t, err, ErrInvalidDestination)

	_, err = op.Download("ghost.bin", false)
	assert.ErrorIs(t, err, ErrNotFound)
}
