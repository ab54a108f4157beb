package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxNameLength is the longest item name accepted by ValidateName.
const MaxNameLength = 255

// Sandbox confines every path the service touches to a single storage root.
// All user-supplied paths are treated as relative to Root, even when they
// look absolute.
type Sandbox struct {
	Root string
}

// NewSandbox creates a sandbox rooted at the cleaned absolute form of root.
func NewSandbox(root string) Sandbox {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return Sandbox{Root: abs}
}

// Resolve validates a user-supplied path and returns the absolute path it
// maps to under the root. Traversal sequences that would escape the root
// fail with ErrAccessDenied. A bare root+prefix comparison would accept
// /data2 for root /data, so the check requires the separator.
func (s Sandbox) Resolve(userPath string) (string, error) {
	trimmed := strings.TrimLeft(userPath, "/\\")
	abs := filepath.Join(s.Root, trimmed)

	if abs != s.Root && !strings.HasPrefix(abs, s.Root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes storage root: %w", userPath, ErrAccessDenied)
	}
	return abs, nil
}

// Rel converts an absolute sandboxed path back to its root-relative form.
// The root itself maps to the empty string.
func (s Sandbox) Rel(abs string) string {
	rel, err := filepath.Rel(s.Root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

// ValidateName checks a single path component (file or directory name).
func ValidateName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Errorf("name %q: %w", name, ErrInvalidName)
	case strings.ContainsAny(name, "/\x00") || strings.ContainsRune(name, os.PathSeparator):
		return fmt.Errorf("name %q contains illegal characters: %w", name, ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("name exceeds %d characters: %w", MaxNameLength, ErrInvalidName)
	}
	return nil
}
