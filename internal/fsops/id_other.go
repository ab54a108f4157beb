//go:build !unix

package fsops

import "os"

// entryID falls back to a path hash on platforms without inode semantics.
func entryID(path string, _ os.FileInfo) string {
	return hashID(path)
}
