//go:build unix

package fsops

import (
	"fmt"
	"os"
	"syscall"
)

// entryID combines device and inode into a durable per-entry identity.
func entryID(path string, info os.FileInfo) string {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return fmt.Sprintf("%d-%d", st.Dev, st.Ino)
	}
	return hashID(path)
}
