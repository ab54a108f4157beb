package fsops

import (
	"fmt"
	"hash/fnv"
)

func hashID(path string) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	return fmt.Sprintf("h-%x", h.Sum64())
}
