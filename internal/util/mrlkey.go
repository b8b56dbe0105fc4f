package util

import (
	"crypto/sha1"
	"fmt"
)

// MrlKey creates a stable hex key for an MRL.
// Used to derive thumbnail file names and cache keys without keeping the
// full MRL around.
func MrlKey(mrl string) string {
	h := sha1.New()
	fmt.Fprint(h, mrl)
	return fmt.Sprintf("%x", h.Sum(nil))
}
