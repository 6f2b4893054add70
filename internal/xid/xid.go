// Package xid generates prefixed, sortable-by-creation identifiers for
// ledger records: "fm-1756500000000000000-a1b2c3d4e5f6a7b8".
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a fresh id carrying the given prefix. The nanosecond
// stamp keeps ids roughly ordered; the random suffix breaks ties.
func New(prefix string) string {
	now := time.Now().UnixNano()
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// rand failing is effectively fatal elsewhere; the stamp alone
		// is still unique enough for a single process
		return fmt.Sprintf("%s-%d", prefix, now)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now, hex.EncodeToString(buf[:]))
}
