// Package idgen generates opaque identifiers used for sessions, messages,
// and content-addressed file names.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var objectIDCounter uint32

// New generates a 12-byte ObjectID-like string (24 hex characters),
// monotonically ordered by embedded unix-second timestamp.
func New() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&objectIDCounter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// TimestampPrefix returns an 8-char hex timestamp followed by an underscore,
// used to make content-addressed filenames trivially age-sortable.
func TimestampPrefix() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(time.Now().Unix()))
	return hex.EncodeToString(b) + "_"
}

// ShortUUID returns the first 8 hex characters of a fresh random UUIDv4,
// used to suffix platform-facing session ids ("<platform>-<bot>-<user>-<uuid8>").
func ShortUUID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:4])
}

// SessionID builds the adapter-facing session id per SPEC_FULL §4.9 step 2.
func SessionID(platform, botID, userID string) string {
	return fmt.Sprintf("%s-%s-%s-%s", platform, botID, userID, ShortUUID())
}
