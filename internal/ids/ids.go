package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// UserID mints a student identifier such as VEDARC-01J9Z3.... The ULID part is
// monotonic within the process, so concurrent activations never collide.
func UserID(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return New()
	}
	return prefix + "-" + New()
}

// Code returns a short upper-case verification code derived from a fresh ULID.
// The random tail is used so codes minted in the same millisecond differ.
func Code(prefix string) string {
	id := New()
	tail := id[len(id)-10:]
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return tail
	}
	return prefix + "-" + tail
}
