package session

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID mints a session identifier of the form
// "<kind>-YYYY-MM-DDTHHMMSS-<6 random lowercase alphanumerics>", e.g.
// "chat-2025-01-15T142301-k3x9p2". It is sortable and globally unique
// without coordination: the timestamp component orders by creation time,
// the uuid-derived suffix avoids collisions within the same second.
func NewID(kind Kind) string {
	ts := time.Now().UTC().Format("2006-01-02T150405")
	suffix := randomSuffix()
	return fmt.Sprintf("%s-%s-%s", kind, ts, suffix)
}

// randomSuffix derives 6 lowercase alphanumeric characters from a fresh
// UUID's entropy, matching the teacher's use of github.com/google/uuid as
// the module's id-entropy source.
func randomSuffix() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	base := big.NewInt(36)
	mod := new(big.Int)
	buf := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		n.DivMod(n, base, mod)
		buf[i] = base36Alphabet[mod.Int64()]
	}
	return string(buf)
}
