package outbox

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash computes a deterministic SHA-256 digest over an entity's
// identity and payload, for out-of-band idempotency checks performed by
// callers outside the core. The core itself never compares hashes.
func ContentHash(entityID string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(entityID))
	h.Write([]byte{0}) // separator: prevents id/payload concatenation collisions
	h.Write(payload)

	return hex.EncodeToString(h.Sum(nil))
}
