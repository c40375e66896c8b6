package journal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/roach88/hypergraph/internal/event"
)

// DigestDomain separates session digests from any other hash of the same
// bytes. The version suffix allows a future algorithm change.
const DigestDomain = "hypergraph/session/v1"

// Digest computes the content hash of a session's events:
// SHA256(domain + 0x00 + canonical(e1) + 0x00 + canonical(e2) ...).
// Equal event sequences always produce equal digests.
func Digest(events []event.Event) (string, error) {
	h := sha256.New()
	h.Write([]byte(DigestDomain))
	for _, e := range events {
		data, err := event.Marshal(e)
		if err != nil {
			return "", err
		}
		h.Write([]byte{0x00})
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
