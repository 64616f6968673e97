// Package random provides cryptographically secure transaction IDs for
// outgoing upstream queries. Predictable IDs make off-path cache poisoning
// trivial, so this never falls back to math/rand.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// TransactionID generates a cryptographically random 16-bit DNS transaction
// ID. Never use math/rand here; it's predictable.
func TransactionID() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return binary.BigEndian.Uint16(buf[:])
}
