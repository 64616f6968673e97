package random

import "testing"

func TestTransactionID(t *testing.T) {
	seen := make(map[uint16]bool)
	const iterations = 10000

	for i := 0; i < iterations; i++ {
		seen[TransactionID()] = true
	}

	// Collisions are possible (16-bit space, birthday paradox at this
	// sample size) but generated IDs should still be overwhelmingly
	// distinct.
	if len(seen) < iterations*9/10 {
		t.Errorf("too many collisions: got %d unique IDs from %d iterations", len(seen), iterations)
	}
}

func BenchmarkTransactionID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		TransactionID()
	}
}
