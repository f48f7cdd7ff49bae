package tlspump

import "sync/atomic"

// pumpStats tracks cumulative byte counters for a Pump: plain atomic
// counters rather than a metrics-library dependency, backing an on-demand
// Snapshot rather than an exported metrics surface.
type pumpStats struct {
	plaintextIn   atomic.Int64 // bytes produced by Unwrap (decrypted, downstream)
	ciphertextOut atomic.Int64 // bytes produced by Wrap (encrypted, downstream)
}

func (s *pumpStats) addPlaintextIn(n int)   { s.plaintextIn.Add(int64(n)) }
func (s *pumpStats) addCiphertextOut(n int) { s.ciphertextOut.Add(int64(n)) }
