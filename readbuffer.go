package tlspump

import "fmt"

const (
	initialReadBufferCap = 1024
	// defaultReadBufferCap is the absolute safety ceiling on ReadBuffer
	// growth (a safety multiple of the 16 KiB backpressure target).
	// Exceeding it is reported as a DownstreamFailure, since an unbounded
	// buffer is an unbounded memory liability in a library that may be
	// driven by an adversarial or misbehaving peer.
	defaultReadBufferCap = 256 * 1024
)

// readBuffer is a single growable byte region kept in "readable"
// orientation: data from position 0 to limit is valid, unconsumed bytes.
// consume shifts the remaining bytes back to position 0, so append needs no
// separate compaction step. Exactly one readBuffer
// exists per ReadPipeline, and it is always mutated under the pipeline's
// bufMu.
type readBuffer struct {
	buf   []byte
	limit int
	cap   int // safety ceiling; newReadBuffer substitutes defaultReadBufferCap for <= 0
}

func newReadBuffer(maxCap int) *readBuffer {
	if maxCap <= 0 {
		maxCap = defaultReadBufferCap
	}
	return &readBuffer{
		buf:   make([]byte, initialReadBufferCap),
		limit: 0,
		cap:   maxCap,
	}
}

// remaining returns the number of unconsumed bytes.
func (b *readBuffer) remaining() int {
	return b.limit
}

// bytes returns the unconsumed bytes. The returned slice aliases the
// buffer's storage and is only valid until the next mutation.
func (b *readBuffer) bytes() []byte {
	return b.buf[:b.limit]
}

// consume drops the first n unconsumed bytes (they were read by Unwrap).
func (b *readBuffer) consume(n int) {
	if n <= 0 {
		return
	}
	copy(b.buf, b.buf[n:b.limit])
	b.limit -= n
}

// append adds buf's bytes to the end of the unconsumed region, growing by
// doubling as needed. It returns a DownstreamFailure if the unconsumed bytes
// would exceed the safety cap.
func (b *readBuffer) append(buf []byte) error {
	needed := b.limit + len(buf)
	if needed > b.cap {
		return &DownstreamFailure{
			Side:  "read",
			Cause: fmt.Errorf("read buffer would grow to %d bytes, exceeding safety cap of %d", needed, b.cap),
		}
	}
	for len(b.buf) < needed {
		newCap := len(b.buf) * 2
		if newCap > b.cap {
			newCap = b.cap
		}
		grown := make([]byte, newCap)
		copy(grown, b.buf[:b.limit])
		b.buf = grown
	}
	copy(b.buf[b.limit:needed], buf)
	b.limit = needed
	return nil
}
