package tlspump

import "sync"

// elementKind distinguishes the tagged variants that can occupy a slot in
// the write queue, in place of comparing a zero-length buffer by pointer
// identity, which Go slices cannot do reliably.
type elementKind int

const (
	kindData elementKind = iota
	kindHandshakeTrigger
	kindCompletion
)

// writeElement is one slot in the write queue.
type writeElement struct {
	kind elementKind
	data []byte // only meaningful when kind == kindData
}

func dataElement(b []byte) writeElement     { return writeElement{kind: kindData, data: b} }
func handshakeTriggerElement() writeElement { return writeElement{kind: kindHandshakeTrigger} }
func completionElement() writeElement       { return writeElement{kind: kindCompletion} }

func (e writeElement) remaining() int {
	if e.kind == kindData {
		return len(e.data)
	}
	return 0
}

// writeQueue is the ordered sequence of pending writeElements, protected by
// its own mutex so that WritePipeline.Incoming never blocks on processData.
type writeQueue struct {
	mu    sync.Mutex
	elems []writeElement
}

func newWriteQueue() *writeQueue {
	return &writeQueue{}
}

func (q *writeQueue) addData(buffers [][]byte) {
	q.mu.Lock()
	for _, b := range buffers {
		q.elems = append(q.elems, dataElement(b))
	}
	q.mu.Unlock()
}

func (q *writeQueue) addElement(e writeElement) {
	q.mu.Lock()
	q.elems = append(q.elems, e)
	q.mu.Unlock()
}

// snapshotData returns the current data bytes as a slice of byte slices,
// suitable for passing to Engine.Wrap. The caller must treat the returned
// slices as immutable for the duration of the Wrap call; concurrent
// Incoming calls only ever append, never mutate, existing elements.
func (q *writeQueue) snapshotData() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, 0, len(q.elems))
	for _, e := range q.elems {
		if e.kind == kindData && len(e.data) > 0 {
			out = append(out, e.data)
		}
	}
	return out
}

// remainingBytes returns the total unconsumed bytes across all data
// elements.
func (q *writeQueue) remainingBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, e := range q.elems {
		total += e.remaining()
	}
	return total
}

// hasHandshakeTrigger reports whether a handshake-trigger element is
// currently queued.
func (q *writeQueue) hasHandshakeTrigger() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.elems {
		if e.kind == kindHandshakeTrigger {
			return true
		}
	}
	return false
}

// consume removes n bytes' worth of data from the front of the queue's data
// elements (in order), leaving sentinel elements untouched wherever they
// occur. Fully drained data elements stay in the queue until the caller
// invokes clean.
func (q *writeQueue) consume(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.elems {
		if n == 0 {
			break
		}
		e := &q.elems[i]
		if e.kind != kindData || len(e.data) == 0 {
			continue
		}
		if n >= len(e.data) {
			n -= len(e.data)
			e.data = nil
		} else {
			e.data = e.data[n:]
			n = 0
		}
	}
}

// clean drops fully-drained data elements wherever they sit in the queue,
// leaving both sentinel kinds (handshake-trigger, completion) in place
// regardless of their (zero) remaining length.
func (q *writeQueue) clean() {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := 0
	for i < len(q.elems) {
		e := q.elems[i]
		if e.kind == kindData && len(e.data) == 0 {
			q.elems = append(q.elems[:i], q.elems[i+1:]...)
			continue
		}
		i++
	}
}

// removeFirst removes the first element of the given kind found, if any,
// and reports whether one was removed. Used to drop a handshake-trigger
// once it has been (or is about to be) consumed by wrap, and the
// completion sentinel once the queue has drained, independent of position.
func (q *writeQueue) removeFirst(kind elementKind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.elems {
		if e.kind == kind {
			q.elems = append(q.elems[:i], q.elems[i+1:]...)
			return true
		}
	}
	return false
}

// isEmpty reports whether the queue holds no elements at all.
func (q *writeQueue) isEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elems) == 0
}

// clear removes all elements.
func (q *writeQueue) clear() {
	q.mu.Lock()
	q.elems = nil
	q.mu.Unlock()
}
