package msl

// rewindBuffer is the in-memory mark/reset buffer spec.md §4.6 and §9
// describe: bounded by the bytes read since the last mark, discarded on
// the next mark call. It sits between the chunk-decrypt loop and the
// public read() — decrypted plaintext is appended to pending as chunks
// arrive, consumed from its front by reads, and optionally captured into
// retained so reset() can replay it.
type rewindBuffer struct {
	pending  []byte
	retained []byte
	marked   bool
}

// take removes up to n bytes from the front of pending (all of it if
// n < 0), capturing a copy into retained when marked.
func (b *rewindBuffer) take(n int) []byte {
	if n < 0 || n > len(b.pending) {
		n = len(b.pending)
	}
	out := b.pending[:n]
	b.pending = b.pending[n:]
	if b.marked {
		b.retained = append(b.retained, out...)
	}
	return out
}

func (b *rewindBuffer) append(data []byte) {
	b.pending = append(b.pending, data...)
}

func (b *rewindBuffer) mark() {
	b.marked = true
	b.retained = b.retained[:0]
}

// reset replays everything read since the last mark by prepending it back
// onto pending. Returns a misuse error if mark was never called.
func (b *rewindBuffer) reset() error {
	if !b.marked {
		return newError(KindInternalException, nil, "", "", nil)
	}
	b.pending = append(append([]byte{}, b.retained...), b.pending...)
	b.retained = b.retained[:0]
	return nil
}

func (b *rewindBuffer) close() {
	b.pending = nil
	b.retained = nil
	b.marked = false
}
