// Package chunk provides a cursor over an ordered sequence of byte chunks.
//
// A Cursor is fed chunks of arbitrary size by the caller. Scanners peek at the
// buffered window and consume bytes once they are sure how to interpret them.
// Consumed bytes are never revisited. The window only grows to the longest
// lookahead a scanner needs, not to the size of the full input: consumed bytes
// are discarded during compaction.
package chunk

// Cursor is a monotonic read pointer over fed chunks. It is not safe for
// concurrent use, matching the single-scanner ownership of message parsing.
type Cursor struct {
	buf       []byte // Buffered data, window is buf[off:].
	off       int    // Consumed bytes still present in buf, removed at next compaction.
	closed    bool   // No more data will be fed.
	consumed  int64  // Total bytes consumed since the start of input.
	maxWindow int    // High-water mark of the window size.
}

func NewCursor() *Cursor {
	return &Cursor{}
}

// Feed appends a chunk of input. The chunk is copied, callers can reuse their
// buffer. Feed panics when called after CloseInput, such calls are a bug in
// the caller.
func (c *Cursor) Feed(p []byte) {
	if c.closed {
		panic("feed after close of input")
	}
	if c.off > 0 {
		// Compact before growing: drop consumed bytes so the buffer stays
		// proportional to the unconsumed window.
		n := copy(c.buf, c.buf[c.off:])
		c.buf = c.buf[:n]
		c.off = 0
	}
	c.buf = append(c.buf, p...)
	if w := len(c.buf) - c.off; w > c.maxWindow {
		c.maxWindow = w
	}
}

// CloseInput signals that no further bytes will ever arrive. Buffered
// unconsumed bytes remain readable.
func (c *Cursor) CloseInput() {
	c.closed = true
}

// Closed reports whether end of input has been signaled.
func (c *Cursor) Closed() bool {
	return c.closed
}

// AtEnd reports whether all input has been consumed and no more will arrive.
func (c *Cursor) AtEnd() bool {
	return c.closed && c.off == len(c.buf)
}

// Window returns all buffered unconsumed bytes, without consuming. The
// returned slice is valid until the next call to Feed.
func (c *Cursor) Window() []byte {
	return c.buf[c.off:]
}

// Peek returns up to n unconsumed bytes without consuming them, along with
// whether end of input has been signaled. Fewer than n bytes are returned
// when not that many are buffered.
func (c *Cursor) Peek(n int) ([]byte, bool) {
	w := c.buf[c.off:]
	if n < len(w) {
		w = w[:n]
	}
	return w, c.closed
}

// Consume advances the read pointer by n bytes. It panics when n exceeds the
// buffered window: consuming bytes never seen is a bug in the scanner.
func (c *Cursor) Consume(n int) {
	if n < 0 || n > len(c.buf)-c.off {
		panic("consume beyond buffered window")
	}
	c.off += n
	c.consumed += int64(n)
}

// Offset returns the total number of bytes consumed since the start of input.
func (c *Cursor) Offset() int64 {
	return c.consumed
}

// MaxWindow returns the high-water mark of the buffered window size, useful
// for verifying bounded memory use.
func (c *Cursor) MaxWindow() int {
	return c.maxWindow
}
