package chunk

import (
	"bytes"
	"testing"
)

func TestCursor(t *testing.T) {
	c := NewCursor()
	if w := c.Window(); len(w) != 0 {
		t.Fatalf("new cursor has window %q", w)
	}
	if c.Closed() || c.AtEnd() {
		t.Fatalf("new cursor closed or at end")
	}

	c.Feed([]byte("hello "))
	c.Feed([]byte("world"))
	if w := c.Window(); string(w) != "hello world" {
		t.Fatalf("window %q, expected %q", w, "hello world")
	}

	c.Consume(6)
	if w := c.Window(); string(w) != "world" {
		t.Fatalf("window %q after consume, expected %q", w, "world")
	}
	if c.Offset() != 6 {
		t.Fatalf("offset %d, expected 6", c.Offset())
	}

	// Compaction on feed must preserve the unconsumed window.
	c.Feed([]byte("!"))
	if w := c.Window(); string(w) != "world!" {
		t.Fatalf("window %q after compacting feed, expected %q", w, "world!")
	}

	c.CloseInput()
	if !c.Closed() || c.AtEnd() {
		t.Fatalf("closed with buffered bytes: Closed %v, AtEnd %v", c.Closed(), c.AtEnd())
	}
	c.Consume(6)
	if !c.AtEnd() {
		t.Fatalf("not at end after consuming all input")
	}
	if c.Offset() != 13 {
		t.Fatalf("offset %d, expected 13", c.Offset())
	}
}

func TestCursorPeek(t *testing.T) {
	c := NewCursor()
	c.Feed([]byte("abc"))
	if p, closed := c.Peek(2); string(p) != "ab" || closed {
		t.Fatalf("peek got %q closed %v", p, closed)
	}
	if p, _ := c.Peek(10); string(p) != "abc" {
		t.Fatalf("peek beyond buffer got %q", p)
	}
	c.CloseInput()
	if _, closed := c.Peek(1); !closed {
		t.Fatalf("peek did not report closed input")
	}
	// Peeking must not consume.
	if w := c.Window(); string(w) != "abc" {
		t.Fatalf("window %q after peeks", w)
	}
}

func TestCursorFeedCopies(t *testing.T) {
	c := NewCursor()
	buf := []byte("abc")
	c.Feed(buf)
	buf[0] = 'x'
	if w := c.Window(); !bytes.Equal(w, []byte("abc")) {
		t.Fatalf("window %q shares caller buffer", w)
	}
}

func TestCursorMaxWindow(t *testing.T) {
	c := NewCursor()
	for i := 0; i < 100; i++ {
		c.Feed(make([]byte, 10))
		c.Consume(10)
	}
	// Consumed bytes are compacted away, the window never exceeds one chunk.
	if mw := c.MaxWindow(); mw > 10 {
		t.Fatalf("max window %d for fully consumed 10-byte chunks", mw)
	}
}

func TestCursorPanics(t *testing.T) {
	mustPanic := func(fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic")
			}
		}()
		fn()
	}

	c := NewCursor()
	c.Feed([]byte("ab"))
	mustPanic(func() { c.Consume(3) })
	c.CloseInput()
	mustPanic(func() { c.Feed([]byte("x")) })
}
