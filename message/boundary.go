package message

import (
	"bytes"

	"github.com/mjl-/mimefeed/chunk"
)

type boundKind int

const (
	boundData  boundKind = iota // Content bytes before the next delimiter.
	boundMid                    // "--" token, start of a next part.
	boundFinal                  // "--" token "--", closing delimiter.
)

// boundScanner locates delimiter lines of one boundary token in the cursor.
// Matching is conservative: when the window ends in what could become a
// delimiter, the scanner reports ErrNeedMore instead of consuming
// tentatively, so fed chunks can split anywhere, including inside a
// delimiter line.
type boundScanner struct {
	c     *chunk.Cursor
	delim []byte // "\r\n--" + token.
	bol   bool   // At start of region: first delimiter may appear without leading crlf.
}

func newBoundScanner(c *chunk.Cursor, token string) *boundScanner {
	return &boundScanner{c: c, delim: append([]byte("\r\n--"), token...), bol: true}
}

// next returns a content span, or a delimiter. Content spans point into the
// cursor window and are valid until the next Feed. With end of input reached
// while a delimiter is still required, errUnexpectedEOF is returned; the
// assembler turns that into ErrUnterminatedMultipart.
func (s *boundScanner) next() (boundKind, []byte, error) {
	w := s.c.Window()
	closed := s.c.Closed()

	if s.bol {
		// Directly after the header separator the delimiter has no leading
		// crlf of its own.
		d := s.delim[2:]
		if len(w) < len(d) {
			if bytes.HasPrefix(d, w) && !closed {
				return 0, nil, ErrNeedMore
			}
			// Closed: the partial match can never complete, scan as content.
		} else if bytes.HasPrefix(w, d) {
			return s.delimiter(w, len(d), closed)
		}
		s.bol = false
	}

	i := bytes.Index(w, s.delim)
	if i == 0 {
		return s.delimiter(w, len(s.delim), closed)
	}
	if i > 0 {
		return s.data(w[:i])
	}

	// No full delimiter. Hold back the longest window suffix that is still a
	// delimiter prefix, the rest is certain to be content.
	k := overlapLen(w, s.delim)
	if closed {
		k = 0 // Nothing can complete a partial delimiter anymore.
	}
	if len(w)-k > 0 {
		return s.data(w[:len(w)-k])
	}
	if closed {
		return 0, nil, errUnexpectedEOF
	}
	return 0, nil, ErrNeedMore
}

func (s *boundScanner) data(d []byte) (boundKind, []byte, error) {
	s.bol = false
	s.c.Consume(len(d))
	return boundData, d, nil
}

// delimiter classifies the bytes following a matched "--" token at the start
// of the window. end is the length of the match so far.
func (s *boundScanner) delimiter(w []byte, end int, closed bool) (boundKind, []byte, error) {
	t := w[end:]
	switch {
	case len(t) >= 2 && t[0] == '-' && t[1] == '-':
		s.bol = false
		s.c.Consume(end + 2)
		return boundFinal, nil, nil
	case len(t) >= 2 && t[0] == '\r' && t[1] == '\n':
		s.bol = false
		s.c.Consume(end + 2)
		return boundMid, nil, nil
	case len(t) >= 1 && t[0] == '\n':
		s.bol = false
		s.c.Consume(end + 1)
		return boundMid, nil, nil
	case len(t) == 0 || len(t) == 1 && (t[0] == '-' || t[0] == '\r'):
		// Not enough trailing bytes to decide mid vs final vs false match.
		if closed {
			return 0, nil, errUnexpectedEOF
		}
		return 0, nil, ErrNeedMore
	}
	// Other trailing bytes: a false match, e.g. a longer boundary of a
	// nested part using this token as prefix. The matched bytes are content.
	return s.data(w[:end])
}

// overlapLen returns the length of the longest suffix of w that is a proper
// prefix of delim.
func overlapLen(w, delim []byte) int {
	max := len(delim) - 1
	if max > len(w) {
		max = len(w)
	}
	for k := max; k > 0; k-- {
		if bytes.Equal(w[len(w)-k:], delim[:k]) {
			return k
		}
	}
	return 0
}
