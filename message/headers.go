package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/mjl-/mimefeed/chunk"
)

// HeaderField is a single header field. Insertion order in a HeaderBlock is
// preserved, it is meaningful for reconstruction and for repeated fields such
// as Received.
type HeaderField struct {
	Name     string   // Canonicalized, e.g. "Content-Type". Matched case-insensitively.
	Raw      []byte   // Unfolded raw value, continuation lines space-joined, without line terminator.
	Value    string   // Value after RFC 2047 encoded-word decoding. Bytes are in the declared charset, not transcoded.
	Charsets []string `json:",omitempty"` // Charsets declared by encoded words in this field, in order, deduplicated.
}

// HeaderBlock is an ordered collection of header fields, terminated in the
// input by a blank line.
type HeaderBlock struct {
	Fields []HeaderField
}

// Get returns the decoded value of the first field with the given name,
// matched case-insensitively, or the empty string if the field is absent.
func (h HeaderBlock) Get(name string) string {
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns the decoded values of all fields with the given name, in
// insertion order.
func (h HeaderBlock) Values(name string) []string {
	var l []string
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			l = append(l, f.Value)
		}
	}
	return l
}

var errNoDateHeader = errors.New("no date header")

// Date returns the parsed Date header field. Parsing follows RFC 5322
// including the obsolete forms that remain common, e.g. two-digit years and
// named timezones like GMT.
func (h HeaderBlock) Date() (time.Time, error) {
	v := h.Get("Date")
	if v == "" {
		return time.Time{}, errNoDateHeader
	}
	t, err := mail.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date: %w", err)
	}
	return t, nil
}

var errMalformedHeaderLine = errors.New("malformed header line")

// readLine returns the next line from the cursor, excluding its terminator.
// Both crlf and bare lf terminate a line, real mail has both. In pedantic
// mode a bare lf is an error. A final line without terminator is returned
// when end of input has been signaled. With all input consumed, io.EOF is
// returned. The returned bytes are only valid until the next Feed, callers
// must copy what they keep.
func readLine(c *chunk.Cursor, maxLine int, pedantic bool) ([]byte, error) {
	w := c.Window()
	i := bytes.IndexByte(w, '\n')
	if i < 0 {
		if len(w) > maxLine {
			return nil, errLineTooLong
		}
		if !c.Closed() {
			return nil, ErrNeedMore
		}
		if len(w) == 0 {
			return nil, io.EOF
		}
		c.Consume(len(w))
		return w, nil
	}
	if i > maxLine {
		return nil, errLineTooLong
	}
	line := w[:i]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	} else if pedantic || Pedantic {
		return nil, errBareLF
	}
	c.Consume(i + 1)
	return line, nil
}

// headerReader consumes header lines up to the blank-line separator. Its
// state survives ErrNeedMore, feed more input and call read again.
type headerReader struct {
	maxLine  int
	pedantic bool
	fields   []HeaderField
}

// read consumes available header lines. It returns ErrNeedMore until the
// separator has been seen, ErrTruncatedHeaders when input ends first, and
// ErrOrphanContinuation for a continuation line with no preceding field.
func (hr *headerReader) read(c *chunk.Cursor) (HeaderBlock, error) {
	var zero HeaderBlock
	for {
		line, err := readLine(c, hr.maxLine, hr.pedantic)
		if err == ErrNeedMore {
			return zero, err
		}
		if err == io.EOF {
			return zero, ErrTruncatedHeaders
		}
		if err != nil {
			return zero, fmt.Errorf("reading header line: %w", err)
		}
		if len(line) == 0 {
			// Separator. Unfolding is complete, decode encoded words per field.
			for i := range hr.fields {
				f := &hr.fields[i]
				f.Value, f.Charsets = decodeEncodedWords(f.Raw)
			}
			return HeaderBlock{hr.fields}, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(hr.fields) == 0 {
				return zero, ErrOrphanContinuation
			}
			f := &hr.fields[len(hr.fields)-1]
			f.Raw = append(f.Raw, ' ')
			f.Raw = append(f.Raw, bytes.TrimLeft(line, " \t")...)
			continue
		}
		i := bytes.IndexByte(line, ':')
		if i <= 0 {
			// No colon, or empty field name. Real mail contains such junk
			// lines (mbox From-lines, UUCP leftovers), skip them.
			if hr.pedantic || Pedantic {
				return zero, fmt.Errorf("%w: %q", errMalformedHeaderLine, line)
			}
			continue
		}
		name := textproto.CanonicalMIMEHeaderKey(string(bytes.TrimRight(line[:i], " \t")))
		raw := bytes.TrimLeft(line[i+1:], " \t")
		hr.fields = append(hr.fields, HeaderField{Name: name, Raw: append([]byte{}, raw...)})
	}
}
