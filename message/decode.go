package message

import (
	"encoding/base64"
	"strings"
)

// TransferEncoding is the body encoding declared by a Content-Transfer-
// Encoding header.
type TransferEncoding int

const (
	// Identity covers 7bit, 8bit and binary, and is the default for an
	// absent or unrecognized Content-Transfer-Encoding.
	Identity TransferEncoding = iota
	Base64
	QuotedPrintable
)

var transferEncodingStrings = map[TransferEncoding]string{
	Identity:        "identity",
	Base64:          "base64",
	QuotedPrintable: "quoted-printable",
}

func (e TransferEncoding) String() string {
	return transferEncodingStrings[e]
}

func (e TransferEncoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ParseTransferEncoding interprets a Content-Transfer-Encoding value,
// case-insensitively. Unrecognized values mean identity: passing bytes
// through unmodified beats dropping a body we cannot name.
func ParseTransferEncoding(s string) TransferEncoding {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BASE64":
		return Base64
	case "QUOTED-PRINTABLE":
		return QuotedPrintable
	}
	return Identity
}

// decoder transforms raw body bytes into decoded bytes, incrementally: src
// may be split at arbitrary positions, partial escape sequences are buffered
// until complete. decode and close append to dst and return it.
type decoder interface {
	decode(dst, src []byte) ([]byte, error)
	close(dst []byte) ([]byte, error)
}

func newTransferDecoder(enc TransferEncoding, pedantic bool) decoder {
	switch enc {
	case Base64:
		return &base64Decoder{}
	case QuotedPrintable:
		return &qpDecoder{pedantic: pedantic}
	}
	return identityDecoder{}
}

type identityDecoder struct{}

func (identityDecoder) decode(dst, src []byte) ([]byte, error) { return append(dst, src...), nil }
func (identityDecoder) close(dst []byte) ([]byte, error)       { return dst, nil }

// discardDecoder consumes input without producing output. Used to keep
// scanning for the part's closing boundary after its body failed to decode.
type discardDecoder struct{}

func (discardDecoder) decode(dst, src []byte) ([]byte, error) { return dst, nil }
func (discardDecoder) close(dst []byte) ([]byte, error)       { return dst, nil }

// base64Decoder decodes 4-character groups into 3 bytes, tolerating embedded
// whitespace and line breaks (skipped, not counted as data).
type base64Decoder struct {
	quad [4]byte
	n    int
	pad  int  // Number of '=' in the current quad.
	done bool // A padded quad was decoded, only whitespace may follow.
}

func isBase64Char(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '+' || b == '/'
}

func (d *base64Decoder) decode(dst, src []byte) ([]byte, error) {
	for _, b := range src {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if d.done {
			return dst, ErrInvalidBase64
		}
		if b == '=' {
			d.pad++
			if d.pad > 2 {
				return dst, ErrInvalidBase64
			}
		} else if !isBase64Char(b) {
			return dst, ErrInvalidBase64
		} else if d.pad > 0 {
			// Data after padding within a quad.
			return dst, ErrInvalidBase64
		}
		d.quad[d.n] = b
		d.n++
		if d.n < 4 {
			continue
		}
		var buf [3]byte
		nw, err := base64.StdEncoding.Decode(buf[:], d.quad[:])
		if err != nil {
			return dst, ErrInvalidBase64
		}
		dst = append(dst, buf[:nw]...)
		d.n = 0
		if d.pad > 0 {
			d.pad = 0
			d.done = true
		}
	}
	return dst, nil
}

func (d *base64Decoder) close(dst []byte) ([]byte, error) {
	if d.n == 0 {
		return dst, nil
	}
	// A final group of 2 or 3 characters without padding still decodes,
	// common with senders that omit padding. A single leftover character
	// cannot.
	if d.n == 1 || d.pad > 0 {
		return dst, ErrTruncatedBase64
	}
	var buf [3]byte
	nw, err := base64.RawStdEncoding.Decode(buf[:], d.quad[:d.n])
	if err != nil {
		return dst, ErrInvalidBase64
	}
	d.n = 0
	return append(dst, buf[:nw]...), nil
}

// qpDecoder decodes quoted-printable: =XX hex escapes and soft line breaks.
// A literal '=' not forming a valid escape or soft break is passed through,
// many real senders violate strict escaping. Pedantic mode rejects those.
type qpDecoder struct {
	pedantic bool
	state    int // 0 plain, 1 after '=', 2 after '=' and one hex digit, 3 after '=' cr.
	hex1     byte
}

func isQPHex(b byte) bool {
	// Lowercase hex is invalid per the grammar but produced in practice.
	return b >= '0' && b <= '9' || b >= 'A' && b <= 'F' || b >= 'a' && b <= 'f'
}

func unhex(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return b - 'a' + 10
}

func (d *qpDecoder) decode(dst, src []byte) ([]byte, error) {
	for i := 0; i < len(src); i++ {
		b := src[i]
		switch d.state {
		case 0:
			if b == '=' {
				d.state = 1
			} else {
				dst = append(dst, b)
			}
		case 1:
			switch {
			case isQPHex(b):
				d.hex1 = b
				d.state = 2
			case b == '\r':
				d.state = 3
			case b == '\n':
				// Soft break with bare lf, no output.
				d.state = 0
			default:
				if d.pedantic || Pedantic {
					return dst, ErrInvalidEscape
				}
				dst = append(dst, '=')
				d.state = 0
				i-- // Reprocess as plain byte.
			}
		case 2:
			if isQPHex(b) {
				dst = append(dst, unhex(d.hex1)<<4|unhex(b))
				d.state = 0
			} else {
				if d.pedantic || Pedantic {
					return dst, ErrInvalidEscape
				}
				dst = append(dst, '=', d.hex1)
				d.state = 0
				i--
			}
		case 3:
			if b == '\n' {
				// Soft break, the crlf is consumed with no output.
				d.state = 0
			} else {
				if d.pedantic || Pedantic {
					return dst, ErrInvalidEscape
				}
				dst = append(dst, '=', '\r')
				d.state = 0
				i--
			}
		}
	}
	return dst, nil
}

func (d *qpDecoder) close(dst []byte) ([]byte, error) {
	state := d.state
	d.state = 0
	switch state {
	case 1:
		// Trailing '=' at end of data, treat as a soft break.
		if d.pedantic || Pedantic {
			return dst, ErrInvalidEscape
		}
	case 2:
		if d.pedantic || Pedantic {
			return dst, ErrInvalidEscape
		}
		dst = append(dst, '=', d.hex1)
	case 3:
		if d.pedantic || Pedantic {
			return dst, ErrInvalidEscape
		}
		dst = append(dst, '=', '\r')
	}
	return dst, nil
}
