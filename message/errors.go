package message

import (
	"errors"
)

// Pedantic enables stricter parsing for all parsers, in addition to the
// per-parser Config.Pedantic. When set, tolerated deviations such as bare
// line feeds and stray quoted-printable escapes become errors.
var Pedantic bool

// ErrNeedMore is returned when parsing cannot make progress until more input
// is fed to the cursor. It is not a failure: feed another chunk, or close the
// input, and continue.
var ErrNeedMore = errors.New("need more input")

// Structural errors. These make it impossible to determine where a header
// block or part ends and abort the message, without corrupting parts already
// produced.
var (
	ErrTruncatedHeaders      = errors.New("end of input before header/body separator")
	ErrOrphanContinuation    = errors.New("continuation line without preceding header field")
	ErrMissingBoundaryParam  = errors.New("missing/empty boundary content-type parameter")
	ErrUnterminatedMultipart = errors.New("end of input without closing boundary")
	ErrBadContentType        = errors.New("bad content-type")
)

// Decoding errors. These are scoped to the single opaque body being decoded:
// they terminate that body with an error marker on the part, sibling parts
// and headers remain usable.
var (
	ErrInvalidBase64   = errors.New("invalid base64 character")
	ErrTruncatedBase64 = errors.New("truncated base64 data")
	ErrInvalidEscape   = errors.New("invalid quoted-printable escape")
)

var (
	errLineTooLong   = errors.New("line too long")
	errBareLF        = errors.New("invalid bare line feed")
	errUnexpectedEOF = errors.New("unexpected eof")
)
