package message

import (
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// DecodeCharset returns a reader that reads from r, decoding as charset into
// utf-8. If charset is empty, us-ascii, utf-8 or unknown, the original reader
// is returned and no decoding takes place.
//
// The parser itself never transcodes: header field values and body bytes are
// surfaced with their declared charset names. This helper is for callers that
// want utf-8.
func DecodeCharset(charset string, r io.Reader) io.Reader {
	switch strings.ToLower(charset) {
	case "", "us-ascii", "utf-8":
		return r
	}
	enc, _ := ianaindex.MIME.Encoding(charset)
	if enc == nil {
		enc, _ = ianaindex.IANA.Encoding(charset)
	}
	if enc == nil {
		return r
	}
	return enc.NewDecoder().Reader(r)
}

// DecodeCharsetString is DecodeCharset over a string, for decoded header
// field values.
func DecodeCharsetString(charset, s string) string {
	r := DecodeCharset(charset, strings.NewReader(s))
	buf, err := io.ReadAll(r)
	if err != nil {
		return s
	}
	return string(buf)
}
