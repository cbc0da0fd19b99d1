package message

import (
	"bytes"
	"strings"
)

// decodeEncodedWords decodes RFC 2047 encoded words (=?charset?encoding?text?=)
// in an unfolded raw header value. The decoded bytes are not transcoded, they
// are in the charset the word declares; the declared charsets are returned for
// the caller to transcode with, e.g. via DecodeCharset. Malformed encoded
// words are passed through verbatim, never treated as fatal. Whitespace
// between two adjacent encoded words is dropped, as required for multi-word
// encoded text.
func decodeEncodedWords(raw []byte) (string, []string) {
	if !bytes.Contains(raw, []byte("=?")) {
		return string(raw), nil
	}
	var out []byte
	var charsets []string
	lastWasWord := false
	i := 0
	for i < len(raw) {
		j := bytes.Index(raw[i:], []byte("=?"))
		if j < 0 {
			out = append(out, raw[i:]...)
			break
		}
		j += i
		dec, charset, n, ok := decodeEncodedWord(raw[j:])
		if !ok {
			out = append(out, raw[i:j+2]...)
			i = j + 2
			lastWasWord = false
			continue
		}
		sep := raw[i:j]
		if !(lastWasWord && len(bytes.Trim(sep, " \t")) == 0) {
			out = append(out, sep...)
		}
		out = append(out, dec...)
		charsets = addCharset(charsets, charset)
		i = j + n
		lastWasWord = true
	}
	return string(out), charsets
}

// decodeEncodedWord parses a single encoded word at the start of b, which
// begins with "=?". n is the number of bytes the word spans in b. Any syntax
// or payload decoding problem makes ok false, the caller then keeps the
// original text.
func decodeEncodedWord(b []byte) (dec []byte, charset string, n int, ok bool) {
	q1 := bytes.IndexByte(b[2:], '?')
	if q1 < 0 {
		return nil, "", 0, false
	}
	q1 += 2
	charset = string(b[2:q1])
	if charset == "" || strings.ContainsAny(charset, " \t") {
		return nil, "", 0, false
	}
	// RFC 2231 allows a language suffix after '*', e.g. "utf-8*en".
	if k := strings.IndexByte(charset, '*'); k >= 0 {
		charset = charset[:k]
		if charset == "" {
			return nil, "", 0, false
		}
	}
	if q1+2 >= len(b) || b[q1+2] != '?' {
		return nil, "", 0, false
	}
	encoding := b[q1+1]
	payloadStart := q1 + 3
	end := bytes.Index(b[payloadStart:], []byte("?="))
	if end < 0 {
		return nil, "", 0, false
	}
	payload := b[payloadStart : payloadStart+end]
	n = payloadStart + end + 2

	switch encoding {
	case 'B', 'b':
		d := &base64Decoder{}
		var err error
		dec, err = d.decode(nil, payload)
		if err == nil {
			dec, err = d.close(dec)
		}
		if err != nil {
			return nil, "", 0, false
		}
	case 'Q', 'q':
		// In Q encoding an underscore means space, unlike body
		// quoted-printable.
		q := bytes.ReplaceAll(payload, []byte("_"), []byte(" "))
		d := &qpDecoder{pedantic: true}
		var err error
		dec, err = d.decode(nil, q)
		if err == nil {
			dec, err = d.close(dec)
		}
		if err != nil {
			return nil, "", 0, false
		}
	default:
		return nil, "", 0, false
	}
	return dec, charset, n, true
}

func addCharset(l []string, charset string) []string {
	for _, s := range l {
		if strings.EqualFold(s, charset) {
			return l
		}
	}
	return append(l, charset)
}
