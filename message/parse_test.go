package message

import (
	"strings"
	"testing"
)

// parseChunked is like Parse, but feeds the parser fixed-size chunks, so
// tests can verify results do not depend on where chunks split.
func parseChunked(t *testing.T, cfg Config, src string, size int) (*Message, error) {
	t.Helper()
	p := NewParser(cfg)
	i := 0
	for {
		pr, err := p.Next()
		if err != nil {
			return p.Message(), err
		}
		switch pr {
		case PNeedMore:
			if i >= len(src) {
				p.CloseInput()
				continue
			}
			end := i + size
			if end > len(src) {
				end = len(src)
			}
			p.Feed([]byte(src[i:end]))
			i = end
		case PBodyData, PPartDone:
			cur := p.Current()
			cur.Data = append(cur.Data, p.TakeBody()...)
		case PDone:
			if out := p.TakeBody(); len(out) > 0 {
				p.Current().Data = append(p.Current().Data, out...)
			}
			return p.Message(), nil
		}
	}
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestSimple(t *testing.T) {
	s := crlf(`From: <mjl@mox.example>
Content-Type: text/plain
Content-Transfer-Encoding: quoted-printable

hello=20world`)
	msg, err := Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	tcompare(t, msg.Headers.Get("From"), "<mjl@mox.example>")
	tcompare(t, msg.MediaType, "TEXT")
	tcompare(t, msg.MediaSubType, "PLAIN")
	tcompare(t, msg.Encoding, QuotedPrintable)
	tcompare(t, msg.Type, BodyOpaque)
	tcompare(t, string(msg.Data), "hello world")
	tcompare(t, msg.Complete, true)
	if msg.Err != nil || msg.BodyErr != nil {
		t.Fatalf("unexpected errors %v, %v", msg.Err, msg.BodyErr)
	}
}

func TestNoContentType(t *testing.T) {
	s := "Subject: x\r\n\r\nbody"
	msg, err := Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	tcompare(t, msg.MediaType, "")
	tcompare(t, msg.MediaSubType, "")
	tcompare(t, msg.Encoding, Identity)
	tcompare(t, string(msg.Data), "body")
}

func TestHeaderOnly(t *testing.T) {
	s := "Subject: x\r\n\r\n"
	msg, err := Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	tcompare(t, len(msg.Data), 0)
	tcompare(t, msg.Complete, true)
}

var multipartMsg = crlf(`From: <mjl@mox.example>
Content-Type: multipart/mixed; boundary="XYZ"

preamble, discarded
--XYZ
Content-Type: text/plain
Content-Transfer-Encoding: base64

aGVsbG8=
--XYZ
Content-Type: text/html

<b>hi</b>
--XYZ--
epilogue, discarded
`)

func TestMultipart(t *testing.T) {
	msg, err := Parse(Config{}, strings.NewReader(multipartMsg))
	tcheck(t, err, "parse")
	tcompare(t, msg.MediaType, "MULTIPART")
	tcompare(t, msg.MediaSubType, "MIXED")
	tcompare(t, msg.ContentTypeParams["boundary"], "XYZ")
	tcompare(t, msg.Type, BodyMultipart)
	tcompare(t, msg.Complete, true)
	tcompare(t, len(msg.Data), 0) // Preamble and epilogue are not content.
	tcompare(t, len(msg.Parts), 2)

	p0 := msg.Parts[0]
	tcompare(t, p0.MediaType, "TEXT")
	tcompare(t, p0.MediaSubType, "PLAIN")
	tcompare(t, p0.Encoding, Base64)
	tcompare(t, string(p0.Data), "hello")
	tcompare(t, p0.Complete, true)

	p1 := msg.Parts[1]
	tcompare(t, p1.MediaSubType, "HTML")
	tcompare(t, string(p1.Data), "<b>hi</b>")
	tcompare(t, p1.Complete, true)
}

func TestNestedMultipart(t *testing.T) {
	s := crlf(`Content-Type: multipart/mixed; boundary=outer

--outer
Content-Type: multipart/alternative; boundary=inner

--inner
Content-Type: text/plain

plain body
--inner
Content-Type: text/html

html body
--inner--
--outer
Content-Type: text/plain

after nested
--outer--
`)
	for _, size := range []int{1, 7, len(s)} {
		msg, err := parseChunked(t, Config{}, s, size)
		tcheck(t, err, "parse")
		tcompare(t, msg.Complete, true)
		tcompare(t, len(msg.Parts), 2)

		alt := msg.Parts[0]
		tcompare(t, alt.MediaSubType, "ALTERNATIVE")
		tcompare(t, alt.Type, BodyMultipart)
		tcompare(t, alt.Complete, true)
		tcompare(t, len(alt.Parts), 2)
		tcompare(t, string(alt.Parts[0].Data), "plain body")
		tcompare(t, string(alt.Parts[1].Data), "html body")

		tcompare(t, string(msg.Parts[1].Data), "after nested")
	}
}

// Parsing the same message byte-by-byte and in one chunk must build the same
// tree.
func TestChunkedEquality(t *testing.T) {
	exp, err := parseChunked(t, Config{}, multipartMsg, len(multipartMsg))
	tcheck(t, err, "parse single chunk")
	for _, size := range []int{1, 2, 3, 5, 64} {
		msg, err := parseChunked(t, Config{}, multipartMsg, size)
		tcheck(t, err, "parse chunked")
		tcompare(t, msg, exp)
	}
}

func TestMissingBoundaryParam(t *testing.T) {
	s := "Content-Type: multipart/mixed\r\n\r\nx"
	msg, err := Parse(Config{}, strings.NewReader(s))
	tfail(t, err, ErrMissingBoundaryParam)
	tfail(t, msg.Err, ErrMissingBoundaryParam)
	// Headers were parsed before the error, they remain available.
	tcompare(t, msg.MediaType, "MULTIPART")
}

func TestUnterminatedMultipart(t *testing.T) {
	s := crlf(`Content-Type: multipart/mixed; boundary=XYZ

--XYZ
Content-Type: text/plain

hello`)
	msg, err := Parse(Config{}, strings.NewReader(s))
	tfail(t, err, ErrUnterminatedMultipart)
	tfail(t, msg.Err, ErrUnterminatedMultipart)
	// The part under construction keeps what was decoded before input ended.
	tcompare(t, len(msg.Parts), 1)
	tcompare(t, string(msg.Parts[0].Data), "hello")
	tcompare(t, msg.Parts[0].Complete, false)
}

func TestTruncatedHeaders(t *testing.T) {
	_, err := Parse(Config{}, strings.NewReader("Subject: x\r\n"))
	tfail(t, err, ErrTruncatedHeaders)

	_, err = Parse(Config{}, strings.NewReader(""))
	tfail(t, err, ErrTruncatedHeaders)
}

func TestBadContentTypeRecovery(t *testing.T) {
	s := "content-type: text/html;;\r\n\r\ntest"
	msg, err := Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	tcompare(t, msg.MediaType, "TEXT")
	tcompare(t, msg.MediaSubType, "HTML")
	tcompare(t, string(msg.Data), "test")

	_, err = Parse(Config{Pedantic: true}, strings.NewReader(s))
	tfail(t, err, ErrBadContentType)

	// Unusable content-type without a subtype.
	s = "Content-Type: garbage\r\n\r\ntest"
	msg, err = Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	tcompare(t, msg.MediaType, "APPLICATION")
	tcompare(t, msg.MediaSubType, "OCTET-STREAM")
	tcompare(t, string(msg.Data), "test")
}

// A body that fails to decode terminates only that part: its boundary is
// still found and sibling parts parse normally.
func TestDecodeErrorScoped(t *testing.T) {
	s := crlf(`Content-Type: multipart/mixed; boundary=XYZ

--XYZ
Content-Transfer-Encoding: base64

!!!not base64!!!
--XYZ
Content-Type: text/plain

ok
--XYZ--
`)
	for _, size := range []int{1, 11, len(s)} {
		msg, err := parseChunked(t, Config{}, s, size)
		tcheck(t, err, "parse")
		tcompare(t, msg.Complete, true)
		tcompare(t, len(msg.Parts), 2)
		tfail(t, msg.Parts[0].BodyErr, ErrInvalidBase64)
		tcompare(t, len(msg.Parts[0].Data), 0)
		if msg.Parts[1].BodyErr != nil {
			t.Fatalf("sibling part got body error %v", msg.Parts[1].BodyErr)
		}
		tcompare(t, string(msg.Parts[1].Data), "ok")
	}
}

func TestTruncatedBase64Body(t *testing.T) {
	s := crlf(`Content-Type: multipart/mixed; boundary=XYZ

--XYZ
Content-Transfer-Encoding: base64

aGVsb
--XYZ--
`)
	msg, err := Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	p0 := msg.Parts[0]
	tfail(t, p0.BodyErr, ErrTruncatedBase64)
	// The complete quads before the truncation point were decoded.
	tcompare(t, string(p0.Data), "hel")
}

func TestBareLFBody(t *testing.T) {
	s := "Subject: x\nContent-Transfer-Encoding: base64\n\naGk="
	msg, err := Parse(Config{}, strings.NewReader(s))
	tcheck(t, err, "parse")
	tcompare(t, string(msg.Data), "hi")

	_, err = Parse(Config{Pedantic: true}, strings.NewReader(s))
	if err == nil {
		t.Fatalf("pedantic mode accepted bare lf line endings")
	}
}

// Buffered input must stay proportional to the fed chunk size, not to the
// size of the message.
func TestBoundedMemory(t *testing.T) {
	body := strings.Repeat("0123456789abcdefghij", 10*1024) // 200kb of content.
	var b strings.Builder
	b.WriteString("Content-Type: multipart/mixed; boundary=XYZ\r\n\r\n--XYZ\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n--XYZ--\r\n")
	s := b.String()

	const chunkSize = 1024
	p := NewParser(Config{})
	i := 0
	var got []byte
	for {
		pr, err := p.Next()
		tcheck(t, err, "next")
		if pr == PDone {
			break
		}
		switch pr {
		case PNeedMore:
			end := i + chunkSize
			if end > len(s) {
				end = len(s)
			}
			p.Feed([]byte(s[i:end]))
			i = end
			if i == len(s) {
				p.CloseInput()
			}
		case PBodyData, PPartDone:
			got = append(got, p.TakeBody()...)
		}
	}
	tcompare(t, string(got), body)
	if mw := p.MaxWindow(); mw > 2*chunkSize {
		t.Fatalf("max window %d for %d-byte chunks, input is not consumed incrementally", mw, chunkSize)
	}
}

// The exact sequence of progress events for a small multipart message.
func TestParserEvents(t *testing.T) {
	s := "Content-Type: multipart/mixed; boundary=XYZ\r\n\r\n--XYZ\r\n\r\nhi\r\n--XYZ--\r\n"
	p := NewParser(Config{})
	p.Feed([]byte(s))
	p.CloseInput()

	next := func(exp Progress) {
		t.Helper()
		pr, err := p.Next()
		tcheck(t, err, "next")
		tcompare(t, pr, exp)
	}

	next(PHeaders) // Root.
	tcompare(t, p.Current().MediaType, "MULTIPART")
	next(PHeaders) // First part, empty header block.
	tcompare(t, len(p.Current().Headers.Fields), 0)
	next(PBodyData)
	tcompare(t, string(p.TakeBody()), "hi")
	next(PPartDone)
	next(PDone)
	tcompare(t, p.Message().Complete, true)

	// Feeding after close of input is a caller bug.
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic feeding after close")
		}
	}()
	p.Feed([]byte("x"))
}
