package message

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/mjl-/mimefeed/chunk"
	"github.com/mjl-/mimefeed/mlog"
)

var xlog = mlog.New("message")

// BodyType tells how a part's body is structured.
type BodyType int

const (
	BodyOpaque    BodyType = iota // Undivided decoded byte stream.
	BodyMultipart                 // Subdivided into Parts.
)

func (t BodyType) String() string {
	if t == BodyMultipart {
		return "multipart"
	}
	return "opaque"
}

func (t BodyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Part represents a whole mail message or a single part of a multipart
// message: the root is structurally identical to a nested part. A part is
// owned by its enclosing part, there is no sharing between parts.
type Part struct {
	Headers HeaderBlock

	MediaType         string            `json:",omitempty"` // From Content-Type, upper case, e.g. "TEXT". Can be empty because content-type may be absent, the part may then be treated as TEXT/PLAIN.
	MediaSubType      string            `json:",omitempty"` // From Content-Type, upper case, e.g. "PLAIN".
	ContentTypeParams map[string]string `json:",omitempty"` // E.g. "boundary" for multipart. Lower-case keys, original case values.
	Encoding          TransferEncoding  // From Content-Transfer-Encoding, identity when absent or unrecognized.

	Type  BodyType
	Parts []*Part `json:",omitempty"` // Sub parts, set for multipart, in original order.
	Data  []byte  `json:",omitempty"` // Decoded opaque body, collected by Parse. Parts streamed through a Parser deliver body bytes through TakeBody instead.

	// BodyErr is the decoding error that terminated this part's opaque body,
	// e.g. invalid base64. It is scoped to this body: headers and sibling
	// parts remain usable.
	BodyErr error `json:"-"`

	// Err is the structural error that aborted parsing while this part was
	// under construction.
	Err error `json:"-"`

	Complete bool // Whether the body's terminal condition was observed.
}

// Message is the root of a parsed message. It has the same recursive shape as
// a nested part.
type Message = Part

// Config holds parsing options, passed explicitly to keep parsing reentrant.
// The zero value is the tolerant default used for real-world mail.
type Config struct {
	// Maximum header line length. 0 means the default of 8k. Messages must
	// not have lines longer than 1000 bytes, in practice they do.
	MaxLineLength int

	// Pedantic rejects deviations that are tolerated by default: bare line
	// feeds, junk header lines, stray quoted-printable escapes. Also
	// enforced through the package-level Pedantic variable.
	Pedantic bool
}

func (c Config) maxLineLength() int {
	if c.MaxLineLength > 0 {
		return c.MaxLineLength
	}
	if c.Pedantic || Pedantic {
		return 1000
	}
	return 8 * 1024
}

// Progress is what a call to Parser.Next produced.
type Progress int

const (
	PNeedMore Progress = iota // Feed more input, or close it, then call Next again.
	PHeaders                  // A part's header block is complete, see Current.
	PBodyData                 // Decoded body bytes are available through TakeBody.
	PPartDone                 // Current's body reached its terminal condition. TakeBody returns any final decoded bytes.
	PDone                     // The message is complete.
)

type frameState int

const (
	stHeaders frameState = iota
	stBody                // Opaque body, streaming decoded bytes.
	stParts               // Multipart, between children: scanning for the next delimiter, discarding preamble and trailing bytes.
)

type frame struct {
	part    *Part
	state   frameState
	hr      *headerReader
	enc     *boundScanner // Scanner for the enclosing boundary. Nil for the root, whose body is bounded by end of input.
	own     *boundScanner // Scanner for this part's own boundary, multipart only.
	dec     decoder       // Transfer decoder, opaque body only.
	pending bool          // A mid delimiter was consumed, the next child's headers follow.
}

// Parser incrementally parses one message from caller-fed chunks. Feed and
// CloseInput supply input, Next advances parsing. Nothing blocks and no
// concurrent work is spawned: when input runs out Next returns PNeedMore.
//
// Memory stays bounded regardless of message size as long as body bytes are
// taken (or ignored) per PBodyData: the parser buffers at most one lookahead
// window plus one decoded span.
type Parser struct {
	cfg      Config
	c        *chunk.Cursor
	root     *Part
	cur      *Part
	stack    []*frame
	out      []byte // Decoded bytes for TakeBody, valid until the next call to Next.
	err      error  // Sticky structural error.
	epilogue bool   // Root multipart closed, discarding input until end.
	done     bool
}

// NewParser returns a parser for a single message.
func NewParser(cfg Config) *Parser {
	root := &Part{}
	p := &Parser{
		cfg:  cfg,
		c:    chunk.NewCursor(),
		root: root,
		cur:  root,
	}
	p.stack = []*frame{{part: root, state: stHeaders, hr: p.newHeaderReader()}}
	return p
}

func (p *Parser) newHeaderReader() *headerReader {
	return &headerReader{maxLine: p.cfg.maxLineLength(), pedantic: p.cfg.Pedantic}
}

// Feed appends a chunk of raw message bytes, of any size.
func (p *Parser) Feed(buf []byte) {
	p.c.Feed(buf)
}

// CloseInput signals that no more bytes will arrive. Required: end of input
// is never inferred from an empty chunk.
func (p *Parser) CloseInput() {
	p.c.CloseInput()
}

// Message returns the message tree as parsed so far. Also usable after an
// error, fully parsed parts remain accessible.
func (p *Parser) Message() *Message {
	return p.root
}

// Current returns the part the last progress event applied to.
func (p *Parser) Current() *Part {
	return p.cur
}

// TakeBody returns the decoded body bytes produced by the last PBodyData or
// PPartDone. The bytes are valid until the next call to Next: take them or
// lose them, the parser does not accumulate decoded output.
func (p *Parser) TakeBody() []byte {
	return p.out
}

// MaxWindow returns the high-water mark of buffered input, for verifying
// bounded memory use.
func (p *Parser) MaxWindow() int {
	return p.c.MaxWindow()
}

// Next advances parsing until it produces a progress event. Structural
// errors (truncated headers, missing boundary parameter, no closing
// boundary) are returned and sticky; the tree built so far stays available
// through Message.
func (p *Parser) Next() (Progress, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.out = p.out[:0]
	for {
		if p.done {
			return PDone, nil
		}
		if p.epilogue {
			// Trailing bytes after the root's closing delimiter are
			// discarded per MIME convention.
			w := p.c.Window()
			p.c.Consume(len(w))
			if p.c.AtEnd() {
				p.done = true
				return PDone, nil
			}
			return PNeedMore, nil
		}

		f := p.stack[len(p.stack)-1]
		var pr Progress
		var err error
		switch f.state {
		case stHeaders:
			pr, err = p.stepHeaders(f)
		case stBody:
			pr, err = p.stepBody(f)
		case stParts:
			pr, err = p.stepParts(f)
		}
		if err == ErrNeedMore {
			return PNeedMore, nil
		}
		if err != nil {
			return 0, err
		}
		if pr != pContinue {
			return pr, nil
		}
	}
}

// pContinue is internal: the state machine made progress without an event.
const pContinue Progress = -1

func (p *Parser) fail(part *Part, err error) error {
	part.Err = err
	p.err = err
	return err
}

func (p *Parser) stepHeaders(f *frame) (Progress, error) {
	hb, err := f.hr.read(p.c)
	if err == ErrNeedMore {
		return 0, err
	}
	if err != nil {
		return 0, p.fail(f.part, err)
	}
	f.part.Headers = hb
	f.hr = nil

	var params map[string]string
	ct := hb.Get("Content-Type")
	if ct != "" {
		var mt string
		mt, params, err = mime.ParseMediaType(ct)
		if err != nil {
			if p.cfg.Pedantic || Pedantic {
				return 0, p.fail(f.part, fmt.Errorf("%w: %v: %q", ErrBadContentType, err, ct))
			}
			// Try parsing just a content-type, ignoring parameters. We
			// cannot recover a multipart this way, we would have no
			// boundary.
			base := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
			t := strings.SplitN(base, "/", 2)
			if len(t) == 2 && isToken(t[0]) && !strings.EqualFold(t[0], "multipart") && isToken(t[1]) {
				f.part.MediaType = strings.ToUpper(t[0])
				f.part.MediaSubType = strings.ToUpper(t[1])
			} else {
				f.part.MediaType = "APPLICATION"
				f.part.MediaSubType = "OCTET-STREAM"
			}
			xlog.Debugx("malformed content-type, attempting to recover and continuing", err,
				mlog.Field("contenttype", ct),
				mlog.Field("mediatype", f.part.MediaType),
				mlog.Field("mediasubtype", f.part.MediaSubType))
		} else {
			t := strings.SplitN(strings.ToUpper(mt), "/", 2)
			if len(t) != 2 {
				if p.cfg.Pedantic || Pedantic {
					return 0, p.fail(f.part, fmt.Errorf("%w: %q", ErrBadContentType, mt))
				}
				xlog.Debug("malformed media-type, ignoring and continuing", mlog.Field("type", mt))
				f.part.MediaType = "APPLICATION"
				f.part.MediaSubType = "OCTET-STREAM"
			} else {
				f.part.MediaType = t[0]
				f.part.MediaSubType = t[1]
				f.part.ContentTypeParams = params
			}
		}
	}
	f.part.Encoding = ParseTransferEncoding(hb.Get("Content-Transfer-Encoding"))

	if f.part.MediaType == "MULTIPART" {
		token := params["boundary"]
		if token == "" {
			return 0, p.fail(f.part, ErrMissingBoundaryParam)
		}
		f.part.Type = BodyMultipart
		f.own = newBoundScanner(p.c, token)
		f.state = stParts
	} else {
		f.part.Type = BodyOpaque
		f.dec = newTransferDecoder(f.part.Encoding, p.cfg.Pedantic)
		f.state = stBody
	}
	p.cur = f.part
	return PHeaders, nil
}

func (p *Parser) stepBody(f *frame) (Progress, error) {
	if f.enc == nil {
		// Root opaque body, bounded only by end of input.
		w := p.c.Window()
		if len(w) > 0 {
			p.out = p.decodeSpan(f, w)
			p.c.Consume(len(w))
			if len(p.out) > 0 {
				p.cur = f.part
				return PBodyData, nil
			}
			return pContinue, nil
		}
		if !p.c.Closed() {
			return 0, ErrNeedMore
		}
		p.out = p.closeBody(f)
		p.finishPart(f)
		p.done = true
		p.cur = f.part
		return PDone, nil
	}

	kind, data, err := f.enc.next()
	if err == ErrNeedMore {
		return 0, err
	}
	if err != nil {
		// End of input while the enclosing multipart still awaited its
		// closing delimiter.
		parent := p.stack[len(p.stack)-2]
		return 0, p.fail(parent.part, ErrUnterminatedMultipart)
	}
	switch kind {
	case boundData:
		p.out = p.decodeSpan(f, data)
		if len(p.out) > 0 {
			p.cur = f.part
			return PBodyData, nil
		}
		return pContinue, nil
	case boundMid:
		p.out = p.closeBody(f)
		p.finishPart(f)
		parent := p.stack[len(p.stack)-1]
		parent.pending = true
		p.cur = f.part
		return PPartDone, nil
	default: // boundFinal
		// The closing delimiter ends both this part and the enclosing
		// multipart's list of parts.
		p.out = p.closeBody(f)
		p.finishPart(f)
		parent := p.stack[len(p.stack)-1]
		parent.part.Complete = true
		p.pop()
		p.cur = f.part
		return PPartDone, nil
	}
}

func (p *Parser) stepParts(f *frame) (Progress, error) {
	if f.pending {
		f.pending = false
		np := &Part{}
		f.part.Parts = append(f.part.Parts, np)
		p.stack = append(p.stack, &frame{part: np, state: stHeaders, hr: p.newHeaderReader(), enc: f.own})
		return pContinue, nil
	}
	kind, _, err := f.own.next()
	if err == ErrNeedMore {
		return 0, err
	}
	if err != nil {
		return 0, p.fail(f.part, ErrUnterminatedMultipart)
	}
	switch kind {
	case boundData:
		// Preamble before the first delimiter, or trailing bytes after a
		// nested part's closing delimiter. Discarded.
		return pContinue, nil
	case boundMid:
		f.pending = true
		return pContinue, nil
	default: // boundFinal
		f.part.Complete = true
		p.pop()
		p.cur = f.part
		return PPartDone, nil
	}
}

// decodeSpan decodes a raw content span for an opaque part. A decoding error
// terminates this body with an error marker and switches to discarding, so
// scanning continues to the part's boundary without aborting sibling parts.
func (p *Parser) decodeSpan(f *frame, data []byte) []byte {
	out, err := f.dec.decode(p.out[:0], data)
	if err != nil && f.part.BodyErr == nil {
		f.part.BodyErr = err
		f.dec = discardDecoder{}
		xlog.Debugx("body decode error, discarding rest of part body", err)
	}
	return out
}

func (p *Parser) closeBody(f *frame) []byte {
	out, err := f.dec.close(p.out[:0])
	if err != nil && f.part.BodyErr == nil {
		f.part.BodyErr = err
	}
	return out
}

func (p *Parser) finishPart(f *frame) {
	f.part.Complete = true
	p.pop()
}

func (p *Parser) pop() {
	p.stack = p.stack[:len(p.stack)-1]
	if len(p.stack) == 0 {
		// Root finished. Any remaining input is epilogue.
		p.epilogue = true
	}
}

// isToken reports whether s is an rfc 2045 token, usable as media type or
// subtype.
func isToken(s string) bool {
	const separators = `()<>@,;:\\"/[]?= `
	for _, c := range s {
		if c < 0x20 || c >= 0x80 || strings.ContainsRune(separators, c) {
			return false
		}
	}
	return len(s) > 0
}

// Parse reads a complete message from r, feeding the parser in chunks and
// collecting decoded opaque bodies in memory in Part.Data. For
// bounded-memory streaming of large messages, drive a Parser directly.
func Parse(cfg Config, r io.Reader) (*Message, error) {
	p := NewParser(cfg)
	buf := make([]byte, 8*1024)
	for {
		pr, err := p.Next()
		if err != nil {
			return p.Message(), err
		}
		switch pr {
		case PNeedMore:
			n, err := r.Read(buf)
			if n > 0 {
				p.Feed(buf[:n])
			}
			if err == io.EOF {
				p.CloseInput()
			} else if err != nil {
				return p.Message(), err
			}
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
