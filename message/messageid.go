package message

import (
	"errors"
	"fmt"
	"strings"
)

var errBadMessageID = errors.New("not a message-id")

// ParseMessageIDs parses a header value holding one or more angle-bracketed
// message-ids, as in References. The ids are returned without <>, otherwise
// verbatim. Ids may be separated by whitespace only; anything else between or
// around them is an error, as is an unclosed bracket.
func ParseMessageIDs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	var ids []string
	state := 0 // 0 before first id, 1 inside brackets, 2 between ids.
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case 0:
			if c != '<' {
				return nil, fmt.Errorf("%w: missing <", errBadMessageID)
			}
			start = i + 1
			state = 1
		case 1:
			if c == '>' {
				ids = append(ids, s[start:i])
				state = 2
			}
		case 2:
			switch c {
			case ' ', '\t', '\r', '\n':
			case '<':
				start = i + 1
				state = 1
			default:
				return nil, fmt.Errorf("%w: junk between ids", errBadMessageID)
			}
		}
	}
	if state == 0 {
		return nil, fmt.Errorf("%w: no id found", errBadMessageID)
	}
	if state == 1 {
		return nil, fmt.Errorf("%w: missing >", errBadMessageID)
	}
	return ids, nil
}

// ParseMessageID parses a header value holding exactly one message-id, as in
// Message-ID and In-Reply-To.
func ParseMessageID(s string) (string, error) {
	ids, err := ParseMessageIDs(s)
	if err != nil {
		return "", err
	}
	if len(ids) > 1 {
		return "", fmt.Errorf("%w: multiple ids", errBadMessageID)
	}
	return ids[0], nil
}

// MessageID returns the id from the Message-ID header field, without <>.
func (h HeaderBlock) MessageID() (string, error) {
	v := h.Get("Message-ID")
	if v == "" {
		return "", fmt.Errorf("%w: no message-id header", errBadMessageID)
	}
	return ParseMessageID(v)
}

// ReferencedIDs returns the message-ids referenced by the References header
// field(s), in order. When no usable References are present, In-Reply-To is
// the fallback. Header values that do not parse as an id list are skipped,
// threading info from other fields should survive one mangled field.
func (h HeaderBlock) ReferencedIDs() []string {
	var ids []string
	for _, v := range h.Values("References") {
		l, err := ParseMessageIDs(v)
		if err != nil {
			continue
		}
		ids = append(ids, l...)
	}
	if len(ids) == 0 {
		for _, v := range h.Values("In-Reply-To") {
			l, err := ParseMessageIDs(v)
			if err == nil {
				return l
			}
		}
	}
	return ids
}
