// Package thinking implements the incremental parser that splits upstream
// assistant text into structured reasoning ("thinking") segments and plain
// text, matching the <thinking>...</thinking> convention Kiro-backed models
// embed in their output stream.
//
// It is a pure function of input plus state: Feed/Flush never reach into
// global mutable state, so a Parser can be rebuilt and resumed
// anywhere. Boundary safety across network frame splits is handled by a
// carry buffer, the same idiom the Kiro executor uses when a </thinking>
// tag straddles two stream chunks.
package thinking

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Mode is the parser's current state.
type Mode int

const (
	// ModePending means no bytes have been classified yet.
	ModePending Mode = iota
	// ModeThinking means we're inside an opened <thinking> block.
	ModeThinking
	// ModeText means we've seen the real closing </thinking> and are past it.
	ModeText
	// ModePassthrough means the stream never opened with <thinking>.
	ModePassthrough
)

const (
	openTag  = "<thinking>"
	closeTag = "</thinking>"
)

// SegmentKind tags an emitted Segment.
type SegmentKind int

const (
	// Thinking marks text that belongs to a reasoning block.
	Thinking SegmentKind = iota
	// Text marks ordinary, client-visible text.
	Text
)

// Segment is one emitted, typed chunk of text.
type Segment struct {
	Kind SegmentKind
	Text string
}

// quoteChars are the characters that, adjacent to a closing tag, mark it as
// literal content rather than a real block terminator (e.g. the model
// discussing its own markup inside backticks or quotes).
const quoteChars = "`'\""

// Parser is a streaming state machine over incoming text fragments.
type Parser struct {
	mode    Mode
	carry   strings.Builder
	flushed bool

	// lastThinkByte/haveLastThinkByte remember the last byte of thinking
	// content emitted (or consumed past) in a previous Feed call, so a
	// </thinking> candidate landing at offset 0 of a new fragment can still
	// be checked against the quote character that immediately preceded it,
	// even though that byte was already flushed out and is no longer part
	// of buf.
	lastThinkByte     byte
	haveLastThinkByte bool
}

// New returns a parser in the initial pending state.
func New() *Parser {
	return &Parser{mode: ModePending}
}

// State returns the current mode, mostly useful for tests/diagnostics.
func (p *Parser) State() Mode { return p.mode }

// Feed consumes the next fragment of upstream text and returns any segments
// it can confidently emit. Bytes that might still be part of a split tag are
// retained in the carry buffer until a future Feed or Flush resolves them.
func (p *Parser) Feed(fragment string) []Segment {
	if fragment == "" {
		return nil
	}
	p.carry.WriteString(fragment)
	buf := p.carry.String()
	p.carry.Reset()

	var out []Segment

	for {
		switch p.mode {
		case ModePending:
			trimmed := strings.TrimLeft(buf, " \t\r\n")
			if trimmed == "" {
				// All whitespace so far; nothing to classify yet, hold it all.
				p.carry.WriteString(buf)
				return out
			}
			if strings.HasPrefix(trimmed, openTag) {
				// Consume everything up through the opening tag (including the
				// leading whitespace we trimmed), then enter thinking mode.
				consumed := len(buf) - len(trimmed) + len(openTag)
				buf = buf[consumed:]
				p.mode = ModeThinking
				p.haveLastThinkByte = false
				continue
			}
			if isProperPrefix(trimmed, openTag) {
				// Could still become "<thinking>" once more bytes arrive.
				p.carry.WriteString(buf)
				return out
			}
			p.mode = ModePassthrough
			continue

		case ModeThinking:
			idx, ambiguousAt, ok := p.findRealCloseTag(buf)
			if !ok {
				// No confirmed close tag yet. Keep back whichever suffix is
				// still undecided: either a partial "</thinking>" prefix, or a
				// complete tag whose neighbouring quote char hasn't arrived
				// yet (it could land as the first byte of the next fragment).
				cut := len(buf)
				if ambiguousAt >= 0 {
					cut = ambiguousAt
				} else if safe, carry := splitTrailingPrefix(buf, closeTag); carry != "" {
					cut = len(safe)
				}
				if cut > 0 {
					out = append(out, Segment{Kind: Thinking, Text: buf[:cut]})
					p.lastThinkByte = buf[cut-1]
					p.haveLastThinkByte = true
				}
				p.carry.WriteString(buf[cut:])
				return out
			}
			if idx > 0 {
				out = append(out, Segment{Kind: Thinking, Text: buf[:idx]})
				p.lastThinkByte = buf[idx-1]
				p.haveLastThinkByte = true
			}
			buf = buf[idx+len(closeTag):]
			p.mode = ModeText
			continue

		case ModeText, ModePassthrough:
			if buf != "" {
				out = append(out, Segment{Kind: Text, Text: buf})
			}
			return out
		}
	}
}

// Flush finalizes the stream: any buffered thinking text is emitted as a
// final Thinking segment (an unterminated block is preserved, not dropped);
// any buffered non-thinking text is emitted as Text. Calling Flush twice
// emits nothing the second time.
func (p *Parser) Flush() []Segment {
	if p.flushed {
		return nil
	}
	p.flushed = true

	remainder := p.carry.String()
	p.carry.Reset()
	if remainder == "" {
		return nil
	}

	switch p.mode {
	case ModeThinking:
		if remainder == closeTag && !(p.haveLastThinkByte && strings.IndexByte(quoteChars, p.lastThinkByte) >= 0) {
			// A complete close tag held back only because no byte had followed
			// it yet: at end of stream none will, so it is the real terminator.
			p.mode = ModeText
			return nil
		}
		log.Warnf("thinking: stream ended with an unterminated <thinking> block (%d bytes)", len(remainder))
		return []Segment{{Kind: Thinking, Text: remainder}}
	default:
		return []Segment{{Kind: Text, Text: remainder}}
	}
}

// findRealCloseTag returns the byte offset of the first </thinking> in buf
// that is not flanked by a quote character, and whether one was found.
//
// If a complete closing tag is found right at the end of buf, the byte that
// would decide whether it's a fake tag (a trailing quote) may simply not
// have arrived yet in this fragment. In that case ok is false and
// ambiguousAt is set to the tag's start offset, so the caller carries the
// whole tag into the next Feed instead of prematurely accepting it as real.
func (p *Parser) findRealCloseTag(buf string) (idx int, ambiguousAt int, ok bool) {
	search := 0
	for {
		rel := strings.Index(buf[search:], closeTag)
		if rel < 0 {
			return 0, -1, false
		}
		pos := search + rel
		before := byte(0)
		if pos > 0 {
			before = buf[pos-1]
		} else if p.haveLastThinkByte {
			// pos==0: the byte that would flank this tag was already flushed
			// out in a previous Feed call and isn't part of buf anymore.
			before = p.lastThinkByte
		}
		end := pos + len(closeTag)
		if end >= len(buf) {
			return 0, pos, false
		}
		after := buf[end]
		if strings.IndexByte(quoteChars, before) >= 0 || strings.IndexByte(quoteChars, after) >= 0 {
			search = end
			continue
		}
		return pos, -1, true
	}
}

// isProperPrefix reports whether s is a non-empty proper prefix of tag.
func isProperPrefix(s, tag string) bool {
	if s == "" || len(s) >= len(tag) {
		return false
	}
	return strings.HasPrefix(tag, s)
}

// splitTrailingPrefix splits buf into a safely-emittable head and a carried
// tail, where the tail is the longest suffix of buf that is a proper prefix
// of tag (so a tag split across fragments is never emitted as plain text).
func splitTrailingPrefix(buf, tag string) (safe, carry string) {
	maxCarry := len(tag) - 1
	if maxCarry > len(buf) {
		maxCarry = len(buf)
	}
	for n := maxCarry; n > 0; n-- {
		suffix := buf[len(buf)-n:]
		if strings.HasPrefix(tag, suffix) {
			return buf[:len(buf)-n], suffix
		}
	}
	return buf, ""
}
