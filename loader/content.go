package loader

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Decoder turns the raw codes of a shown string into text for one font.
type Decoder interface {
	Decode(raw string) string
}

// PageText recovers readable text from a decoded page content stream by
// following the text showing operators (Tj, TJ, ' and "). Line breaks
// follow the text positioning operators.
func PageText(content []byte) string {
	return FontText(content, nil)
}

// FontText is PageText with per-font decoders keyed by resource name
// (the operand of Tf). Strings shown in a font without a decoder, or whose
// decoding is not valid UTF-8, are read as single-byte or UTF-16 text.
func FontText(content []byte, fonts map[string]Decoder) string {
	p := &contentParser{src: content, fonts: fonts}
	p.run()
	return p.text()
}

type operand struct {
	kind  byte // 's' string, 'n' number, 'a' array, 'm' name, 'o' other
	str   string
	num   float64
	items []operand
}

type contentParser struct {
	src   []byte
	pos   int
	stack []operand
	out   strings.Builder
	lastY float64
	hasY  bool
	fonts map[string]Decoder
	font  Decoder
}

func (p *contentParser) show(raw string) {
	if p.font != nil {
		if s := p.font.Decode(raw); utf8.ValidString(s) {
			p.out.WriteString(s)
			return
		}
	}
	p.out.WriteString(decodeBytes([]byte(raw)))
}

func (p *contentParser) run() {
	for {
		tok, ok := p.next()
		if !ok {
			return
		}
		switch tok.kind {
		case 'k':
			p.operator(tok.str)
			p.stack = p.stack[:0]
		default:
			p.stack = append(p.stack, tok)
		}
	}
}

func (p *contentParser) operator(op string) {
	switch op {
	case "BT":
		p.hasY = false
	case "ET":
		p.newline()
	case "Tf":
		p.font = nil
		if name, ok := p.arg(0, 'm'); ok {
			p.font = p.fonts[name.str]
		}
	case "Tj":
		if s, ok := p.arg(0, 's'); ok {
			p.show(s.str)
		}
	case "'":
		p.newline()
		if s, ok := p.arg(0, 's'); ok {
			p.show(s.str)
		}
	case "\"":
		p.newline()
		if s, ok := p.arg(2, 's'); ok {
			p.show(s.str)
		}
	case "TJ":
		a, ok := p.arg(0, 'a')
		if !ok {
			return
		}
		for _, it := range a.items {
			switch {
			case it.kind == 's':
				p.show(it.str)
			case it.kind == 'n' && it.num < -200:
				p.space()
			}
		}
	case "T*":
		p.newline()
	case "Td", "TD":
		if len(p.stack) < 2 {
			return
		}
		tx, ty := p.stack[len(p.stack)-2], p.stack[len(p.stack)-1]
		if ty.kind == 'n' && ty.num != 0 {
			p.newline()
		} else if tx.kind == 'n' && tx.num != 0 {
			p.space()
		}
	case "Tm":
		if len(p.stack) < 6 || p.stack[len(p.stack)-1].kind != 'n' {
			return
		}
		y := p.stack[len(p.stack)-1].num
		if p.hasY && y != p.lastY {
			p.newline()
		} else if p.hasY {
			p.space()
		}
		p.lastY, p.hasY = y, true
	case "ID":
		p.skipInlineImage()
	}
}

// arg returns the i-th operand from the bottom of the stack if it has kind.
func (p *contentParser) arg(i int, kind byte) (operand, bool) {
	if i >= len(p.stack) || p.stack[i].kind != kind {
		return operand{}, false
	}
	return p.stack[i], true
}

func (p *contentParser) newline() {
	s := p.out.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		p.out.WriteByte('\n')
	}
}

func (p *contentParser) space() {
	s := p.out.String()
	if s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
		p.out.WriteByte(' ')
	}
}

func (p *contentParser) text() string {
	lines := strings.Split(p.out.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

// next returns the next token. Operators have kind 'k'.
func (p *contentParser) next() (operand, bool) {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case isWhite(c):
			p.pos++
		case c == '%':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' && p.src[p.pos] != '\r' {
				p.pos++
			}
		case c == '(':
			p.pos++
			return operand{kind: 's', str: string(p.literal())}, true
		case c == '<' && p.peek(1) == '<':
			p.pos += 2
			return operand{kind: 'o'}, true
		case c == '>' && p.peek(1) == '>':
			p.pos += 2
			return operand{kind: 'o'}, true
		case c == '<':
			p.pos++
			return operand{kind: 's', str: string(p.hex())}, true
		case c == '[':
			p.pos++
			return p.array(), true
		case c == ']':
			p.pos++
			return operand{kind: ']'}, true
		case c == '/':
			p.pos++
			return operand{kind: 'm', str: p.word()}, true
		default:
			w := p.word()
			if w == "" {
				p.pos++
				continue
			}
			if n, err := strconv.ParseFloat(w, 64); err == nil {
				return operand{kind: 'n', num: n}, true
			}
			if w == "true" || w == "false" || w == "null" {
				return operand{kind: 'o'}, true
			}
			return operand{kind: 'k', str: w}, true
		}
	}
	return operand{}, false
}

func (p *contentParser) peek(off int) byte {
	if p.pos+off < len(p.src) {
		return p.src[p.pos+off]
	}
	return 0
}

func (p *contentParser) word() string {
	start := p.pos
	for p.pos < len(p.src) && !isWhite(p.src[p.pos]) && !isDelim(p.src[p.pos]) {
		p.pos++
	}
	return string(p.src[start:p.pos])
}

func (p *contentParser) array() operand {
	a := operand{kind: 'a'}
	for {
		tok, ok := p.next()
		if !ok || tok.kind == ']' {
			return a
		}
		if tok.kind == 'k' {
			continue
		}
		a.items = append(a.items, tok)
	}
}

// literal reads a (string) body after the opening parenthesis.
func (p *contentParser) literal() []byte {
	var b []byte
	depth := 1
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return b
			}
		case '\\':
			if p.pos >= len(p.src) {
				return b
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case 'n':
				b = append(b, '\n')
			case 'r':
				b = append(b, '\r')
			case 't':
				b = append(b, '\t')
			case 'b':
				b = append(b, '\b')
			case 'f':
				b = append(b, '\f')
			case '\r':
				if p.peek(0) == '\n' {
					p.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for i := 0; i < 2 && p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '7'; i++ {
					v = v*8 + int(p.src[p.pos]-'0')
					p.pos++
				}
				b = append(b, byte(v))
			default:
				b = append(b, e)
			}
			continue
		}
		b = append(b, c)
	}
	return b
}

// hex reads a <hex string> body after the opening bracket.
func (p *contentParser) hex() []byte {
	var digits []byte
	for p.pos < len(p.src) && p.src[p.pos] != '>' {
		if c := p.src[p.pos]; !isWhite(c) {
			digits = append(digits, c)
		}
		p.pos++
	}
	p.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage moves past binary inline image data up to EI.
func (p *contentParser) skipInlineImage() {
	if i := bytes.Index(p.src[p.pos:], []byte("EI")); i >= 0 {
		p.pos += i + 2
		return
	}
	p.pos = len(p.src)
}

// decodeBytes reads UTF-16BE strings with a byte order mark and treats
// everything else as single-byte text.
func decodeBytes(b []byte) string {
	if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
