// Package hyperlink extracts the display text and target URL from spreadsheet
// cells holding a HYPERLINK formula.
//
// Grammar (version 1):
//
//	cell      := ws? "="? ws? HYPERLINK ws? "(" ws? url-arg (ws? sep ws? label-arg)? ws? ")" ws?
//	HYPERLINK := "HYPERLINK", case-insensitive
//	sep       := "," | ";"
//	url-arg   := quoted
//	label-arg := quoted
//	quoted    := `"` ( any char except `"` | `""` )* `"`
//
// A doubled quote inside a quoted argument is an escaped quote. Cells that do
// not start with the HYPERLINK keyword followed by "(" are plain text.
package hyperlink

import (
	"strings"
	"unicode"
)

// GrammarVersion identifies the formula grammar accepted by Parse.
const GrammarVersion = 1

// Fallbacks returned by ParseLinkCell when a formula cannot be parsed.
const (
	FallbackText = "Name not found"
	FallbackURL  = "#"
)

const keyword = "HYPERLINK"

// Link is the decoded content of a cell.
type Link struct {
	Text    string
	URL     string
	Formula bool
}

// Parse decodes raw. Plain text cells return ok with an empty URL; malformed
// HYPERLINK formulas return ok=false.
func Parse(raw string) (Link, bool) {
	trimmed := strings.TrimSpace(raw)
	body := strings.TrimLeftFunc(strings.TrimPrefix(trimmed, "="), unicode.IsSpace)
	if len(body) < len(keyword) || !strings.EqualFold(body[:len(keyword)], keyword) {
		return Link{Text: trimmed}, true
	}

	p := &parser{src: body, pos: len(keyword)}
	p.skipSpace()
	if !p.consume('(') {
		return Link{Text: trimmed}, true
	}
	p.skipSpace()
	url, ok := p.quoted()
	if !ok {
		return Link{}, false
	}
	p.skipSpace()

	text := url
	if p.consume(',') || p.consume(';') {
		p.skipSpace()
		label, ok := p.quoted()
		if !ok {
			return Link{}, false
		}
		text = label
		p.skipSpace()
	}
	if !p.consume(')') {
		return Link{}, false
	}
	p.skipSpace()
	if !p.done() {
		return Link{}, false
	}
	return Link{Text: strings.TrimSpace(text), URL: strings.TrimSpace(url), Formula: true}, true
}

// ParseLinkCell returns the display text and URL of raw, falling back to
// FallbackText and FallbackURL for malformed formulas.
func ParseLinkCell(raw string) (displayText, url string) {
	link, ok := Parse(raw)
	if !ok {
		return FallbackText, FallbackURL
	}
	return link.Text, link.URL
}

type parser struct {
	src string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.done() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) consume(b byte) bool {
	if !p.done() && p.src[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *parser) quoted() (string, bool) {
	if !p.consume('"') {
		return "", false
	}
	var sb strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		p.pos++
		if c != '"' {
			sb.WriteByte(c)
			continue
		}
		if p.consume('"') {
			sb.WriteByte('"')
			continue
		}
		return sb.String(), true
	}
	return "", false
}
