// internal/document/style.go
package document

import "strings"

// Declaration is a single "property: value" pair from a declaration block.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// ParseInlineStyle parses the contents of a style attribute into a map of
// lower-cased property names to values. Later declarations override earlier
// ones unless the earlier one is !important.
func ParseInlineStyle(style string) map[string]string {
	result := make(map[string]string)
	important := make(map[string]bool)
	for _, decl := range NewStyleParser(style).Declarations() {
		if important[decl.Property] && !decl.Important {
			continue
		}
		result[decl.Property] = decl.Value
		important[decl.Property] = decl.Important
	}
	return result
}

// URLFragment extracts the reference from a CSS url(...) value, e.g.
// `url("a.png") no-repeat` -> `a.png`. It returns false when the value has
// no url() token.
func URLFragment(value string) (string, bool) {
	lower := strings.ToLower(value)
	start := strings.Index(lower, "url(")
	if start == -1 {
		return "", false
	}
	rest := value[start+len("url("):]
	end := strings.IndexByte(rest, ')')
	if end == -1 {
		return "", false
	}
	frag := strings.Trim(strings.TrimSpace(rest[:end]), `'"`)
	if frag == "" {
		return "", false
	}
	return frag, true
}

// StyleParser is a small tokenizer for bare declaration lists (the body of a
// style attribute, without the surrounding braces).
type StyleParser struct {
	input string
	pos   int
}

func NewStyleParser(input string) *StyleParser {
	return &StyleParser{input: input}
}

// Declarations consumes the whole input and returns every well-formed
// declaration. Malformed declarations are skipped up to the next ';'.
func (p *StyleParser) Declarations() []Declaration {
	var declarations []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if p.currentChar() == ';' {
			p.pos++
			continue
		}

		property, value, important := p.parseDeclaration()
		if property != "" && value != "" {
			declarations = append(declarations, Declaration{
				Property:  strings.ToLower(property),
				Value:     value,
				Important: important,
			})
		}
	}
	return declarations
}

func (p *StyleParser) parseDeclaration() (prop, val string, important bool) {
	if !isValidIdentifierStart(p.currentChar()) {
		p.skipPast(';')
		return
	}
	prop = p.parseIdentifier()
	p.consumeWhitespace()

	if p.eof() || p.currentChar() != ':' {
		p.skipPast(';')
		return "", "", false
	}
	p.pos++
	p.consumeWhitespace()

	val = p.parseValue()
	if strings.HasSuffix(strings.ToLower(val), "!important") {
		important = true
		val = strings.TrimSpace(val[:len(val)-len("!important")])
	}

	p.consumeWhitespace()
	if !p.eof() && p.currentChar() == ';' {
		p.pos++
	}
	return
}

// parseValue reads up to the next top-level ';'. Quoted strings and
// parenthesized groups (url(data:...;base64,...)) may contain semicolons.
func (p *StyleParser) parseValue() string {
	start := p.pos
	for !p.eof() {
		ch := p.currentChar()
		if ch == ';' {
			break
		}
		if ch == '"' || ch == '\'' {
			p.skipQuotedString(ch)
			continue
		}
		if ch == '(' {
			p.pos++
			p.skipBlock('(', ')')
			continue
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

func (p *StyleParser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *StyleParser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *StyleParser) consumeWhitespace() {
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
}

func (p *StyleParser) startsWith(s string) bool {
	return strings.HasPrefix(p.input[p.pos:], s)
}

func (p *StyleParser) skipComment() {
	p.pos += 2
	end := strings.Index(p.input[p.pos:], "*/")
	if end == -1 {
		p.pos = len(p.input)
		return
	}
	p.pos += end + 2
}

func (p *StyleParser) skipPast(target byte) {
	for !p.eof() {
		ch := p.currentChar()
		p.pos++
		if ch == target {
			return
		}
	}
}

func (p *StyleParser) skipBlock(open, close byte) {
	depth := 1
	for !p.eof() {
		c := p.input[p.pos]
		p.pos++
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (p *StyleParser) skipQuotedString(quote byte) {
	p.pos++
	for !p.eof() {
		ch := p.input[p.pos]
		p.pos++
		if ch == '\\' {
			if !p.eof() {
				p.pos++
			}
		} else if ch == quote {
			return
		}
	}
}

func (p *StyleParser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isValidIdentifierChar(p.currentChar()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-'
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}
