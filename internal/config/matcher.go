package config

import (
	"fmt"
	"strings"

	"github.com/dnsscience/tacodnsd/internal/zonematch"
)

// parseMatchers parses a comma-separated matcher-expression list:
//
//	matchers := matcher (,matcher)*
//	matcher  := label (.label)*
//	label    := *** | ** | * | /regex/ | [A-Za-z0-9_-]{1,63}
func parseMatchers(expr string) ([]zonematch.Matcher, error) {
	p := &matcherParser{s: expr}

	var matchers []zonematch.Matcher
	for {
		m, err := p.parseMatcher()
		if err != nil {
			return nil, fmt.Errorf("config: matcher expression %q: %w", expr, err)
		}
		matchers = append(matchers, m)

		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}

	if p.pos != len(p.s) {
		return nil, fmt.Errorf("config: matcher expression %q: unexpected character at %d", expr, p.pos)
	}
	return matchers, nil
}

type matcherParser struct {
	s   string
	pos int
}

func (p *matcherParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *matcherParser) parseMatcher() (zonematch.Matcher, error) {
	var m zonematch.Matcher
	for {
		label, err := p.parseLabel()
		if err != nil {
			return nil, err
		}
		m = append(m, label)

		if p.peek() == '.' {
			p.pos++
			continue
		}
		break
	}
	return m, nil
}

func (p *matcherParser) parseLabel() (zonematch.Label, error) {
	rest := p.s[p.pos:]
	switch {
	case strings.HasPrefix(rest, "***"):
		p.pos += 3
		return zonematch.AllWildcard, nil
	case strings.HasPrefix(rest, "**"):
		p.pos += 2
		return zonematch.SubWildcard, nil
	case strings.HasPrefix(rest, "*"):
		p.pos++
		return zonematch.Wildcard, nil
	case p.peek() == '/':
		return p.parseRegex()
	default:
		return p.parseLiteral()
	}
}

// parseRegex consumes /pattern/, where a backslash escapes the following
// character. Only \/ is unescaped when building the compiled pattern; every
// other backslash sequence (including \.) is passed through to regexp.Compile
// unchanged. A pattern that still contains a literal \. after that pass
// would have to match across label boundaries ("eager"), which has no
// defined semantics here, so it is rejected at load time.
func (p *matcherParser) parseRegex() (zonematch.Label, error) {
	start := p.pos
	p.pos++ // leading '/'

	var raw strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '\\' {
			if p.pos+1 >= len(p.s) {
				return zonematch.Label{}, fmt.Errorf("dangling escape in regex at %d", p.pos)
			}
			raw.WriteByte(c)
			raw.WriteByte(p.s[p.pos+1])
			p.pos += 2
			continue
		}
		if c == '/' {
			break
		}
		raw.WriteByte(c)
		p.pos++
	}
	if p.pos >= len(p.s) || p.s[p.pos] != '/' {
		return zonematch.Label{}, fmt.Errorf("unterminated regex starting at %d", start)
	}
	p.pos++ // trailing '/'

	pattern := strings.ReplaceAll(raw.String(), `\/`, `/`)
	eager := strings.Contains(pattern, `\.`)

	label, err := zonematch.NewRegex(pattern, eager)
	if err != nil {
		return zonematch.Label{}, err
	}
	return label, nil
}

func (p *matcherParser) parseLiteral() (zonematch.Label, error) {
	start := p.pos
	for p.pos < len(p.s) && isLabelChar(p.s[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return zonematch.Label{}, fmt.Errorf("expected a label at %d", start)
	}
	if p.pos-start > 63 {
		return zonematch.Label{}, fmt.Errorf("label at %d exceeds 63 characters", start)
	}
	return zonematch.NewLiteral(p.s[start:p.pos]), nil
}

func isLabelChar(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_'
}
