package agent

import (
	"strings"
)

// Section is a recognised header with its accepted spellings.
type Section struct {
	Key     string
	Aliases []string
}

// Parser extracts bullet items under known section headers.
type Parser struct {
	sections []Section
	byAlias  map[string]string
}

// NewParser builds a parser for the given sections.
func NewParser(sections ...Section) *Parser {
	p := &Parser{sections: sections, byAlias: make(map[string]string)}
	for _, s := range sections {
		for _, a := range s.Aliases {
			p.byAlias[strings.ToLower(a)] = s.Key
		}
	}
	return p
}

// Keys returns the canonical section keys in declaration order.
func (p *Parser) Keys() []string {
	keys := make([]string, len(p.sections))
	for i, s := range p.sections {
		keys[i] = s.Key
	}
	return keys
}

// Parse scans text for section headers, matched case-insensitively, and
// collects the bullet-like lines below each one. It never fails: text with
// no recognised header yields an empty, degraded result.
func (p *Parser) Parse(text string) Structured {
	out := Structured{Sections: map[string][]string{}}
	current := ""
	found := false

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if key, rest, ok := p.header(line); ok {
			current = key
			found = true
			if _, seen := out.Sections[key]; !seen {
				out.Sections[key] = []string{}
			}
			if rest != "" {
				out.Sections[key] = append(out.Sections[key], rest)
			}
			continue
		}
		if current == "" {
			continue
		}
		if item, ok := bulletText(line); ok && item != "" {
			out.Sections[current] = append(out.Sections[current], item)
		}
	}

	if !found {
		return Structured{Sections: map[string][]string{}, Degraded: true}
	}
	return out
}

// header reports whether line names a known section. Text after a colon on
// the header line is returned as rest.
func (p *Parser) header(line string) (key, rest string, ok bool) {
	s := strings.TrimLeft(line, "# ")
	s = stripEnumeration(s)
	name, after, _ := strings.Cut(s, ":")
	name = strings.Trim(name, "*_ ")
	key, ok = p.byAlias[strings.ToLower(name)]
	if !ok {
		return "", "", false
	}
	return key, strings.Trim(after, "*_ "), true
}

// bulletText strips a list marker. Lines without one are not items.
func bulletText(line string) (string, bool) {
	for _, m := range []string{"- ", "* ", "+ ", "• "} {
		if strings.HasPrefix(line, m) {
			return strings.TrimSpace(line[len(m):]), true
		}
	}
	if s := stripEnumeration(line); s != line {
		return strings.TrimSpace(s), true
	}
	return "", false
}

// stripEnumeration removes a leading "1." or "1)" marker.
func stripEnumeration(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
		return s
	}
	return strings.TrimSpace(s[i+1:])
}
