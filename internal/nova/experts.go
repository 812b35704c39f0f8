package nova

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/szaher/nova/internal/iteration"
)

// ExpertFilter reports whether a cleaned line from the expertise-assembly
// response names an expert domain.
type ExpertFilter func(line string) bool

// minExpertLen is the shortest accepted domain name, in runes.
const minExpertLen = 3

// preambleTokens mark lines that introduce a list rather than name a domain.
var preambleTokens = []string{"domain", "expert", "expertise", "specialist", "following", "we need", "required"}

// DefaultExpertFilter drops lines shorter than three characters and lines
// that start, case-insensitively, with a preamble token such as "domain"
// or "we need".
func DefaultExpertFilter(line string) bool {
	if utf8.RuneCountInString(line) < minExpertLen {
		return false
	}
	lower := strings.ToLower(line)
	for _, tok := range preambleTokens {
		if strings.HasPrefix(lower, tok) {
			return false
		}
	}
	return true
}

// CompileExpertFilter compiles an expr-lang boolean expression into an
// ExpertFilter. The expression sees line (the cleaned line) and lower (the
// same, lower-cased), e.g.
//
//	len(line) >= 2 && !(lower startsWith "experts")
func CompileExpertFilter(source string) (ExpertFilter, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("empty expert filter")
	}
	program, err := expr.Compile(source, expr.Env(filterEnv("")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expert filter compile error: %w", err)
	}
	return func(line string) bool {
		return runFilter(program, line)
	}, nil
}

func filterEnv(line string) map[string]any {
	return map[string]any{"line": line, "lower": strings.ToLower(line)}
}

func runFilter(program *vm.Program, line string) bool {
	out, err := expr.Run(program, filterEnv(line))
	if err != nil {
		return false
	}
	keep, _ := out.(bool)
	return keep
}

// ParseExperts extracts the distinct expert domains from text. Each line is
// stripped of list markers and surrounding punctuation, then kept if filter
// accepts it. Duplicates, compared case-insensitively, keep their first
// position. limit > 0 caps the result.
func ParseExperts(text string, filter ExpertFilter, limit int) []string {
	if filter == nil {
		filter = DefaultExpertFilter
	}
	experts := []string{}
	seen := map[string]bool{strings.ToLower(iteration.ContinuityKey): true}
	for _, raw := range strings.Split(text, "\n") {
		line := cleanExpertLine(raw)
		if line == "" || !filter(line) {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		experts = append(experts, line)
		if limit > 0 && len(experts) == limit {
			break
		}
	}
	return experts
}

// cleanExpertLine removes bullet and enumeration markers and trims
// punctuation and spaces from both ends.
func cleanExpertLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*+•#> \t")
	if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		s = s[i+1:]
	}
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}
