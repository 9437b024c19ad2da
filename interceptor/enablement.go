package interceptor

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"gorged/models"
)

// Mode is the effect of an enablement rule.
type Mode int

const (
	Enable Mode = iota + 1
	Disable
)

func (m Mode) String() string {
	switch m {
	case Enable:
		return "enable"
	case Disable:
		return "disable"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func parseMode(token string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "enable":
		return Enable, true
	case "disable":
		return Disable, true
	}
	return 0, false
}

// Rule overrides the default enablement of every interceptor whose id the
// pattern matches (unanchored).
type Rule struct {
	Mode    Mode
	Pattern string

	re *regexp2.Regexp
}

func (r Rule) String() string { return r.Mode.String() + ":" + r.Pattern }

// Matches reports whether the rule applies to the interceptor id.
func (r Rule) Matches(id string) bool {
	return r.re != nil && search(r.re, id)
}

// Rules is an ordered rule set; the first matching rule wins.
type Rules []Rule

// ParseRule parses one `<mode>:<regex>` line.
func ParseRule(line string) (Rule, error) {
	fail := func(format string, args ...interface{}) (Rule, error) {
		return Rule{}, &models.ConfigurationError{Component: "enablement", Subject: line, Err: fmt.Errorf(format, args...)}
	}
	token, pattern, found := strings.Cut(strings.TrimSpace(line), ":")
	if !found {
		return fail("expected <mode>:<regex>")
	}
	mode, ok := parseMode(token)
	if !ok {
		return fail("unrecognized mode %q (want enable or disable)", strings.TrimSpace(token))
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fail("empty pattern")
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return fail("compiling pattern: %w", err)
	}
	return Rule{Mode: mode, Pattern: pattern, re: re}, nil
}

// ParseRules parses rule lines in order. Blank lines and lines starting with
// '#' are skipped. The first malformed line aborts parsing.
func ParseRules(lines []string) (Rules, error) {
	var rules Rules
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		rule, err := ParseRule(trimmed)
		if err != nil {
			if ce, ok := err.(*models.ConfigurationError); ok {
				ce.Subject = fmt.Sprintf("line %d: %s", i+1, trimmed)
			}
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SplitRuleLines splits a newline separated rule block, the form an
// environment variable carries.
func SplitRuleLines(block string) []string {
	return strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n")
}

// Lookup returns the first rule matching id.
func (rs Rules) Lookup(id string) (Rule, bool) {
	for _, r := range rs {
		if r.Matches(id) {
			return r, true
		}
	}
	return Rule{}, false
}

// Resolve returns the effective enablement of ic under rs.
func (rs Rules) Resolve(ic *Interceptor) bool {
	if r, ok := rs.Lookup(ic.ID); ok {
		return r.Mode == Enable
	}
	return ic.DefaultEnabled
}

// Resolve is Rules.Resolve as a function.
func Resolve(ic *Interceptor, rules Rules) bool {
	return rules.Resolve(ic)
}

// Strings renders the rules back to their line form.
func (rs Rules) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}
