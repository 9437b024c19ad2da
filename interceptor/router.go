package interceptor

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single pattern evaluation. regexp2 backtracks, so a
// pathological URL could otherwise stall a response.
const MatchTimeout = 100 * time.Millisecond

func compilePattern(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// search is an unanchored regex search. A timed-out match counts as no match.
func search(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// Matches reports whether the normalized url is routed to ic.
func Matches(url string, ic *Interceptor) bool {
	return search(ic.pattern, url)
}

// DomainPattern escapes each domain and joins them with alternation. The
// result matches any URL containing one of the domains, so subdomains match
// too.
func DomainPattern(domains ...string) string {
	seen := make(map[string]bool, len(domains))
	parts := make([]string, 0, len(domains))
	for _, d := range domains {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		parts = append(parts, regexp2.Escape(d))
	}
	return strings.Join(parts, "|")
}

// AggregatePattern is one regex matching whatever any of ics matches. The
// proxy uses it to choose which hosts to intercept.
func AggregatePattern(ics []*Interceptor) string {
	seen := make(map[string]bool, len(ics))
	parts := make([]string, 0, len(ics))
	for _, ic := range ics {
		if seen[ic.URLPattern] {
			continue
		}
		seen[ic.URLPattern] = true
		parts = append(parts, "(?:"+ic.URLPattern+")")
	}
	return strings.Join(parts, "|")
}

// HostMatcher compiles an aggregate pattern for matching CONNECT targets.
type HostMatcher struct {
	re *regexp2.Regexp
}

// NewHostMatcher compiles pattern. An empty pattern matches nothing.
func NewHostMatcher(pattern string) (*HostMatcher, error) {
	if pattern == "" {
		return &HostMatcher{}, nil
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	return &HostMatcher{re: re}, nil
}

// Match reports whether host (optionally with a port) should be intercepted.
func (m *HostMatcher) Match(host string) bool {
	if m == nil || m.re == nil {
		return false
	}
	return search(m.re, strings.ToLower(host))
}
