package interceptor

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RequestContext is the read-only view of one response an interceptor sees.
type RequestContext struct {
	URL      string // normalized: lowercase host, no fragment
	Scheme   string
	Host     string // without port
	Path     string
	RawQuery string
	Method   string
	Status   int
	CSPNonce string
}

// NewRequestContext normalizes rawURL and snapshots the request details.
// header may be nil.
func NewRequestContext(method, rawURL string, status int, header http.Header) (*RequestContext, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing response url %q: %w", rawURL, err)
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	rc := &RequestContext{
		URL:      u.String(),
		Scheme:   u.Scheme,
		Host:     u.Hostname(),
		Path:     u.Path,
		RawQuery: u.RawQuery,
		Method:   strings.ToUpper(method),
		Status:   status,
	}
	if header != nil {
		rc.CSPNonce = CSPNonce(header.Values("Content-Security-Policy"))
	}
	return rc, nil
}

// CSPNonce returns the first nonce that allows scripts under the given
// policies. Within a policy script-src governs scripts; default-src only
// applies when the policy has no script-src.
func CSPNonce(policies []string) string {
	for _, policy := range policies {
		directives := parseCSP(policy)
		sources, ok := directives["script-src"]
		if !ok {
			sources = directives["default-src"]
		}
		for _, src := range sources {
			if len(src) > len("'nonce-'") && strings.HasPrefix(strings.ToLower(src), "'nonce-") && strings.HasSuffix(src, "'") {
				return src[len("'nonce-") : len(src)-1]
			}
		}
	}
	return ""
}

// parseCSP splits a serialized policy into lowercased directive names and
// their source lists. Repeated directives after the first are ignored.
func parseCSP(policy string) map[string][]string {
	directives := make(map[string][]string)
	for _, part := range strings.Split(policy, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])
		if _, seen := directives[name]; !seen {
			directives[name] = fields[1:]
		}
	}
	return directives
}

// IsLanding reports whether the request targets the site root.
func (rc *RequestContext) IsLanding() bool {
	return rc.Path == "" || rc.Path == "/"
}
