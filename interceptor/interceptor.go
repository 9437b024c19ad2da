package interceptor

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"

	"gorged/models"
	"gorged/mutation"
)

// MutateFunc alters doc for the response described by rc.
type MutateFunc func(doc *goquery.Document, rc *RequestContext) error

// Interceptor is a registered rule: a URL pattern, a mutation and an
// enablement default. Values are immutable once the registry is built.
type Interceptor struct {
	ID             string
	Description    string
	URLPattern     string
	DefaultEnabled bool
	Tags           []string
	// Strategy is zero for interceptors with custom mutation logic.
	Strategy mutation.Strategy
	Selector string

	pattern *regexp2.Regexp
	mutate  MutateFunc
}

// Mutate runs the interceptor against doc. Errors are returned, never logged here.
func (ic *Interceptor) Mutate(doc *goquery.Document, rc *RequestContext) error {
	return ic.mutate(doc, rc)
}

// Info is the listing view of ic given its resolved enablement.
func (ic *Interceptor) Info(enabled bool) models.InterceptorInfo {
	tags := make([]string, len(ic.Tags))
	copy(tags, ic.Tags)
	return models.InterceptorInfo{
		ID:             ic.ID,
		Description:    ic.Description,
		URLPattern:     ic.URLPattern,
		DefaultEnabled: ic.DefaultEnabled,
		Enabled:        enabled,
		Tags:           tags,
	}
}

// Definition is the authoring form of an interceptor. Either Strategy (with
// Selector, or Script for dynamic-hide) or Mutate must be set, not both.
type Definition struct {
	ID             string
	Description    string
	URLPattern     string
	DefaultEnabled bool
	Tags           []string

	Strategy string
	Selector string
	// Script is a dynamic-hide callback body; when empty the selector is hidden.
	Script string
	// When restricts a declarative strategy to some requests, e.g. a path.
	When func(rc *RequestContext) bool

	Mutate MutateFunc
}
