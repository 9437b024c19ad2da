package interceptor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"gorged/models"
	"gorged/mutation"
)

// Registry is the ordered interceptor table. Registration happens at startup
// only; once frozen the registry is read-only and safe for concurrent use.
type Registry struct {
	items  []*Interceptor
	byID   map[string]*Interceptor
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Interceptor)}
}

// Build registers defs in order and freezes the result.
func Build(defs ...Definition) (*Registry, error) {
	r := NewRegistry()
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}

func configErr(id string, format string, args ...interface{}) error {
	return &models.ConfigurationError{Component: "registry", Subject: id, Err: fmt.Errorf(format, args...)}
}

// Register validates def and appends it to the table.
func (r *Registry) Register(def Definition) error {
	if r.frozen {
		return configErr(def.ID, "registry is frozen")
	}
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return configErr("", "interceptor id is empty")
	}
	if _, dup := r.byID[id]; dup {
		return configErr(id, "duplicate interceptor id")
	}
	if def.URLPattern == "" {
		return configErr(id, "url pattern is empty")
	}
	pattern, err := compilePattern(def.URLPattern)
	if err != nil {
		return configErr(id, "compiling url pattern %q: %w", def.URLPattern, err)
	}

	ic := &Interceptor{
		ID:             id,
		Description:    def.Description,
		URLPattern:     def.URLPattern,
		DefaultEnabled: def.DefaultEnabled,
		Tags:           append([]string(nil), def.Tags...),
		Selector:       def.Selector,
		pattern:        pattern,
	}

	switch {
	case def.Mutate != nil && def.Strategy != "":
		return configErr(id, "both a strategy and a mutate function are set")
	case def.Mutate != nil:
		ic.mutate = def.Mutate
	case def.Strategy != "":
		strategy, err := mutation.ParseStrategy(def.Strategy)
		if err != nil {
			var ce *models.ConfigurationError
			if errors.As(err, &ce) {
				ce.Component, ce.Subject = "registry", id
			}
			return err
		}
		mutate, err := strategyMutate(strategy, def)
		if err != nil {
			return configErr(id, "%w", err)
		}
		ic.Strategy = strategy
		ic.mutate = mutate
	default:
		return configErr(id, "neither a strategy nor a mutate function is set")
	}

	if def.When != nil {
		inner, when := ic.mutate, def.When
		ic.mutate = func(doc *goquery.Document, rc *RequestContext) error {
			if !when(rc) {
				return nil
			}
			return inner(doc, rc)
		}
	}

	r.items = append(r.items, ic)
	r.byID[id] = ic
	return nil
}

// strategyMutate binds a declarative strategy to its selector or script.
func strategyMutate(s mutation.Strategy, def Definition) (MutateFunc, error) {
	if def.Selector != "" {
		if _, err := cascadia.Compile(def.Selector); err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", def.Selector, err)
		}
	}
	if s != mutation.DynamicHide && def.Script != "" {
		return nil, fmt.Errorf("script is only valid for %s", mutation.DynamicHide)
	}

	selector := def.Selector
	switch s {
	case mutation.NodeRemoval:
		if selector == "" {
			return nil, fmt.Errorf("%s needs a selector", s)
		}
		return func(doc *goquery.Document, _ *RequestContext) error {
			return mutation.RemoveFirst(doc, selector)
		}, nil
	case mutation.DisplayNone, mutation.OpacityZero:
		if selector == "" {
			return nil, fmt.Errorf("%s needs a selector", s)
		}
		return func(doc *goquery.Document, _ *RequestContext) error {
			return mutation.Hide(doc, selector, s)
		}, nil
	case mutation.DynamicHide:
		script := def.Script
		if script == "" {
			if selector == "" {
				return nil, fmt.Errorf("%s needs a selector or a script", s)
			}
			script = mutation.HideMatching(selector)
		}
		if err := mutation.ValidateCallback(script); err != nil {
			return nil, err
		}
		return func(doc *goquery.Document, rc *RequestContext) error {
			return mutation.Watch(doc, script, rc.CSPNonce)
		}, nil
	}
	return nil, fmt.Errorf("unsupported strategy %s", s)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() { r.frozen = true }

func (r *Registry) Frozen() bool { return r.frozen }

// All returns the interceptors in registration order. The slice is a copy;
// the interceptors are shared and must not be modified.
func (r *Registry) All() []*Interceptor {
	out := make([]*Interceptor, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Registry) Get(id string) (*Interceptor, bool) {
	ic, ok := r.byID[id]
	return ic, ok
}

func (r *Registry) Len() int { return len(r.items) }
