package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"gorged/interceptor"
	"gorged/logger"
	"gorged/metrics"
	"gorged/models"
	"gorged/mutation"
)

// Response is what the interception host hands to the pipeline.
type Response struct {
	Method string
	URL    string
	Status int
	Header http.Header
	Body   string
}

// EventSink persists interceptor outcomes. Implementations must be safe for
// concurrent use.
type EventSink interface {
	RecordInterceptEvents(events []models.InterceptEvent) error
}

type Option func(*Pipeline)

func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = r }
}

func WithEventSink(s EventSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

type entry struct {
	ic      *interceptor.Interceptor
	enabled bool
}

// Pipeline applies the enabled, matching interceptors of a frozen registry to
// HTML responses. It holds no per-response state and is safe for concurrent use.
type Pipeline struct {
	entries []entry
	rules   interceptor.Rules
	metrics *metrics.Recorder
	sink    EventSink
}

// New resolves the enablement of every interceptor once. The registry must be
// frozen.
func New(reg *interceptor.Registry, rules interceptor.Rules, opts ...Option) (*Pipeline, error) {
	if reg == nil || !reg.Frozen() {
		return nil, &models.ConfigurationError{Component: "pipeline", Err: errors.New("registry must be built and frozen")}
	}
	p := &Pipeline{rules: rules}
	for _, ic := range reg.All() {
		p.entries = append(p.entries, entry{ic: ic, enabled: rules.Resolve(ic)})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Interceptors lists every registered interceptor with its effective enablement.
func (p *Pipeline) Interceptors() []models.InterceptorInfo {
	out := make([]models.InterceptorInfo, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.ic.Info(e.enabled))
	}
	return out
}

// Interceptor looks up one interceptor's listing.
func (p *Pipeline) Interceptor(id string) (models.InterceptorInfo, bool) {
	for _, e := range p.entries {
		if e.ic.ID == id {
			return e.ic.Info(e.enabled), true
		}
	}
	return models.InterceptorInfo{}, false
}

func (p *Pipeline) Rules() interceptor.Rules { return p.rules }

// Enabled returns the enabled interceptors in registration order.
func (p *Pipeline) Enabled() []*interceptor.Interceptor {
	var out []*interceptor.Interceptor
	for _, e := range p.entries {
		if e.enabled {
			out = append(out, e.ic)
		}
	}
	return out
}

// Applicable returns the enabled interceptors routed to rc, in registration order.
func (p *Pipeline) Applicable(rc *interceptor.RequestContext) []*interceptor.Interceptor {
	var out []*interceptor.Interceptor
	for _, e := range p.entries {
		if e.enabled && interceptor.Matches(rc.URL, e.ic) {
			out = append(out, e.ic)
		}
	}
	return out
}

type responseIDKey struct{}

// WithResponseID tags ctx with the id under which intercept events are recorded.
func WithResponseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, responseIDKey{}, id)
}

// ResponseID returns the id set by WithResponseID, or a new one.
func ResponseID(ctx context.Context) string {
	if id, ok := ctx.Value(responseIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Handle is the response hook. It returns the replacement body and true, or
// false when the response must be forwarded unchanged.
func (p *Pipeline) Handle(ctx context.Context, resp Response) (string, bool) {
	if !Eligible(resp.Method, resp.Status, resp.Header, resp.Body) {
		p.metrics.ObserveResponse(metrics.ResultIneligible)
		return "", false
	}
	rc, err := interceptor.NewRequestContext(resp.Method, resp.URL, resp.Status, resp.Header)
	if err != nil {
		logger.ProxyError("Pipeline: %v", err)
		p.metrics.ObserveResponse(metrics.ResultError)
		return "", false
	}
	return p.Rewrite(ctx, rc, resp.Body)
}

// Rewrite runs the applicable interceptors over body. Eligibility is the
// caller's concern.
func (p *Pipeline) Rewrite(ctx context.Context, rc *interceptor.RequestContext, body string) (string, bool) {
	applicable := p.Applicable(rc)
	if len(applicable) == 0 {
		p.metrics.ObserveResponse(metrics.ResultUnmatched)
		return "", false
	}

	start := time.Now()
	doc, err := mutation.ParseDocument(body)
	if err != nil {
		logger.ProxyError("Pipeline: %s: %v", rc.URL, err)
		p.metrics.ObserveResponse(metrics.ResultError)
		return "", false
	}

	responseID := ResponseID(ctx)
	events := make([]models.InterceptEvent, 0, len(applicable))
	for _, ic := range applicable {
		runStart := time.Now()
		runErr := runOne(ic, doc, rc)
		event := models.InterceptEvent{
			ResponseID:     responseID,
			Timestamp:      runStart.UTC(),
			URL:            rc.URL,
			InterceptorID:  ic.ID,
			Outcome:        models.OutcomeApplied,
			DurationMicros: time.Since(runStart).Microseconds(),
		}
		if runErr != nil {
			event.Outcome = models.OutcomeFailed
			event.Error = models.NullString(runErr.Error())
			logRunError(ic, rc, runErr)
		} else {
			logger.ProxyDebug("Pipeline: %s applied to %s", ic.ID, rc.URL)
		}
		p.metrics.ObserveRun(ic.ID, event.Outcome)
		events = append(events, event)
	}

	// Runs are logged even if the tree then fails to render.
	if p.sink != nil {
		if err := p.sink.RecordInterceptEvents(events); err != nil {
			logger.ProxyError("Pipeline: recording intercept events for %s: %v", rc.URL, err)
		}
	}

	out, err := mutation.RenderDocument(doc)
	if err != nil {
		logger.ProxyError("Pipeline: serializing %s: %v", rc.URL, err)
		p.metrics.ObserveResponse(metrics.ResultError)
		return "", false
	}
	p.metrics.ObserveRewrite(time.Since(start))
	p.metrics.ObserveResponse(metrics.ResultRewritten)
	return out, true
}

// runOne isolates a single interceptor: returned errors and panics both come
// back as an error.
func runOne(ic *interceptor.Interceptor, doc *goquery.Document, rc *interceptor.RequestContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ProxyDebug("Pipeline: %s panic stack:\n%s", ic.ID, debug.Stack())
			err = fmt.Errorf("interceptor %s panicked: %v", ic.ID, r)
		}
	}()
	return ic.Mutate(doc, rc)
}

func logRunError(ic *interceptor.Interceptor, rc *interceptor.RequestContext, err error) {
	var mErr *models.MutationError
	if errors.As(err, &mErr) {
		logger.ProxyWarn("Pipeline: %s skipped on %s: %v", ic.ID, rc.URL, err)
		return
	}
	logger.ProxyError("Pipeline: %s failed on %s: %v", ic.ID, rc.URL, err)
}
