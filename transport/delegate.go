package transport

import (
	"context"

	"gorged/interceptor"
	"gorged/logger"
	"gorged/metrics"
	"gorged/pipeline"
)

// Delegate is a proxy response hook that hands eligible documents to a
// rewrite worker. Any transport failure forwards the original response.
type Delegate struct {
	client  *Client
	metrics *metrics.Recorder
}

func NewDelegate(client *Client, rec *metrics.Recorder) *Delegate {
	return &Delegate{client: client, metrics: rec}
}

func (d *Delegate) Handle(ctx context.Context, resp pipeline.Response) (string, bool) {
	if !pipeline.Eligible(resp.Method, resp.Status, resp.Header, resp.Body) {
		d.metrics.ObserveResponse(metrics.ResultIneligible)
		return "", false
	}

	msg := Message{HTML: resp.Body, URL: resp.URL}
	if resp.Header != nil {
		msg.CSPNonce = interceptor.CSPNonce(resp.Header.Values("Content-Security-Policy"))
	}

	out, err := d.client.Call(ctx, msg)
	if err != nil {
		logger.ProxyError("Delegate: %s: %v; forwarding original", resp.URL, err)
		d.metrics.ObserveResponse(metrics.ResultFallback)
		return "", false
	}
	if out == resp.Body {
		d.metrics.ObserveResponse(metrics.ResultUnmatched)
		return "", false
	}
	d.metrics.ObserveResponse(metrics.ResultRewritten)
	return out, true
}
