package core

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/google/uuid"

	"gorged/interceptor"
	"gorged/logger"
	"gorged/metrics"
	"gorged/pipeline"
)

// DefaultMaxBodyBytes caps how much of a response is buffered for rewriting.
const DefaultMaxBodyBytes int64 = 10 << 20

// ResponseHook receives eligible responses and may return a replacement body.
type ResponseHook interface {
	Handle(ctx context.Context, resp pipeline.Response) (string, bool)
}

// ProxyOptions configures the MITM proxy.
type ProxyOptions struct {
	Port         string
	CA           *tls.Certificate // nil uses goproxy's built-in CA
	MaxBodyBytes int64
	// Hosts selects the CONNECT targets to intercept; other hosts are
	// tunnelled untouched. Ignored when MitmAllHosts is set.
	Hosts        *interceptor.HostMatcher
	MitmAllHosts bool
	Pause        *PauseSwitch
	Metrics      *metrics.Recorder
}

// proxyRequestContextData is carried from OnRequest to OnResponse via ctx.UserData.
type proxyRequestContextData struct {
	ResponseID string
	Start      time.Time
}

// NewProxy builds the goproxy server wired to hook.
func NewProxy(opts ProxyOptions, hook ResponseHook) *goproxy.ProxyHttpServer {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	ca := opts.CA
	if ca == nil {
		ca = &goproxy.GoproxyCa
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = log.New(io.Discard, "", 0)

	mitm := &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(ca)}
	proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		if opts.MitmAllHosts || opts.Hosts.Match(host) {
			logger.ProxyDebug("CONNECT %s: intercepting (session %d)", host, ctx.Session)
			return mitm, host
		}
		logger.ProxyDebug("CONNECT %s: tunnelling", host)
		return goproxy.OkConnect, host
	}))

	proxy.OnRequest().DoFunc(func(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		ctx.UserData = &proxyRequestContextData{ResponseID: uuid.NewString(), Start: time.Now()}
		return r, nil
	})

	proxy.OnResponse().DoFunc(func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
		return handleResponse(resp, ctx, opts, hook)
	})

	return proxy
}

func handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx, opts ProxyOptions, hook ResponseHook) *http.Response {
	if resp == nil || ctx.Req == nil {
		return resp
	}
	req := ctx.Req
	reqURL := req.URL.String()

	if opts.Pause.Paused() {
		opts.Metrics.ObserveResponse(metrics.ResultPaused)
		return resp
	}
	if !pipeline.EligibleMeta(req.Method, resp.StatusCode, resp.Header) {
		opts.Metrics.ObserveResponse(metrics.ResultIneligible)
		return resp
	}

	raw, err := readLimited(resp.Body, opts.MaxBodyBytes)
	// Whatever was read goes back in front of the unread remainder.
	restore := func() {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(raw), resp.Body), resp.Body}
	}
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			logger.ProxyInfo("RESP: %s body larger than %d bytes, forwarding unchanged", reqURL, opts.MaxBodyBytes)
			opts.Metrics.ObserveResponse(metrics.ResultOversize)
		} else {
			logger.ProxyError("RESP: Error reading response body for %s %s: %v", req.Method, reqURL, err)
			opts.Metrics.ObserveResponse(metrics.ResultError)
		}
		restore()
		return resp
	}
	if len(raw) == 0 {
		restore()
		opts.Metrics.ObserveResponse(metrics.ResultIneligible)
		return resp
	}

	decoded, err := decodeContent(raw, resp.Header.Get("Content-Encoding"), opts.MaxBodyBytes)
	if err != nil {
		logger.ProxyError("RESP: %s: %v", reqURL, err)
		opts.Metrics.ObserveResponse(metrics.ResultError)
		restore()
		return resp
	}
	text, transcoded, err := toUTF8(decoded, resp.Header.Get("Content-Type"))
	if err != nil {
		logger.ProxyError("RESP: %s: %v", reqURL, err)
		opts.Metrics.ObserveResponse(metrics.ResultError)
		restore()
		return resp
	}

	hookCtx := req.Context()
	start := time.Now()
	if data, ok := ctx.UserData.(*proxyRequestContextData); ok && data != nil {
		hookCtx = pipeline.WithResponseID(hookCtx, data.ResponseID)
		start = data.Start
	}

	out, replaced := hook.Handle(hookCtx, pipeline.Response{
		Method: req.Method,
		URL:    reqURL,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   text,
	})
	if !replaced {
		restore()
		return resp
	}

	resp.Body.Close()
	resp.Body = io.NopCloser(strings.NewReader(out))
	resp.ContentLength = int64(len(out))
	resp.TransferEncoding = nil
	resp.Uncompressed = true
	resp.Header.Del("Content-Encoding")
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	if transcoded {
		resp.Header.Set("Content-Type", withUTF8Charset(resp.Header.Get("Content-Type")))
	}
	logger.ProxyInfo("RESP: %d %s %s rewritten (%d -> %d bytes, %s)", resp.StatusCode, req.Method, reqURL, len(raw), len(out), time.Since(start))
	return resp
}

// StartMitmProxy serves the proxy on opts.Port until ctx is cancelled.
func StartMitmProxy(ctx context.Context, opts ProxyOptions, hook ResponseHook) error {
	if opts.CA == nil {
		return fmt.Errorf("no CA certificate loaded. Please run 'proxy init-ca' or check config")
	}
	server := &http.Server{
		Addr:    ":" + opts.Port,
		Handler: NewProxy(opts, hook),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ProxyError("MITM Proxy: graceful shutdown failed: %v", err)
		}
	}()

	logger.ProxyInfo("MITM Proxy server starting on :%s", opts.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mitm proxy: %w", err)
	}
	logger.ProxyInfo("MITM Proxy server stopped.")
	return nil
}
