package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorged/interceptor"
	"gorged/metrics"
	"gorged/models"
	"gorged/pipeline"
)

// echoRewriter tags every document with the URL and nonce it was given.
type echoRewriter struct {
	calls int32
}

func (e *echoRewriter) Rewrite(_ context.Context, rc *interceptor.RequestContext, body string) (string, bool) {
	atomic.AddInt32(&e.calls, 1)
	if strings.Contains(rc.URL, "untouched") {
		return "", false
	}
	return fmt.Sprintf("%s<!-- %s %s -->", body, rc.URL, rc.CSPNonce), true
}

func serve(t *testing.T, rw Rewriter) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(rw).Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return "tcp://" + ln.Addr().String()
}

func closedAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "tcp://" + addr
}

func TestClientServerExchange(t *testing.T) {
	rw := &echoRewriter{}
	client := NewClient(serve(t, rw))
	defer client.Close()

	out, err := client.Call(context.Background(), Message{HTML: "<p>a</p>", URL: "https://A.test/x", CSPNonce: "n0nce"})
	require.NoError(t, err)
	assert.Equal(t, "<p>a</p><!-- https://a.test/x n0nce -->", out)

	out, err = client.Call(context.Background(), Message{HTML: "<p>b</p>", URL: "https://a.test/untouched"})
	require.NoError(t, err)
	assert.Equal(t, "<p>b</p>", out)

	assert.Equal(t, int32(2), atomic.LoadInt32(&rw.calls))
}

func TestClientSerializesConcurrentCalls(t *testing.T) {
	client := NewClient(serve(t, &echoRewriter{}))
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://a.test/%d", i)
			out, err := client.Call(context.Background(), Message{HTML: "x", URL: url})
			if assert.NoError(t, err) {
				assert.Equal(t, "x<!-- "+url+"  -->", out)
			}
		}(i)
	}
	wg.Wait()
}

func TestClientDialFailure(t *testing.T) {
	rec := metrics.NewRecorder(nil)
	client := NewClient(closedAddress(t), WithClientMetrics(rec))

	_, err := client.Call(context.Background(), Message{HTML: "x", URL: "https://a.test/"})
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "dial", te.Op)

	count, err := testutil.GatherAndCount(rec.Registry(), "gorged_transport_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// silentServer accepts connections and never answers.
func silentServer(t *testing.T) (string, *int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var accepted int32
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&accepted, 1)
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	})
	return "tcp://" + ln.Addr().String(), &accepted
}

func TestClientTimeoutDropsConnection(t *testing.T) {
	addr, accepted := silentServer(t)
	client := NewClient(addr, WithTimeout(50*time.Millisecond))
	defer client.Close()

	start := time.Now()
	_, err := client.Call(context.Background(), Message{HTML: "x", URL: "https://a.test/"})
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "read", te.Op)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = client.Call(context.Background(), Message{HTML: "x", URL: "https://a.test/"})
	require.Error(t, err)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(accepted) == 2 }, time.Second, 10*time.Millisecond)
}

func TestClientHonoursContextCancellation(t *testing.T) {
	addr, _ := silentServer(t)
	client := NewClient(addr, WithTimeout(time.Minute))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, Message{HTML: "x", URL: "https://a.test/"})
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded))
}

func TestClientRejectsMalformedReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = ReadFrame(bufio.NewReader(conn), 0)
		_, _ = conn.Write([]byte("oops"))
	}()

	client := NewClient("tcp://" + ln.Addr().String())
	defer client.Close()
	_, err = client.Call(context.Background(), Message{HTML: "x", URL: "https://a.test/"})
	var te *models.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "decode", te.Op)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestServerDropsMalformedRequest(t *testing.T) {
	addr := serve(t, &echoRewriter{})
	_, address := ParseAddress(addr)
	conn, err := net.Dial("tcp", address)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, []byte(`{"html":1}`)))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = ReadFrame(bufio.NewReader(conn), 0)
	assert.Error(t, err)
}

// flakyListener hands out one real connection, then fails Accept once fail
// is closed.
type flakyListener struct {
	net.Listener
	accepted int32
	fail     chan struct{}
	closed   chan struct{}
	once     sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if atomic.AddInt32(&l.accepted, 1) == 1 {
		return l.Listener.Accept()
	}
	<-l.fail
	return nil, errors.New("accept exhausted")
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return l.Listener.Close()
}

func TestServerStopsOnAcceptError(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln := &flakyListener{Listener: inner, fail: make(chan struct{}), closed: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- NewServer(&echoRewriter{}).Serve(context.Background(), ln) }()

	conn, err := net.Dial("tcp", inner.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	payload, err := EncodeMessage(Message{HTML: "a", URL: "https://a.test/"})
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, payload))
	br := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = ReadFrame(br, 0)
	require.NoError(t, err)

	close(ln.fail)
	select {
	case err := <-done:
		assert.ErrorContains(t, err, "accept exhausted")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Accept failed")
	}
	select {
	case <-ln.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("listener left open")
	}

	// the open connection is closed too, not left to idle out
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = br.ReadByte()
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func TestServerOverUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "gorged")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "w.sock")
	// a stale socket file from a previous run
	require.NoError(t, os.WriteFile(sock, nil, 0600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(&echoRewriter{}).ListenAndServe(ctx, sock) }()

	client := NewClient(sock)
	defer client.Close()
	var out string
	require.Eventually(t, func() bool {
		out, err = client.Call(context.Background(), Message{HTML: "u", URL: "https://a.test/"})
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "u<!-- https://a.test/  -->", out)

	cancel()
	require.NoError(t, <-done)
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err))
}

func htmlResponse(url, body string) pipeline.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'nonce-r4nd0m'")
	return pipeline.Response{Method: http.MethodGet, URL: url, Status: http.StatusOK, Header: h, Body: body}
}

func TestDelegateWithRealPipeline(t *testing.T) {
	reg, err := interceptor.Build(interceptor.Definition{
		ID:             "test-hide-feed",
		URLPattern:     `a\.test`,
		DefaultEnabled: true,
		Strategy:       "dynamic-hide",
		Selector:       "#feed",
	})
	require.NoError(t, err)
	p, err := pipeline.New(reg, nil)
	require.NoError(t, err)

	rec := metrics.NewRecorder(nil)
	d := NewDelegate(NewClient(serve(t, p)), rec)

	out, ok := d.Handle(context.Background(), htmlResponse("https://a.test/", "<html><body><div id=feed></div></body></html>"))
	require.True(t, ok)
	assert.Contains(t, out, `nonce="r4nd0m"`)
	assert.Contains(t, out, "MutationObserver")

	_, ok = d.Handle(context.Background(), htmlResponse("https://b.test/", "<html><body></body></html>"))
	assert.False(t, ok)

	resp := htmlResponse("https://a.test/", "<p>x</p>")
	resp.Status = http.StatusNotFound
	_, ok = d.Handle(context.Background(), resp)
	assert.False(t, ok)

	count, err := testutil.GatherAndCount(rec.Registry(), "gorged_responses_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count) // rewritten, unmatched, ineligible
}

func TestDelegateFallsBackOnTransportError(t *testing.T) {
	rec := metrics.NewRecorder(nil)
	d := NewDelegate(NewClient(closedAddress(t)), rec)

	_, ok := d.Handle(context.Background(), htmlResponse("https://a.test/", "<p>x</p>"))
	assert.False(t, ok)

	expected := `
# HELP gorged_responses_total Total number of proxied responses by pipeline result
# TYPE gorged_responses_total counter
gorged_responses_total{result="fallback"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "gorged_responses_total"))
}
