package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Forwarder performs outbound calls to backends and relays results to the
// original caller, either buffered or chunk-by-chunk.
type Forwarder struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// New creates a Forwarder. By default there is no client timeout: streamed
// inference responses may be long-lived.
func New(opts ...Option) *Forwarder {
	f := &Forwarder{
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		f.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Forwarder) {
		f.httpClient = hc
	}
}

// Request is one outbound call. Body and Header are copies owned by the
// request; the caller's inbound I/O lifetime is decoupled from it.
type Request struct {
	ID      string
	Backend int
	URL     string
	Method  string
	Header  http.Header
	Body    []byte
}

// BufferedResponse is a complete backend response.
type BufferedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Buffered forwards the request and waits for the complete backend response.
func (f *Forwarder) Buffered(ctx context.Context, req Request) (*BufferedResponse, error) {
	start := time.Now()

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, f.fail(req, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, f.fail(req, start, fmt.Errorf("read backend response: %w", err))
	}

	return &BufferedResponse{
		StatusCode: resp.StatusCode,
		Header:     filterHopByHop(resp.Header),
		Body:       body,
	}, nil
}

// Stream forwards the request and relays the backend's status, headers, and
// body chunks to w as they arrive, with no intermediate buffering of the
// full body. The response writer is not touched until the backend's status
// line is available, so callers can still map an early transport failure to
// an error status.
func (f *Forwarder) Stream(ctx context.Context, req Request, w http.ResponseWriter) error {
	start := time.Now()

	resp, err := f.do(ctx, req)
	if err != nil {
		return f.fail(req, start, err)
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), filterHopByHop(resp.Header))
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Caller went away mid-stream; backend side is logged,
				// nothing more can reach the caller.
				return f.fail(req, start, fmt.Errorf("write to caller: %w", werr))
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return f.fail(req, start, fmt.Errorf("read backend stream: %w", rerr))
		}
	}
}

// do issues the outbound HTTP request.
func (f *Forwarder) do(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	copyHeader(httpReq.Header, filterHopByHop(req.Header))

	return f.httpClient.Do(httpReq)
}

// fail wraps err in a BackendError and logs it with routing context.
func (f *Forwarder) fail(req Request, start time.Time, err error) error {
	berr := &BackendError{
		Backend:   req.Backend,
		RequestID: req.ID,
		Elapsed:   time.Since(start),
		Err:       err,
	}
	f.logger.Warn("forward failed",
		"backend", berr.Backend,
		"request_id", berr.RequestID,
		"elapsed", berr.Elapsed,
		"err", err,
	)
	return berr
}

// hopByHopHeaders are connection-scoped and never relayed; framing is
// recomputed by the outbound transport.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// filterHopByHop returns a copy of h without hop-by-hop headers.
func filterHopByHop(h http.Header) http.Header {
	out := make(http.Header, len(h))
	copyHeader(out, h)
	for _, k := range hopByHopHeaders {
		out.Del(k)
	}
	return out
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
