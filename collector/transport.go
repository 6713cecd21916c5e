package collector

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/hazyhaar/schemawatch/schema"
)

// Transport wraps base so GraphQL calls through it are captured. A nil base
// means http.DefaultTransport. The returned RoundTripper never changes the
// status, headers, body bytes or errors seen by the caller.
func (c *Collector) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{c: c, base: base}
}

// Matches reports whether rawURL is selected for inspection.
func (c *Collector) Matches(rawURL string) bool {
	return c.match.MatchString(rawURL)
}

type transport struct {
	c    *Collector
	base http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl, out := t.c.inspect(req)
	if cl == nil {
		return t.base.RoundTrip(out)
	}

	end := t.c.sched.begin()
	resp, err := t.base.RoundTrip(out)
	if err != nil || resp == nil || resp.Body == nil {
		end()
		return resp, err
	}
	if resp.ContentLength > t.c.cfg.MaxBodyBytes {
		end()
		t.c.oversized(cl.Operation, resp.ContentLength)
		return resp, err
	}
	resp.Body = &teeBody{
		rc:      resp.Body,
		limit:   t.c.cfg.MaxBodyBytes,
		gzipped: strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip"),
		finish: func(body []byte, outcome string) {
			end()
			t.c.captured(req.Context(), cl, body, outcome)
		},
	}
	return resp, err
}

// inspect decides whether req is a call worth capturing. It returns the
// request to send, which is req itself or a clone whose body replays the
// bytes read for inspection. Any failure leaves the call uncaptured.
func (c *Collector) inspect(req *http.Request) (cl *call, out *http.Request) {
	out = req
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("collector: inspect panic", "panic", r)
			cl = nil
		}
	}()
	if req.URL == nil || !c.match.MatchString(req.URL.String()) {
		return nil, req
	}

	var (
		parsed call
		ok     bool
	)
	switch {
	case req.Method == http.MethodGet || req.Body == nil || req.Body == http.NoBody:
		parsed, ok = parseQuery(req.URL.Query(), c.cfg.InlineQueryFingerprints)
	default:
		var body []byte
		body, out = c.replayBody(req)
		if body == nil {
			return nil, out
		}
		parsed, ok = parseBody(body, c.cfg.InlineQueryFingerprints)
	}
	if !ok {
		return nil, out
	}
	if !c.detector().ShouldPersist(parsed.Operation, parsed.Fingerprint) {
		c.metrics.capture(outcomeUnchanged)
		return nil, out
	}
	parsed.Endpoint = req.URL.Path
	return &parsed, out
}

// replayBody reads up to MaxBodyBytes of the request body and returns the
// bytes plus a clone whose body yields the original stream unchanged. The
// bytes are nil when the body is oversized or unreadable.
func (c *Collector) replayBody(req *http.Request) ([]byte, *http.Request) {
	limit := c.cfg.MaxBodyBytes
	head, err := io.ReadAll(io.LimitReader(req.Body, limit+1))

	out := req.Clone(req.Context())
	if err != nil || int64(len(head)) > limit {
		// Hand the untouched remainder on; the base transport reports any
		// read error to the caller as it would have.
		out.Body = &replayed{Reader: io.MultiReader(bytes.NewReader(head), req.Body), Closer: req.Body}
		if err == nil {
			c.oversized("", int64(len(head)))
		}
		return nil, out
	}
	req.Body.Close()
	out.Body = io.NopCloser(bytes.NewReader(head))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(head)), nil
	}
	return head, out
}

type replayed struct {
	io.Reader
	io.Closer
}

func (c *Collector) oversized(operation string, size int64) {
	c.metrics.capture(outcomeOversized)
	c.sizeLog.Do(func() {
		c.logger.Info("collector: body over size limit, not captured",
			"operation", operation, "size", size, "limit", c.cfg.MaxBodyBytes)
	})
}

// teeBody copies what the caller reads. finish runs once, at EOF, at the
// first read error, or at Close.
type teeBody struct {
	rc      io.ReadCloser
	buf     bytes.Buffer
	limit   int64
	over    bool
	gzipped bool
	once    sync.Once
	finish  func(body []byte, outcome string)
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 && !b.over {
		if int64(b.buf.Len()+n) > b.limit {
			b.over = true
			b.buf = bytes.Buffer{}
		} else {
			b.buf.Write(p[:n])
		}
	}
	switch {
	case err == io.EOF:
		b.done(true)
	case err != nil:
		b.done(false)
	}
	return n, err
}

func (b *teeBody) Close() error {
	err := b.rc.Close()
	// Decoders often stop at the end of the JSON value without reading
	// EOF; a complete document counts as a complete body. Compressed
	// copies are checked when decoded.
	b.done(b.buf.Len() > 0 && (b.gzipped || json.Valid(b.buf.Bytes())))
	return err
}

func (b *teeBody) done(complete bool) {
	b.once.Do(func() {
		outcome := ""
		switch {
		case b.over:
			outcome = outcomeOversized
		case !complete:
			outcome = outcomeCanceled
		}
		b.finish(bytes.Clone(b.buf.Bytes()), outcome)
	})
}

// captured runs when a response body is complete. The carrier's context is
// consulted here for the last time; the deferred task only watches the
// collector's own lifetime.
func (c *Collector) captured(carrier context.Context, cl *call, body []byte, outcome string) {
	if outcome == outcomeOversized {
		c.oversized(cl.Operation, int64(len(body)))
		return
	}
	if outcome != "" || carrier.Err() != nil {
		c.metrics.capture(outcomeCanceled)
		return
	}
	c.sched.submit(func() { c.process(cl, body) })
}

// process is the deferred capture task.
func (c *Collector) process(cl *call, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("collector: capture panic", "operation", cl.Operation, "panic", r)
		}
	}()
	ctx := c.ctx
	if ctx.Err() != nil {
		c.metrics.capture(outcomeCanceled)
		return
	}

	resp, err := decodeResponse(body)
	if err != nil {
		c.metrics.capture(outcomeParseError)
		c.logger.Debug("collector: unparsable response", "operation", cl.Operation, "error", err)
		return
	}
	obj, ok := resp.(map[string]any)
	if !ok || obj["data"] == nil {
		c.metrics.capture(outcomeNoData)
		c.logger.Debug("collector: response without data", "operation", cl.Operation)
		return
	}

	spec := &OperationSpec{
		OperationName:      cl.Operation,
		ContentFingerprint: cl.Fingerprint,
		Endpoint:           cl.Endpoint,
		VariableShape:      schema.ShapeOf(cl.Variables),
		ResponseSchema:     schema.Infer(resp),
		CollectedAt:        c.now().UTC(),
	}
	c.metrics.capture(c.record(ctx, spec))
}

var errEmptyBody = errors.New("empty body")

func decodeResponse(body []byte) (any, error) {
	var r io.Reader = bytes.NewReader(body)
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, err
	}
	return v, nil
}
