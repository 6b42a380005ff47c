// Package probe performs a single bounded HTTP check of a target and
// classifies the result.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v5"
	"github.com/hashicorp/go-cleanhttp"

	"uptimewatch/internal/models"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "uptimewatch/1.0"

	maxDrainBytes = 64 * 1024
)

// Prober checks one target. Implementations never return an error: every
// failure is expressed as a down outcome.
type Prober interface {
	Probe(ctx context.Context, target models.Target) models.Outcome
}

// Engine is the server-side Prober.
type Engine struct {
	client    *http.Client
	timeout   time.Duration
	alternate map[Symptom]bool
	now       func() time.Time
}

var _ Prober = (*Engine)(nil)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	timeout   time.Duration
	userAgent string
	transport http.RoundTripper
	symptoms  []Symptom
	now       func() time.Time
}

// WithTimeout bounds the whole check, both attempts included.
func WithTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent sent with every probe.
func WithUserAgent(ua string) Option {
	return func(c *engineConfig) { c.userAgent = ua }
}

// WithTransport replaces the pooled default transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *engineConfig) { c.transport = rt }
}

// WithAlternateSymptoms selects which failure symptoms ask for an alternate
// vantage point check.
func WithAlternateSymptoms(symptoms ...Symptom) Option {
	return func(c *engineConfig) { c.symptoms = symptoms }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) { c.now = now }
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	cfg := engineConfig{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		symptoms:  DefaultAlternateSymptoms,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.transport == nil {
		cfg.transport = cleanhttp.DefaultPooledTransport()
	}

	alternate := make(map[Symptom]bool, len(cfg.symptoms))
	for _, s := range cfg.symptoms {
		alternate[s] = true
	}

	return &Engine{
		client: &http.Client{
			Transport: roundTripperWithUA{rt: cfg.transport, userAgent: cfg.userAgent},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:   cfg.timeout,
		alternate: alternate,
		now:       cfg.now,
	}
}

// Timeout reports the configured bound.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Probe issues HEAD, falls back to GET when HEAD is refused or breaks at the
// transport layer, and classifies whatever the final attempt produced.
func (e *Engine) Probe(ctx context.Context, target models.Target) (out models.Outcome) {
	start := e.now()
	out = models.Outcome{
		TargetID:  target.ID,
		Source:    models.SourceServer,
		CheckedAt: start.UTC(),
	}
	defer func() {
		if r := recover(); r != nil {
			out = failed(out, SymptomInternal, fmt.Sprint(r))
		}
		out.ResponseTimeMS = e.now().Sub(start).Milliseconds()
	}()

	address := target.Address
	if address == "" {
		address = target.CanonicalAddress
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.do(ctx, http.MethodHead, address)
	if shouldRetryWithGet(ctx, resp, err) {
		closeBody(resp)
		resp, err = e.do(ctx, http.MethodGet, address)
	}
	if err != nil {
		symptom, detail := classifyError(ctx, err, e.timeout)
		out = failed(out, symptom, detail)
		out.NeedsAlternateCheck = e.alternate[symptom]
		return out
	}
	defer closeBody(resp)

	code := resp.StatusCode
	out.StatusCode = null.IntFrom(int64(code))
	out.StatusText = null.StringFrom(reasonPhrase(resp))
	out.IsUp = models.IsUpStatus(code)
	if loc := resp.Header.Get("Location"); loc != "" {
		out.Location = null.StringFrom(loc)
	}
	return out
}

func (e *Engine) do(ctx context.Context, method, address string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, address, nil)
	if err != nil {
		return nil, &requestError{err: err}
	}
	return e.client.Do(req)
}

func shouldRetryWithGet(ctx context.Context, resp *http.Response, err error) bool {
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return false
		}
		return ctx.Err() == nil
	}
	return resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented
}

func failed(out models.Outcome, symptom Symptom, detail string) models.Outcome {
	out.StatusCode = null.Int{}
	out.StatusText = null.String{}
	out.Location = null.String{}
	out.IsUp = false
	out.ErrorMessage = null.StringFrom(string(symptom) + ": " + detail)
	return out
}

func reasonPhrase(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	resp.Body.Close()
}

// roundTripperWithUA injects a User-Agent into every request.
type roundTripperWithUA struct {
	rt        http.RoundTripper
	userAgent string
}

func (r roundTripperWithUA) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	return r.rt.RoundTrip(req)
}
