package transport

import (
	"context"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/resilience"
)

const maxBodyBytes = 8 << 20

// HTTPOptions configures the HTTP client.
type HTTPOptions struct {
	UserAgent string

	// HostRateLimit caps requests per second per host; 0 disables limiting.
	// Several jurisdictions are often served by the same vendor host.
	HostRateLimit float64

	// Breakers, when set, short-circuits jurisdictions that keep failing.
	Breakers *resilience.Breakers

	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
}

// HTTPClient implements Client with a single attempt per call. Timeouts come
// from the caller's context.
type HTTPClient struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates a client with the given options.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.UserAgent == "" {
		opts.UserAgent = "parcel-cli/1.0"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &HTTPClient{
		client:   hc,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *HTTPClient) limiterFor(rawURL string) *rate.Limiter {
	if c.opts.HostRateLimit <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[u.Host]
	if !ok {
		burst := int(c.opts.HostRateLimit)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.opts.HostRateLimit), burst)
		c.limiters[u.Host] = lim
	}
	return lim
}

// Get performs the request and returns the decoded body or a typed failure.
func (c *HTTPClient) Get(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
	start := time.Now()
	resp := c.get(ctx, d)
	resp.Elapsed = time.Since(start)
	return resp
}

func (c *HTTPClient) get(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
	var breaker *resilience.Breaker
	if c.opts.Breakers != nil {
		breaker = c.opts.Breakers.Get(d.JurisdictionID)
		if err := breaker.Allow(); err != nil {
			return Failure(d, CauseCircuitOpen, err)
		}
	}

	resp := c.do(ctx, d)
	if breaker != nil {
		breaker.Record(breakerOutcome(resp.Err))
	}
	return resp
}

// breakerOutcome hides caller cancellation from the breaker: an abandoned
// request says nothing about the endpoint's health.
func breakerOutcome(err error) error {
	if CauseOf(err) == CauseCancelled {
		return nil
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, d model.RequestDescriptor) model.RawResponse {
	if lim := c.limiterFor(d.URL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			// Wait fails early when the deadline cannot be met.
			cause := CauseTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				cause = CauseCancelled
			}
			return Failure(d, cause, eris.Wrap(err, "rate limiter wait"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return Failure(d, CauseNetwork, eris.Wrap(err, "create request"))
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		cause := classifyCtx(ctx, err)
		if cause == CauseNetwork {
			err = resilience.NewTransientError(err, 0)
		}
		return Failure(d, cause, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		var statusErr error = eris.Errorf("http %d from %s", resp.StatusCode, d.JurisdictionID)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			statusErr = resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return model.RawResponse{
			JurisdictionID: d.JurisdictionID,
			URL:            d.URL,
			StatusCode:     resp.StatusCode,
			Err:            &FetchError{Cause: CauseStatus, StatusCode: resp.StatusCode, URL: d.URL, Err: statusErr},
		}
	}

	body, err := readBody(resp)
	if err != nil {
		cause := classifyCtx(ctx, err)
		if cause == CauseNetwork {
			err = resilience.NewTransientError(err, 0)
		}
		return Failure(d, cause, eris.Wrap(err, "read body"))
	}

	if !gjson.ValidBytes(body) {
		out := Failure(d, CauseMalformed, eris.Errorf("invalid JSON body (%d bytes)", len(body)))
		out.StatusCode = resp.StatusCode
		return out
	}

	return model.RawResponse{
		JurisdictionID: d.JurisdictionID,
		URL:            d.URL,
		StatusCode:     resp.StatusCode,
		Body:           body,
	}
}

// readBody reads at most maxBodyBytes and converts non-UTF-8 charsets
// declared in Content-Type to UTF-8.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = io.LimitReader(resp.Body, maxBodyBytes)

	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if cs := strings.ToLower(params["charset"]); cs != "" && cs != "utf-8" && cs != "utf8" {
			enc, err := htmlindex.Get(cs)
			if err != nil {
				return nil, eris.Wrapf(err, "unsupported charset %q", cs)
			}
			r = enc.NewDecoder().Reader(r)
		}
	}

	return io.ReadAll(r)
}

// classifyCtx distinguishes a deadline, a caller cancellation and a plain
// network fault.
func classifyCtx(ctx context.Context, err error) Cause {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return CauseCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}
	return CauseNetwork
}
