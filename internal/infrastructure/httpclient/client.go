package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

const userAgent = "miniapp-host/1.0"

// Options configures a Client
type Options struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second, <= 0 is unlimited
	Burst     int
	Headers   map[string]string
	Policy    Policy
	Breaker   resilience.Settings
	// Transport overrides the pooled default, e.g. for httptest servers
	Transport http.RoundTripper
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}

// Client issues platform API and asset requests. Both paths share one
// retryablehttp client, so HTTP 5xx responses are retried with the same
// exponential policy; transport failures and other statuses are not.
type Client struct {
	resty   *resty.Client
	retry   *retryablehttp.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	policy  Policy
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	headers map[string]string
}

// New creates a Client
func New(opts Options) *Client {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := logging.OrNop(opts.Logger).Named("httpclient")

	c := &Client{
		policy:  opts.Policy,
		logger:  logger,
		metrics: opts.Metrics,
		headers: map[string]string{"User-Agent": userAgent},
	}
	for k, v := range opts.Headers {
		c.headers[k] = v
	}

	if opts.RateLimit <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := opts.Burst
		if burst < 1 {
			burst = int(opts.RateLimit) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport, Timeout: opts.Timeout}
	rc.Logger = leveledLogger{s: logger.Sugar()}
	rc.RetryMax = opts.Policy.Retries()
	rc.CheckRetry = checkRetry
	rc.Backoff = c.backoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.retry = rc

	c.resty = resty.NewWithClient(&http.Client{Transport: &retryablehttp.RoundTripper{Client: rc}})

	breaker := opts.Breaker
	userHook := breaker.OnStateChange
	breaker.IsSuccessful = func(err error) bool { return !countsAgainstBreaker(err) }
	breaker.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		c.metrics.SetBreakerState(name, int(to))
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	c.breaker = resilience.New("platform", breaker)

	return c
}

// checkRetry retries HTTP 5xx only
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil || resp == nil {
		return false, nil
	}
	return resp.StatusCode >= 500 && resp.StatusCode <= 599, nil
}

// backoff is called after failed attempt attemptNum+1
func (c *Client) backoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := c.policy.Delay(attemptNum + 1)

	fields := []zap.Field{logging.Attempt(attemptNum + 1), zap.Duration("wait", wait)}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
		if resp.Request != nil && resp.Request.URL != nil {
			fields = append(fields, zap.String("url", resp.Request.URL.Redacted()))
		}
	}
	c.logger.Warn("retrying after server error", fields...)
	c.metrics.IncAssetRetries()
	return wait
}

// Policy returns the retry policy in use
func (c *Client) Policy() Policy {
	return c.policy
}

// SetHeader adds a default header sent on every request
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

func (c *Client) headerSnapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Response is a successful API response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Get performs a platform API request. Non-2xx statuses are classified
// into typed errors; an open breaker or lost connectivity is Offline.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ClassifyTransport(err, "rate limit wait")
	}

	var out *Response
	err := c.breaker.Execute(func() error {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetHeaders(c.headerSnapshot()).
			Get(url)
		if err != nil {
			return ClassifyTransport(err, "GET "+redact(url))
		}
		if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
			return ClassifyStatus(resp.StatusCode(), resp.Body())
		}
		out = &Response{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, types.Wrap(types.KindOffline, err, "platform unavailable")
	}
	return out, err
}

// Fetch streams one asset into w and returns the bytes written
func (c *Client) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, ClassifyTransport(err, "rate limit wait")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, types.Wrap(types.KindInvalidURL, err, redact(url))
	}
	for k, v := range c.headerSnapshot() {
		req.Header.Set(k, v)
	}

	resp, err := c.retry.Do(req)
	if err != nil {
		return 0, ClassifyTransport(err, "GET "+redact(url))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return 0, ClassifyStatus(resp.StatusCode, body)
	}

	cw := &trackingWriter{w: w}
	n, err := io.Copy(cw, resp.Body)
	c.metrics.AddBytes(n)
	if cw.err != nil {
		return n, types.Wrap(types.KindDownloadingFailed, cw.err, "write asset")
	}
	if err != nil {
		return n, ClassifyTransport(err, fmt.Sprintf("read %s", redact(url)))
	}
	return n, nil
}

// trackingWriter remembers write failures so they are not mistaken for
// connectivity loss
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

func redact(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
