package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/config"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/monitoring"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/resilience"
	"github.com/Kh3rwa1/ArcadiaApp/internal/infrastructure/tracing"
)

// ErrUnavailable wraps rejections by the circuit breaker.
var ErrUnavailable = errors.New("remote unavailable")

// Client wraps resty with rate limiting and a circuit breaker.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	logger  *zap.Logger

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// Options configure New.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RateLimit float64
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger

	// Tracer, when set, opens a client span per call and propagates it.
	Tracer *tracing.Tracer
}

// FromConfig maps the API section of the application config.
func FromConfig(cfg config.APIConfig, metrics *monitoring.Metrics, logger *zap.Logger) Options {
	return Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		Retries:   cfg.Retries,
		RateLimit: cfg.RateLimit,
		Metrics:   metrics,
		Logger:    logger,
	}
}

// New creates an HTTP client for the remote authority.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	restyClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Arcadia-Host/1.0").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		})
	restyClient.SetTransport(retryablehttp.NewClient().HTTPClient.Transport)

	settings := resilience.Settings{
		Probes:   2,
		Window:   time.Minute,
		Cooldown: 15 * time.Second,
		Trip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5 ||
				(c.Requests >= 20 && float64(c.Failures)/float64(c.Requests) > 0.6)
		},
	}
	if opts.Metrics != nil {
		settings.OnStateChange = opts.Metrics.ObserveBreaker()
	}

	c := &Client{
		resty:   restyClient,
		breaker: resilience.New("authority", settings),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		logger:  opts.Logger.Named("http"),
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.resty.BaseURL
}

// SetRateLimit configures requests per second. Zero or less disables limiting.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// BreakerState reports the breaker position.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Do runs one request built by fn through the limiter and breaker. HTTP
// statuses >= 500 count as breaker failures; other statuses are returned to
// the caller for interpretation.
func (c *Client) Do(ctx context.Context, endpoint string, fn func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var span *tracing.Span
	if c.tracer != nil {
		span, ctx = c.tracer.StartSpan(ctx, endpoint)
		span.SetTag("span.kind", "client")
		defer func() {
			span.Finish()
			c.tracer.Submit(span)
		}()
	}

	timer := monitoring.NewTimer(c.metrics, endpoint)
	var resp *resty.Response
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		req := c.resty.R().SetContext(ctx)
		tracing.Inject(ctx, req.Header)
		var err error
		resp, err = fn(req)
		if err != nil {
			return err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return fmt.Errorf("%s: server status %d", endpoint, resp.StatusCode())
		}
		return nil
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		timer.Stop("rejected")
		return nil, fmt.Errorf("%s: %w: %v", endpoint, ErrUnavailable, err)
	case err != nil:
		if span != nil {
			span.SetError(err)
		}
		timer.Stop("error")
		c.logger.Debug("remote call failed", zap.String("endpoint", endpoint), zap.Error(err))
		return resp, err
	}

	if span != nil {
		span.SetStatus(resp.StatusCode())
	}
	timer.Stop(statusClass(resp.StatusCode()))
	return resp, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
