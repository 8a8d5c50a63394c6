package resiliency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/productledger/pkg/retry"
)

// MaxBodyBytes bounds a single fetched document.
const MaxBodyBytes = 16 << 20

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Temporary reports whether the server may answer differently on a retry.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Options struct {
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	BreakerThreshold int
	BreakerReset     time.Duration
	Policy           retry.BackoffPolicy
}

func DefaultOptions() Options {
	return Options{
		Timeout:          30 * time.Second,
		RatePerSecond:    20,
		Burst:            10,
		BreakerThreshold: 5,
		BreakerReset:     10 * time.Second,
		Policy:           retry.DefaultReadPolicy,
	}
}

// EnhancedClient wraps http.Client with:
// - client-side rate limiting
// - retries with backoff for transient failures
// - circuit breaking, one breaker per host
// - W3C trace context propagation
type EnhancedClient struct {
	client   *http.Client
	limiter  *rate.Limiter
	strategy *retry.Strategy

	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewEnhancedClient(opts Options) *EnhancedClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &EnhancedClient{
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, opts.Burst),
		strategy: retry.NewStrategy(opts.Policy).WithClassifier(isTransient),

		threshold:    opts.BreakerThreshold,
		resetTimeout: opts.BreakerReset,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// breakerFor returns the breaker guarding rawURL's host.
func (c *EnhancedClient) breakerFor(rawURL string) *CircuitBreaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[host]
	if !ok {
		cb = NewCircuitBreaker("fetch "+host, c.threshold, c.resetTimeout)
		c.breakers[host] = cb
	}
	return cb
}

// Get fetches rawURL and returns the body.
func (c *EnhancedClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	breaker := c.breakerFor(rawURL)
	if !breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, breaker.name)
	}

	var body []byte
	err := c.strategy.Execute(ctx, rawURL, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
		return err
	})
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) || se.Temporary() {
			breaker.Failure()
		}
		return nil, err
	}

	breaker.Success()
	return body, nil
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return retry.IsRecoverable(err)
}

// CircuitBreaker implements a simple state machine for failure detection.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "CLOSED", "OPEN", "HALF_OPEN"
	now          func() time.Time
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: timeout,
		state:        "CLOSED",
		now:          time.Now,
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "OPEN" {
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = "CLOSED"
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = cb.now()
	if cb.failureCount >= cb.threshold || cb.state == "HALF_OPEN" {
		cb.state = "OPEN"
	}
}

// State returns the breaker state name.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
