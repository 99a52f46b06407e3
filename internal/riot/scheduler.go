package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RouteScope selects which addressing scheme a request is served on.
type RouteScope int

const (
	// ScopePlatform targets a single server cluster (summoner-v4).
	ScopePlatform RouteScope = iota
	// ScopeRegion targets a geographic grouping (match-v5).
	ScopeRegion
	// ScopeRegionNoSEA targets a grouping for API families with no sea
	// deployment (account-v1); sea traffic is remapped to asia.
	ScopeRegionNoSEA
)

// Request describes one upstream call. The scheduler owns routing, credential
// selection, throttling and retries; callers only name the endpoint.
type Request struct {
	Endpoint   string
	Path       string
	Query      url.Values
	RegionHint string
	Scope      RouteScope
}

type outcome struct {
	payload json.RawMessage
	err     error
}

type queuedRequest struct {
	id       string
	req      Request
	result   chan outcome
	enqueued time.Time
}

// admissionMonitor is the slice of the usage monitor the scheduler needs.
type admissionMonitor interface {
	CanAdmit() (bool, time.Duration)
	Record(keyID, endpoint string, status int, fromCache bool, duration time.Duration)
}

// httpDoer lets tests substitute the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SchedulerConfig carries the scheduler's tunables.
type SchedulerConfig struct {
	RequestsPerSecond int
	MaxRetries        int
	RequestTimeout    time.Duration
	RetryAfterDefault time.Duration
	BackoffBase       time.Duration
	BreakerThreshold  int
	BaseDomain        string
	QueueCapacity     int
}

func (c *SchedulerConfig) applyDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 18
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RetryAfterDefault <= 0 {
		c.RetryAfterDefault = 5 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BaseDomain == "" {
		c.BaseDomain = "api.riotgames.com"
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 4096
	}
}

// Scheduler serializes all upstream traffic through one drain goroutine.
// A single in-flight call at a time, with precise inter-request spacing, is
// the simplest arrangement that can never burst past the rate ceiling no
// matter how many callers enqueue concurrently. Retries happen inline while
// the request holds the head of the queue, so a retried request always
// resolves before any newer arrival is dispatched.
type Scheduler struct {
	cfg      SchedulerConfig
	queue    chan *queuedRequest
	resolver *Resolver
	keyring  *Keyring
	monitor  admissionMonitor
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	client   httpDoer
	logger   *logrus.Logger
	quit     chan struct{}
	done     chan struct{}
}

func NewScheduler(cfg SchedulerConfig, resolver *Resolver, keyring *Keyring, monitor admissionMonitor, logger *logrus.Logger) *Scheduler {
	cfg.applyDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "riot-api",
		MaxRequests: uint32(cfg.BreakerThreshold),
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	})

	return &Scheduler{
		cfg:      cfg,
		queue:    make(chan *queuedRequest, cfg.QueueCapacity),
		resolver: resolver,
		keyring:  keyring,
		monitor:  monitor,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker:  breaker,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the drain loop.
func (s *Scheduler) Start() {
	go s.drain()
}

// Stop shuts the drain loop down and rejects anything still queued.
func (s *Scheduler) Stop() {
	close(s.quit)
	<-s.done
}

// Do enqueues a request and waits for its terminal outcome. Once enqueued a
// request runs to completion even if the caller stops waiting.
func (s *Scheduler) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	qr := &queuedRequest{
		id:       uuid.NewString(),
		req:      req,
		result:   make(chan outcome, 1),
		enqueued: time.Now(),
	}

	select {
	case s.queue <- qr:
	case <-s.quit:
		return nil, fmt.Errorf("scheduler stopped")
	}

	select {
	case out := <-qr.result:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) drain() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.rejectPending()
			return
		case qr := <-s.queue:
			out := s.process(qr)
			qr.result <- out
		}
	}
}

func (s *Scheduler) rejectPending() {
	for {
		select {
		case qr := <-s.queue:
			qr.result <- outcome{err: fmt.Errorf("scheduler stopped")}
		default:
			return
		}
	}
}

// process runs one request to a terminal state. Transient failures (429,
// timeouts, 5xx) are retried in place with backoff; auth failures rotate to
// the next key without giving up the head of the queue.
func (s *Scheduler) process(qr *queuedRequest) outcome {
	log := s.logger.WithFields(logrus.Fields{
		"request":  qr.id,
		"endpoint": qr.req.Endpoint,
	})

	transientRetries := 0
	keysTried := 0
	backoff := s.cfg.BackoffBase

	for {
		// 1. Admission against the per-minute ceiling. Head-of-line
		// blocking is intentional: nothing behind us may jump the window.
		for {
			allowed, wait := s.monitor.CanAdmit()
			if allowed {
				break
			}
			log.Infof("Per-minute ceiling reached, waiting %s", wait.Round(time.Millisecond))
			if !s.sleep(wait) {
				return outcome{err: fmt.Errorf("scheduler stopped")}
			}
		}

		// 2. Minimum inter-request spacing.
		if err := s.limiter.Wait(context.Background()); err != nil {
			return outcome{err: err}
		}

		// 3. Routing for this specific request.
		route := s.resolver.Resolve(qr.req.RegionHint, qr.req.Scope == ScopeRegionNoSEA)

		// 4. Credential for this attempt.
		key, err := s.keyring.Next()
		if err != nil {
			return outcome{err: err}
		}

		// 5. Dispatch and classify.
		started := time.Now()
		status, body, retryHint, err := s.dispatch(route, key, qr.req)
		elapsed := time.Since(started)

		if err != nil {
			s.monitor.Record(key.ID, qr.req.Endpoint, 0, false, elapsed)
			transientRetries++
			if transientRetries > s.cfg.MaxRetries {
				log.Warnf("Request failed after %d transient retries: %v", s.cfg.MaxRetries, err)
				return outcome{err: &TimeoutError{Endpoint: qr.req.Endpoint}}
			}
			log.Warnf("Transient failure (attempt %d), backing off %s: %v", transientRetries, backoff, err)
			if !s.sleep(backoff) {
				return outcome{err: fmt.Errorf("scheduler stopped")}
			}
			backoff = minDuration(backoff*2, 8*s.cfg.BackoffBase)
			continue
		}

		s.monitor.Record(key.ID, qr.req.Endpoint, status, false, elapsed)

		switch {
		case status >= 200 && status < 300:
			s.keyring.RecordSuccess(key.ID)
			return outcome{payload: body}

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			s.keyring.RecordError(key.ID, status)
			keysTried++
			if keysTried < s.maxKeyAttempts() {
				log.Warnf("Key %s rejected with %d, rotating to next key", key.ID, status)
				continue
			}
			return outcome{err: &UpstreamError{Endpoint: qr.req.Endpoint, Status: status, Body: truncate(body)}}

		case status == http.StatusTooManyRequests:
			s.keyring.RecordError(key.ID, status)
			transientRetries++
			if transientRetries > s.cfg.MaxRetries {
				return outcome{err: &UpstreamError{Endpoint: qr.req.Endpoint, Status: status, Body: truncate(body)}}
			}
			wait := s.retryAfter(retryHint, body)
			log.Warnf("Rate limited upstream, honoring retry-after %s", wait)
			if !s.sleep(wait) {
				return outcome{err: fmt.Errorf("scheduler stopped")}
			}
			continue

		case status >= 500:
			transientRetries++
			if transientRetries > s.cfg.MaxRetries {
				return outcome{err: &UpstreamError{Endpoint: qr.req.Endpoint, Status: status, Body: truncate(body)}}
			}
			log.Warnf("Upstream %d (attempt %d), backing off %s", status, transientRetries, backoff)
			if !s.sleep(backoff) {
				return outcome{err: fmt.Errorf("scheduler stopped")}
			}
			backoff = minDuration(backoff*2, 8*s.cfg.BackoffBase)
			continue

		default:
			// Remaining 4xx are caller mistakes, never retried.
			return outcome{err: &UpstreamError{Endpoint: qr.req.Endpoint, Status: status, Body: truncate(body)}}
		}
	}
}

// dispatch performs the outbound call through the circuit breaker. A non-nil
// error means the transport failed (timeout, connection, breaker open) and
// the status is meaningless.
func (s *Scheduler) dispatch(route Route, key KeyHandle, req Request) (int, []byte, time.Duration, error) {
	host := route.Platform
	if req.Scope != ScopePlatform {
		host = route.Region
	}

	u := url.URL{
		Scheme:   "https",
		Host:     host + "." + s.cfg.BaseDomain,
		Path:     req.Path,
		RawQuery: req.Query.Encode(),
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("X-Riot-Token", key.Secret)

		resp, err := s.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		dr := &dispatchResult{status: resp.StatusCode, body: body}
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
				dr.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return dr, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, 0, fmt.Errorf("circuit breaker open: %w", err)
		}
		return 0, nil, 0, err
	}

	dr := result.(*dispatchResult)
	return dr.status, dr.body, dr.retryAfter, nil
}

type dispatchResult struct {
	status     int
	body       []byte
	retryAfter time.Duration
}

// retryAfter picks the advised 429 delay: the Retry-After header first, then
// the hint some Riot error bodies carry, then the configured default.
func (s *Scheduler) retryAfter(headerHint time.Duration, body []byte) time.Duration {
	if headerHint > 0 {
		return headerHint
	}
	var payload struct {
		RetryAfter json.Number `json:"retryAfter"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if secs, err := payload.RetryAfter.Int64(); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return s.cfg.RetryAfterDefault
}

// sleep waits cooperatively, returning false if the scheduler is stopping.
func (s *Scheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Scheduler) maxKeyAttempts() int {
	n := s.keyring.Size()
	if n > 3 {
		n = 3
	}
	if n < 1 {
		n = 1
	}
	return n
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
