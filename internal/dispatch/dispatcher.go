// Package dispatch sends compressed payload fragments over HTTPS with
// per-request retry and backoff under one invocation-wide session deadline.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Retry and sizing defaults. Raising the attempt budget lengthens failed
// invocations and their cost; lowering it risks data loss.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialBackoff    = time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultRequestTimeout    = 3 * time.Second
	DefaultSessionBuffer     = time.Second
)

// Request is one ready-to-send fragment bound to a destination. Critical
// requests abort the whole invocation when they fail; non-critical failures
// are logged and swallowed so sibling sends proceed.
type Request struct {
	URL      string
	Headers  map[string]string
	Body     []byte
	Critical bool
}

// Result records the outcome of one fragment send.
type Result struct {
	URL        string
	StatusCode int
	Err        error
}

// Dispatcher posts payload fragments concurrently, retrying transient
// failures with exponential backoff.
type Dispatcher struct {
	Client            *http.Client
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	RequestTimeout    time.Duration
	SessionBuffer     time.Duration

	logger *zap.Logger
}

// New creates a Dispatcher with the default retry policy.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		Client:            &http.Client{},
		MaxAttempts:       DefaultMaxAttempts,
		InitialBackoff:    DefaultInitialBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		RequestTimeout:    DefaultRequestTimeout,
		SessionBuffer:     DefaultSessionBuffer,
		logger:            logger,
	}
}

// SessionTimeout computes the deadline covering the worst-case retry
// sequence of the slowest request: every attempt's network timeout, the
// geometric backoff delays between them, and a processing buffer.
func (d *Dispatcher) SessionTimeout() time.Duration {
	total := d.RequestTimeout

	backoffDelay := d.InitialBackoff
	for i := 0; i < d.MaxAttempts-1; i++ {
		total += backoffDelay + d.RequestTimeout
		backoffDelay = time.Duration(float64(backoffDelay) * d.BackoffMultiplier)
	}
	return total + d.SessionBuffer
}

// SendAll posts all fragments concurrently and waits for every send to
// finish, the first critical failure, or the session deadline. Results come
// back indexed like reqs; the error is the first fatal failure, if any.
func (d *Dispatcher) SendAll(ctx context.Context, reqs []Request) ([]Result, error) {
	sessionTimeout := d.SessionTimeout()
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	results := make([]Result, len(reqs))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			status, err := d.send(gctx, req)
			results[i] = Result{URL: req.URL, StatusCode: status, Err: err}
			if err == nil {
				return nil
			}

			var sessionErr *SessionTimeoutError
			if errors.As(err, &sessionErr) || req.Critical {
				return err
			}
			d.logger.Error("failed to send log entry", zap.String("url", req.URL), zap.Error(err))
			return nil
		})
	}

	err := g.Wait()
	d.logger.Debug("finished sending payloads",
		zap.Int("count", len(reqs)),
		zap.Duration("elapsed", time.Since(start)))
	return results, err
}

// send performs one fragment send with retry. Transient conditions (408,
// 429, 5xx, per-request timeout) back off and retry up to the attempt
// budget; 4xx conditions fail immediately.
func (d *Dispatcher) send(ctx context.Context, req Request) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.InitialBackoff
	policy.Multiplier = d.BackoffMultiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempts := 0
	var status int

	operation := func() error {
		attempts++
		code, err := d.attempt(ctx, req)
		status = code
		if err == nil {
			return nil
		}

		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(&SessionTimeoutError{Timeout: d.SessionTimeout()})
		case isRequestTimeout(err):
			d.logger.Warn("request timed out",
				zap.String("url", req.URL),
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", d.MaxAttempts))
			return err
		default:
			var transient *transientStatusError
			if errors.As(err, &transient) {
				d.logger.Warn("transient response, retrying",
					zap.Int("status", transient.statusCode),
					zap.String("url", req.URL))
				return err
			}
			// Fatal statuses and transport failures do not retry.
			return backoff.Permanent(err)
		}
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.MaxAttempts-1)), ctx))
	if err == nil {
		d.logger.Info("log entry sent",
			zap.Int("status", status),
			zap.String("url", req.URL))
		return status, nil
	}

	var sessionErr *SessionTimeoutError
	var fatal *FatalStatusError
	switch {
	case errors.As(err, &sessionErr):
		return status, err
	case ctx.Err() != nil:
		return status, &SessionTimeoutError{Timeout: d.SessionTimeout()}
	case errors.As(err, &fatal):
		return status, err
	case attempts >= d.MaxAttempts:
		return status, &RetriesExhaustedError{Attempts: attempts, Last: err}
	default:
		return status, err
	}
}

// attempt performs a single POST with the per-request timeout.
func (d *Dispatcher) attempt(ctx context.Context, req Request) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return 0, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, classifyStatus(resp.StatusCode)
}

func classifyStatus(code int) error {
	switch {
	case code < http.StatusBadRequest:
		return nil
	case code == http.StatusBadRequest:
		return &FatalStatusError{StatusCode: code, Hint: "unexpected payload"}
	case code == http.StatusForbidden:
		return &FatalStatusError{StatusCode: code, Hint: "review your license key"}
	case code == http.StatusNotFound:
		return &FatalStatusError{StatusCode: code, Hint: "review the region endpoint"}
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return &transientStatusError{statusCode: code}
	case code < http.StatusInternalServerError:
		return &FatalStatusError{StatusCode: code}
	default:
		return &transientStatusError{statusCode: code}
	}
}

func isRequestTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
