package githubapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/orgboard/orgboard/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig configures request retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps outbound GitHub HTTP requests with retry and throttle
// controls. It is shared by every per-user gateway built on top of it.
type Client struct {
	doer     HTTPDoer
	retry    RetryConfig
	throttle ThrottlePolicy
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewClient creates a GitHub request client.
func NewClient(doer HTTPDoer, retry RetryConfig, throttle ThrottlePolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:     doer,
		retry:    retry,
		throttle: throttle,
		Sleep:    time.Sleep,
	}
}

// Do executes a request with retry and rate-limit awareness. The caller owns
// the response body on success.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("orgboard/internal/githubapi").Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		nextReq := req.Clone(ctx)
		resp, err := c.doer.Do(nextReq)
		if err != nil {
			lastErr = err
			if span != nil {
				span.RecordError(err)
			}
			if attempt == c.retry.MaxAttempts {
				break
			}
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		info := ParseRateInfo(resp.Header, resp.StatusCode)
		decision := c.throttle.Evaluate(info)

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", info.Remaining),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		if !decision.Allow {
			drainAndClose(resp)
			lastErr = fmt.Errorf("rate limited (%s): %w", decision.Reason, ErrUpstream)
			if attempt == c.retry.MaxAttempts {
				break
			}
			c.Sleep(decision.WaitFor)
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("transient status %d", resp.StatusCode))
				}
				return resp, nil
			}
			drainAndClose(resp)
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return resp, nil
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("request attempts exhausted")
	}
	return nil, lastErr
}

func drainAndClose(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
