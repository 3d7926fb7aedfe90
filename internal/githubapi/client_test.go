package githubapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type fakeDoer struct {
	responses []*http.Response
	errs      []error
	calls     int
	requests  []*http.Request
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	index := d.calls
	d.calls++
	d.requests = append(d.requests, req)

	if index < len(d.errs) && d.errs[index] != nil {
		return nil, d.errs[index]
	}
	if index < len(d.responses) {
		return d.responses[index], nil
	}
	return newResponse(http.StatusOK, nil, `{}`), nil
}

func newResponse(statusCode int, headers map[string]string, body string) *http.Response {
	header := http.Header{}
	for key, value := range headers {
		header.Set(key, value)
	}
	return &http.Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

func newTestClient(doer HTTPDoer, maxAttempts int) *Client {
	client := NewClient(doer, RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, ThrottlePolicy{
		Now: func() time.Time { return time.Unix(1739836800, 0) },
	})
	client.Sleep = func(time.Duration) {}
	return client
}

func TestClientRetriesTransportErrors(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		errs:      []error{fmt.Errorf("connection reset"), nil},
		responses: []*http.Response{nil, newResponse(http.StatusOK, nil, `{}`)},
	}
	client := newTestClient(doer, 3)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://api.github.com/orgs/acme/repos", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if doer.calls != 2 {
		t.Fatalf("calls = %d, want 2", doer.calls)
	}
}

func TestClientExhaustsAttemptsOnTransportError(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		errs: []error{fmt.Errorf("boom"), fmt.Errorf("boom"), fmt.Errorf("boom")},
	}
	client := newTestClient(doer, 3)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://api.github.com/orgs/acme/repos", nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatalf("Do() expected error after exhausted attempts")
	}
	if doer.calls != 3 {
		t.Fatalf("calls = %d, want 3", doer.calls)
	}
}

func TestClientRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusBadGateway, nil, ``),
			newResponse(http.StatusOK, nil, `{}`),
		},
	}
	client := newTestClient(doer, 3)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://api.github.com/orgs/acme/repos", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 after retry", resp.StatusCode)
	}
}

func TestClientPausesOnSecondaryLimit(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusTooManyRequests, map[string]string{"Retry-After": "2"}, ``),
			newResponse(http.StatusOK, nil, `{}`),
		},
	}
	client := newTestClient(doer, 3)

	var slept []time.Duration
	client.Sleep = func(d time.Duration) { slept = append(slept, d) }

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://api.github.com/orgs/acme/repos", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(slept) == 0 || slept[0] < 2*time.Second {
		t.Fatalf("slept = %v, want at least Retry-After pause", slept)
	}
}

func TestClientRejectsNilRequest(t *testing.T) {
	t.Parallel()

	client := newTestClient(&fakeDoer{}, 1)
	if _, err := client.Do(nil); err == nil {
		t.Fatalf("Do(nil) expected error")
	}
}

func TestBackoffForAttempt(t *testing.T) {
	t.Parallel()

	retry := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second}
	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 4 * time.Second},
	}
	for _, tc := range testCases {
		if got := backoffForAttempt(retry, tc.attempt); got != tc.want {
			t.Fatalf("backoffForAttempt(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
