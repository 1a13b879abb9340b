package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	calls := 0
	rt := &retryTransport{
		maxRetries: 2,
		backoff:    time.Millisecond,
		base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
			}
			body, _ := io.ReadAll(r.Body)
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(body)))}, nil
		}),
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "http://bot-api/getMe", strings.NewReader("x=1"))
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "x=1", string(body))
}

func TestRetryTransportStopsOnPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("malformed response")
	rt := &retryTransport{
		maxRetries: 3,
		backoff:    time.Millisecond,
		base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, permanent
		}),
	}

	req, err := http.NewRequest(http.MethodGet, "http://bot-api/getMe", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBuildHTTPClientTimeoutCoversLongPoll(t *testing.T) {
	client := BuildHTTPClient(HTTPClientOptions{LongPollTimeout: 60 * time.Second})
	assert.Greater(t, client.Timeout, 60*time.Second)
}
