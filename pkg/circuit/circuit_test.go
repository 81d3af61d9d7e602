package circuit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	pkgError "github.com/govconnect/channel-gateway/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("case-service", 5, 2, time.Minute)

	for i := 0; i < 4; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State(), "failure %d must not open yet", i+1)
	}
	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker("case-service", 2, 2, 20*time.Millisecond)
	b.RecordFailure()
	b.RecordFailure()
	require.False(t, b.Allow())

	time.Sleep(30 * time.Millisecond)
	require.True(t, b.Allow(), "reset timeout elapsed, probe allowed")

	// One success is not enough for successThreshold=2.
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAdmitsOneProbe(t *testing.T) {
	b := NewBreaker("case-service", 1, 1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	require.True(t, b.Allow())
	assert.False(t, b.Allow(), "probe in flight, concurrent call rejected")
	assert.False(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("case-service", 1, 1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())
}

func TestClientRetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("case-service", srv.URL, Options{
		Retries:          3,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 10,
	})

	var out map[string]bool
	err := c.DoJSON(context.Background(), http.MethodGet, "/cases", nil, &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("case-service", srv.URL, Options{Retries: 3, RetryDelay: time.Millisecond})
	err := c.DoJSON(context.Background(), http.MethodPost, "/cases", map[string]string{"a": "b"}, nil)
	require.Error(t, err)

	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "VALIDATION_ERROR", ge.ErrCode())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("case-service", srv.URL, Options{})
	err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "AUTH_ERROR", ge.ErrCode())
}

func TestClientOpensBreakerAndFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("case-service", srv.URL, Options{
		Retries:          0,
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
	})

	for i := 0; i < 5; i++ {
		err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
		require.Error(t, err)
	}
	require.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, StateOpen, c.BreakerState())

	// Breaker open: fail fast without touching the wire.
	err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "CIRCUIT_OPEN", ge.ErrCode())
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestClientNetworkError(t *testing.T) {
	c := NewClient("case-service", "http://127.0.0.1:1", Options{Timeout: 200 * time.Millisecond})
	err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	var ge pkgError.GenericError
	require.ErrorAs(t, err, &ge)
	assert.Contains(t, []string{"NETWORK_ERROR", "TIMEOUT"}, ge.ErrCode())
}
