package httpclient

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/miniapp/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/miniapp/internal/shared/types"
)

func fastPolicy() Policy {
	return Policy{BaseDelay: time.Millisecond, Multiplier: 2, MaxAttempts: 5}
}

// statusSequence answers with codes in order, repeating the last one
func statusSequence(hits *int32, codes ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(hits, 1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
		if codes[n] == http.StatusOK {
			_, _ = w.Write([]byte("asset-body"))
		} else {
			_, _ = w.Write([]byte(`{"code":` + strconv.Itoa(codes[n]) + `,"message":"try later"}`))
		}
	}
}

func TestPolicySchedule(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, p.Schedule())
	assert.Equal(t, 4, p.Retries())
	assert.Equal(t, time.Duration(0), p.Delay(0))
}

func TestFetchExhaustsAttemptsOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(statusSequence(&hits, http.StatusInternalServerError))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	c := New(Options{Policy: fastPolicy(), Logger: zap.New(core)})

	var buf bytes.Buffer
	_, err := c.Fetch(context.Background(), srv.URL+"/a.js", &buf)
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
	assert.Zero(t, buf.Len())

	retries := logs.FilterMessage("retrying after server error").All()
	require.Len(t, retries, 4)
	var waits []time.Duration
	for i, entry := range retries {
		ctx := entry.ContextMap()
		assert.Equal(t, int64(i+1), ctx["attempt"])
		waits = append(waits, ctx["wait"].(time.Duration))
	}
	assert.Equal(t, fastPolicy().Schedule()[:4], waits)
	for i := 1; i < len(waits); i++ {
		assert.Greater(t, waits[i], waits[i-1])
	}
}

func TestFetchSucceedsOnSecondAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(statusSequence(&hits, http.StatusInternalServerError, http.StatusOK))
	defer srv.Close()

	c := New(Options{Policy: fastPolicy()})

	var buf bytes.Buffer
	n, err := c.Fetch(context.Background(), srv.URL+"/a.js", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("asset-body")), n)
	assert.Equal(t, "asset-body", buf.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		status int
		kind   types.ErrorKind
	}{
		{http.StatusNotFound, types.KindNotFound},
		{http.StatusTooManyRequests, types.KindTooManyRequests},
		{http.StatusBadRequest, types.KindServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(statusSequence(&hits, tt.status))
			defer srv.Close()

			c := New(Options{Policy: fastPolicy()})
			_, err := c.Fetch(context.Background(), srv.URL, &bytes.Buffer{})

			assert.Equal(t, tt.kind, types.KindOf(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		})
	}
}

func TestFetchOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{Policy: fastPolicy()})
	_, err := c.Fetch(context.Background(), url+"/a.js", &bytes.Buffer{})
	assert.True(t, types.IsOffline(err), err)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	c := New(Options{Policy: fastPolicy()})
	_, err := c.Fetch(ctx, srv.URL, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, types.IsOffline(err))
}

func TestFetchWriteFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(statusSequence(&hits, http.StatusOK))
	defer srv.Close()

	c := New(Options{Policy: fastPolicy()})
	_, err := c.Fetch(context.Background(), srv.URL, failingWriter{})
	assert.Equal(t, types.KindDownloadingFailed, types.KindOf(err))
	assert.False(t, types.IsOffline(err))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestGetClassifiesAuthErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token","errorDescription":"token expired"}`))
	}))
	defer srv.Close()

	c := New(Options{Policy: fastPolicy()})
	_, err := c.Get(context.Background(), srv.URL)

	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, types.KindServerError, typed.Kind)
	assert.Equal(t, http.StatusUnauthorized, typed.Code)
	assert.Equal(t, "token expired", typed.Message)
}

func TestGetServerErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"message":"bad host id"}`))
	}))
	defer srv.Close()

	c := New(Options{Policy: fastPolicy()})
	_, err := c.Get(context.Background(), srv.URL)

	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 400, typed.Code)
	assert.Equal(t, "bad host id", typed.Message)
}

func TestGetSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apiKey"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Signature", "c2ln")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(Options{Policy: fastPolicy(), Headers: map[string]string{"apiKey": "secret"}})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(resp.Body))
	assert.Equal(t, "c2ln", resp.Header.Get("Signature"))
}

func TestGetOpenBreakerIsOffline(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(statusSequence(&hits, http.StatusServiceUnavailable))
	defer srv.Close()

	c := New(Options{
		Policy: Policy{BaseDelay: time.Millisecond, Multiplier: 2, MaxAttempts: 1},
		Breaker: resilience.Settings{
			ReadyToTrip: func(counts resilience.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		},
	})

	_, err := c.Get(context.Background(), srv.URL)
	assert.True(t, types.IsTransient(err))
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err = c.Get(context.Background(), srv.URL)
	assert.True(t, types.IsOffline(err))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGetNotFoundDoesNotTripBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(statusSequence(&hits, http.StatusNotFound))
	defer srv.Close()

	c := New(Options{
		Policy: fastPolicy(),
		Breaker: resilience.Settings{
			ReadyToTrip: func(counts resilience.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		},
	})

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL)
		assert.ErrorIs(t, err, types.ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}
