package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eligibility/pkg/requestcontext"
)

func TestMemoryStoreAllow(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	for i := 0; i < 3; i++ {
		res, err := st.Allow(ctx, "u1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := st.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	other, err := st.Allow(ctx, "u2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func newLimitedRequest(userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("limits per caller and sets headers", func(t *testing.T) {
		mw := New(NewMemoryStore(), 2, time.Minute)
		h := mw.Handler(ok)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, newLimitedRequest(1))
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newLimitedRequest(1))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, newLimitedRequest(2))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("fails open on store errors", func(t *testing.T) {
		mw := New(failingStore{}, 1, time.Minute)
		rec := httptest.NewRecorder()
		mw.Handler(ok).ServeHTTP(rec, newLimitedRequest(1))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled passes everything through", func(t *testing.T) {
		mw := New(NewMemoryStore(), 0, time.Minute, WithDisabled(true))
		rec := httptest.NewRecorder()
		mw.Handler(ok).ServeHTTP(rec, newLimitedRequest(1))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("store down")
}
