package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/history", r.URL.Path)
		assert.Equal(t, "SPY", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("tf"))
		_, _ = w.Write([]byte(`[
			{"startMs":600000,"open":100,"high":101,"low":99,"close":100.5,"volume":1000},
			{"startMs":660000,"open":100.5,"high":102,"low":100,"close":101.5,"volume":900}
		]`))
	}))
	defer srv.Close()

	p := NewRESTProvider(srv.URL, time.Second)
	bars, err := p.Fetch(context.Background(), "SPY", 1, 600_000, 720_000)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, int64(10), bars[0].Seq) // floor(startMs/60000)
	assert.Equal(t, int64(600_000), bars[0].StartMs)
	assert.Equal(t, int64(660_000), bars[0].EndMs)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, "SPY", bars[0].Symbol)
}

func TestRESTProviderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRESTProvider(srv.URL, time.Second).Fetch(context.Background(), "SPY", 1, 0, 60_000)
	assert.Error(t, err)
}

func TestRESTProviderBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"oops":`))
	}))
	defer srv.Close()

	_, err := NewRESTProvider(srv.URL, time.Second).Fetch(context.Background(), "SPY", 1, 0, 60_000)
	assert.Error(t, err)
}

func TestRESTProviderEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	bars, err := NewRESTProvider(srv.URL, time.Second).Fetch(context.Background(), "SPY", 1, 0, 120_000)
	require.NoError(t, err)
	assert.Empty(t, bars)
}
