package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadReturnsLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.Client())
	result, err := adapter.Head(context.Background(), "h1", srv.URL, nil)
	require.Nil(t, err)
	require.NotNil(t, result.Length)
	assert.Equal(t, int64(1048576), *result.Length)
	assert.False(t, result.LengthUnknown)
}

func TestHeadToleratesMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.Client())
	result, err := adapter.Head(context.Background(), "h1", srv.URL, nil)
	require.Nil(t, err)
	assert.True(t, result.LengthUnknown)
}

func TestGetRangedReturns206(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=100-199", r.Header.Get("Range"))
		w.Header().Set("Content-Range", "bytes 100-199/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.Client())
	end := uint64(199)
	resp, err := adapter.Get(context.Background(), "h1", srv.URL, nil, &Range{Start: 100, End: &end})
	require.Nil(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)

	total, ok := ParseContentRangeTotal(resp.Header.Get("Content-Range"))
	require.True(t, ok)
	assert.Equal(t, uint64(1000), total)
}

func TestGetPermanentErrorOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.Client())
	_, err := adapter.Get(context.Background(), "h1", srv.URL, nil, nil)
	require.NotNil(t, err)
	assert.Equal(t, "permanent", string(err.Kind))
}

func TestGetNetworkErrorOn503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewAdapter(srv.Client())
	_, err := adapter.Get(context.Background(), "h1", srv.URL, nil, nil)
	require.NotNil(t, err)
	assert.Equal(t, "network", string(err.Kind))
}

func TestCancelAllCancelsInFlightCalls(t *testing.T) {
	adapter := NewAdapter(http.DefaultClient)
	ctx, cancel := adapter.registerCall(context.Background(), "h1")
	defer cancel()

	adapter.CancelAll("h1")
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be cancelled")
	}
}
