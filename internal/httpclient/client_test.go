package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/flaky":
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/bad":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad"}`))
		default:
			assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	client := NewDefaultClient(ClientConfig{Timeout: time.Second, ReadRetries: 2})

	t.Run("headers are forwarded", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		resp, err := client.Send(context.Background(), &Request{
			Method:  http.MethodPost,
			URL:     srv.URL + "/ok",
			Headers: map[string]string{"X-API-KEY": "secret"},
			Body:    []byte(`{}`),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("GET is retried on 5xx", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL + "/flaky"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("POST is not retried", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		_, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL + "/flaky", Body: []byte(`{}`)})
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("4xx is returned as http error", func(t *testing.T) {
		_, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL + "/bad", Body: []byte(`{}`)})
		require.Error(t, err)
		httpErr, ok := IsHTTPError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
		assert.True(t, ierr.IsHTTPClient(err))
	})
}
