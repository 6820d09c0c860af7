package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/funding-collector/internal/logging"
	"github.com/irfndi/funding-collector/internal/utils"
)

func newTestClient() *Client {
	return NewClient(Options{UserAgent: "funding-collector-test", Logger: logging.NewDiscardLogger()})
}

func TestClient_FetchJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "ALL", r.URL.Query().Get("market"))
		assert.Equal(t, "funding-collector-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"results":[{"symbol":"BTC-USD-PERP"}]}`))
	}))
	defer server.Close()

	raw, err := newTestClient().FetchJSON(context.Background(), server.URL+"/v1/markets/summary", RequestOptions{
		Query:   url.Values{"market": []string{"ALL"}},
		Timeout: time.Second,
	})
	require.NoError(t, err)

	var payload struct {
		Results []struct {
			Symbol string `json:"symbol"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "BTC-USD-PERP", payload.Results[0].Symbol)
}

func TestClient_FetchJSON_PostBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "metaAndAssetCtxs", body["type"])
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	raw, err := newTestClient().FetchJSON(context.Background(), server.URL, RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"type": "metaAndAssetCtxs"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestClient_FetchJSON_HTTPErrorSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("e", 1000)))
	}))
	defer server.Close()

	_, err := newTestClient().FetchJSON(context.Background(), server.URL, RequestOptions{})

	var httpErr *utils.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Len(t, httpErr.Snippet, utils.SnippetLimit)
}

func TestClient_FetchJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient().FetchJSON(context.Background(), server.URL, RequestOptions{Timeout: 50 * time.Millisecond})

	var timeoutErr *utils.TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
}

func TestClient_FetchJSON_ParentCancelIsNotTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient().FetchJSON(ctx, server.URL, RequestOptions{})

	assert.ErrorIs(t, err, context.Canceled)
	var timeoutErr *utils.TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestClient_FetchJSON_InvalidJSONIsShapeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	_, err := newTestClient().FetchJSON(context.Background(), server.URL, RequestOptions{})

	var shapeErr *utils.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "<html>maintenance</html>", shapeErr.Sample)
}

func TestClient_FetchJSON_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Options{RateLimit: 1000, Logger: logging.NewDiscardLogger()})
	for i := 0; i < 3; i++ {
		_, err := client.FetchJSON(context.Background(), server.URL, RequestOptions{})
		require.NoError(t, err)
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://api.aevo.xyz/markets", JoinURL("https://api.aevo.xyz/", "/markets"))
	assert.Equal(t, "https://api.aevo.xyz/markets", JoinURL("https://api.aevo.xyz", "markets"))
}

func TestDecode_ShapeError(t *testing.T) {
	var target struct {
		Markets map[string]interface{} `json:"markets"`
	}

	err := Decode("dydx markets", []byte(`{"markets":[1,2]}`), &target)

	var shapeErr *utils.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "dydx markets", shapeErr.Label)
}
