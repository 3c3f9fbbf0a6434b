package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/httpclient"
)

func newTestClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.Name = "test"
	return httpclient.NewClient(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer server.Close()

	var out map[string]string
	err := newTestClient().PostJSON(context.Background(), server.URL, httpclient.BearerAuth("tok"),
		map[string]string{"name": "clover"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "clover", out["echo"])
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"try later"}`))
	}))
	defer server.Close()

	err := newTestClient().GetJSON(context.Background(), server.URL+"?access_token=secret", nil, nil)

	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
	assert.NotContains(t, statusErr.Error(), "secret")
}

func TestClient_TransportErrorRedactsQuery(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	err := newTestClient().GetJSON(context.Background(), server.URL+"/insights?access_token=secret&fields=spend", nil, nil)

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
	assert.Contains(t, err.Error(), server.URL+"/insights")

	var urlErr *url.Error
	require.True(t, errors.As(err, &urlErr))
	assert.Equal(t, server.URL+"/insights", urlErr.URL)
}

func TestParseBody(t *testing.T) {
	value, err := httpclient.ParseBody(&httpclient.Response{
		Body:        []byte(`{"data":[1,2]}`),
		ContentType: "application/json; charset=UTF-8",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"data": []any{1.0, 2.0}}, value)
}
