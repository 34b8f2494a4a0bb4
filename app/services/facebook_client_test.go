package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/audience-orchestrator/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacebookClient(t *testing.T, handler http.HandlerFunc, retries int) (FacebookClient, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var sleeps []time.Duration
	client := NewFacebookClient(config.FacebookConfig{
		GraphURL:   server.URL,
		APIVersion: "v19.0",
		AppID:      "app",
		AppSecret:  "secret",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	}, WithSleepFunc(func(d time.Duration) { sleeps = append(sleeps, d) }))
	return client, &sleeps
}

func TestReachEstimate(t *testing.T) {
	client, _ := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/act_1/reachestimate", r.URL.Path)
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
		assert.NotEmpty(t, r.URL.Query().Get("appsecret_proof"))

		var spec map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("targeting_spec")), &spec))
		assert.Equal(t, []any{"A1"}, spec["connections"])

		_, _ = w.Write([]byte(`{"data":{"users":4200,"estimate_ready":true}}`))
	}, 0)

	est, err := client.ReachEstimate(context.Background(), "act_1", "user-token", map[string]any{"connections": []string{"A1"}})
	require.NoError(t, err)
	assert.True(t, est.Ready)
	assert.Equal(t, int64(4200), est.Users)
	assert.JSONEq(t, `{"data":{"users":4200,"estimate_ready":true}}`, string(est.Raw))
}

func TestGraphErrorPayload(t *testing.T) {
	client, sleeps := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"no permission","type":"OAuthException","code":200,"fbtrace_id":"abc"}}`))
	}, 3)

	_, err := client.AdAccountStatus(context.Background(), "act_1", "tok")
	require.Error(t, err)

	apiErr, ok := AsFacebookAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.True(t, apiErr.IsPermissionError())
	assert.False(t, apiErr.IsTokenError())
	assert.Empty(t, *sleeps, "4xx answers are not retried")
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, sleeps := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"long-lived"}`))
	}, 3)

	token, err := client.ExchangeToken(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, "long-lived", token)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *sleeps, 2)
}

func TestRetriesExhausted(t *testing.T) {
	client, _ := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}, 1)

	_, err := client.ExchangeToken(context.Background(), "short")
	assert.ErrorIs(t, err, ErrGraphUnavailable)
}

func TestSubscribeApp(t *testing.T) {
	client, _ := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/page-1/subscribed_apps", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("subscribed_fields"), "messages")
		_, _ = w.Write([]byte(`{"success":true}`))
	}, 0)

	require.NoError(t, client.SubscribeApp(context.Background(), "page-1", "page-token"))
}

func TestUserPages(t *testing.T) {
	client, _ := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/me/accounts", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"A1","name":"Page","access_token":"page-token"}]}`))
	}, 0)

	pages, err := client.UserPages(context.Background(), "user-token")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "A1", pages[0].ID)
	assert.Equal(t, "page-token", pages[0].AccessToken)
}

func TestGraphTokenValidator(t *testing.T) {
	tests := []struct {
		name     string
		response string
		valid    bool
	}{
		{name: "valid without expiry", response: `{"data":{"is_valid":true,"expires_at":0}}`, valid: true},
		{name: "invalid", response: `{"data":{"is_valid":false}}`, valid: false},
		{name: "expired", response: `{"data":{"is_valid":true,"expires_at":1000}}`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestFacebookClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v19.0/debug_token", r.URL.Path)
				assert.Equal(t, "app|secret", r.URL.Query().Get("access_token"))
				_, _ = w.Write([]byte(tt.response))
			}, 0)

			valid, err := NewGraphTokenValidator(client).Validate(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}
}
