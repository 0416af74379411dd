package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/sessionkit/internal/localstore"
	"github.com/wolfeidau/sessionkit/internal/session"
	"github.com/wolfeidau/sessionkit/internal/telemetry/telemetrytest"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type testEnv struct {
	client   *Client
	session  *session.Store
	storage  *localstore.Memory
	location *HardRedirect
	reader   *sdkmetric.ManualReader
}

func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	metrics, reader := telemetrytest.NewMetrics(t)

	storage := localstore.NewMemory()
	sess := session.NewStore(storage)
	loc := &HardRedirect{}

	client, err := New(Config{BaseURL: srv.URL}, sess, loc,
		WithMetrics(metrics))
	require.NoError(t, err)

	return &testEnv{
		client:   client,
		session:  sess,
		storage:  storage,
		location: loc,
		reader:   reader,
	}
}

func authHeaderRecorder(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
}

func TestNew_InvalidBaseURL(t *testing.T) {
	sess := session.NewStore(localstore.NewMemory())

	_, err := New(Config{BaseURL: "not a url"}, sess, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "/relative"}, sess, nil)
	require.Error(t, err)
}

func TestClient_AttachesSessionToken(t *testing.T) {
	var got string
	env := newTestEnv(t, authHeaderRecorder(&got))

	env.session.Login("alice", "tok1", "admin")

	require.NoError(t, env.client.Get(context.Background(), "/api/videos", nil))
	assert.Equal(t, "Bearer tok1", got)
}

func TestClient_FallsBackToPersistedToken(t *testing.T) {
	var got string
	env := newTestEnv(t, authHeaderRecorder(&got))

	require.NoError(t, env.storage.SetItem(session.TokenKey, "abc123"))

	require.NoError(t, env.client.Get(context.Background(), "/api/videos", nil))
	assert.Equal(t, "Bearer abc123", got)
}

func TestClient_SessionTokenWinsOverPersisted(t *testing.T) {
	var got string
	env := newTestEnv(t, authHeaderRecorder(&got))

	require.NoError(t, env.storage.SetItem(session.TokenKey, "stale"))
	env.session.Login("alice", "fresh", "admin")

	require.NoError(t, env.client.Get(context.Background(), "/api/videos", nil))
	assert.Equal(t, "Bearer fresh", got)
}

func TestClient_NoTokenSendsNoHeader(t *testing.T) {
	got := "unset"
	env := newTestEnv(t, authHeaderRecorder(&got))

	require.NoError(t, env.client.Get(context.Background(), "/api/public", nil))
	assert.Empty(t, got)
}

func TestClient_DoesNotMutateCallerRequest(t *testing.T) {
	var got string
	env := newTestEnv(t, authHeaderRecorder(&got))
	env.session.Login("alice", "tok1", "admin")

	req, err := env.client.NewRequest(context.Background(), http.MethodGet, "/api/videos", nil)
	require.NoError(t, err)

	require.NoError(t, env.client.Do(req, nil))
	assert.Equal(t, "Bearer tok1", got)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestClient_UnauthorizedForcesLogoutAndRedirect(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
	}{
		{
			name:  "logged in",
			setup: func(env *testEnv) { env.session.Login("alice", "tok1", "admin") },
		},
		{
			name:  "persisted token only",
			setup: func(env *testEnv) { require.NoError(t, env.storage.SetItem(session.TokenKey, "abc123")) },
		},
		{
			name:  "logged out",
			setup: func(*testEnv) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}))
			tt.setup(env)

			err := env.client.Get(context.Background(), "/api/videos", nil)

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
			assert.True(t, IsUnauthorized(err))

			assert.False(t, env.session.IsLoggedIn())
			assert.Empty(t, env.session.PersistedToken())
			assert.Equal(t, LoginPath, env.location.Target())
			assert.Equal(t, 1, env.location.Count())
			assert.Equal(t, int64(1), telemetrytest.CounterValue(t, env.reader, "sessionkit.api.unauthorized_logouts.total"))
		})
	}
}

func TestClient_OtherStatusPassesThrough(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	env.session.Login("alice", "tok1", "admin")

	err := env.client.Get(context.Background(), "/api/admin", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Contains(t, string(httpErr.Body), "nope")
	assert.False(t, IsUnauthorized(err))

	assert.True(t, env.session.IsLoggedIn())
	assert.Empty(t, env.location.Target())
}

func TestClient_TransportErrorPassesThrough(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler())
	env.session.Login("alice", "tok1", "admin")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.client.Get(cancelled, "/api/videos", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	var urlErr *url.Error
	assert.ErrorAs(t, err, &urlErr)

	assert.True(t, env.session.IsLoggedIn())
	assert.Empty(t, env.location.Target())
}

func TestClient_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sess := session.NewStore(localstore.NewMemory())
	client, err := New(Config{BaseURL: "http://" + addr}, sess, &HardRedirect{})
	require.NoError(t, err)

	err = client.Get(context.Background(), "/api/videos", nil)
	require.Error(t, err)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestClient_DecodesJSON(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"title": "intro"})
	}))

	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, env.client.Get(context.Background(), "/api/videos/1", &out))
	assert.Equal(t, "intro", out.Title)
}

func TestClient_MalformedJSON(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))

	var out map[string]any
	err := env.client.Get(context.Background(), "/api/videos/1", &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{Method: "GET", URL: "http://api/x", Status: "404 Not Found", StatusCode: 404}
	assert.Equal(t, "GET http://api/x: 404 Not Found", err.Error())
}

func TestHardRedirect_OnAssign(t *testing.T) {
	var seen []string
	loc := &HardRedirect{OnAssign: func(path string) { seen = append(seen, path) }}

	loc.Assign("/login")
	loc.Assign("/login")

	assert.Equal(t, []string{"/login", "/login"}, seen)
	assert.Equal(t, 2, loc.Count())
	assert.Equal(t, "/login", loc.Target())
}
