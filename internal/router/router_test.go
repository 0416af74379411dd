package router

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(DefaultRoutes())
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newDefaultRouter(t)

	tests := []struct {
		name         string
		path         string
		wantName     string
		requiresAuth bool
		params       map[string]string
	}{
		{name: "root", path: "/", wantName: "home"},
		{name: "empty is root", path: "", wantName: "home"},
		{name: "login", path: "/login", wantName: "login"},
		{name: "trailing slash", path: "/login/", wantName: "login"},
		{name: "protected parent", path: "/videos", wantName: "videos", requiresAuth: true},
		{
			name:         "child inherits protection",
			path:         "/videos/42",
			wantName:     "video",
			requiresAuth: true,
			params:       map[string]string{"id": "42"},
		},
		{name: "protected leaf", path: "/upload?draft=1", wantName: "upload", requiresAuth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := r.Resolve(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, route.Name)
			assert.Equal(t, tt.requiresAuth, route.RequiresAuth())
			if tt.params != nil {
				assert.Equal(t, tt.params, route.Params)
			}
		})
	}
}

func TestResolve_MatchedChain(t *testing.T) {
	r := newDefaultRouter(t)

	route, err := r.Resolve("/videos/7")
	require.NoError(t, err)
	require.Len(t, route.Matched, 2)
	assert.Equal(t, "videos", route.Matched[0].Name)
	assert.Equal(t, "video", route.Matched[1].Name)
	assert.False(t, route.Matched[1].Meta.RequiresAuth)
	assert.True(t, route.RequiresAuth())
}

func TestResolve_QueryParsed(t *testing.T) {
	r := newDefaultRouter(t)

	route, err := r.Resolve("/upload?draft=1")
	require.NoError(t, err)
	assert.Equal(t, "/upload", route.Path)
	assert.Equal(t, "1", route.Query.Get("draft"))
}

func TestResolve_NormalizesPath(t *testing.T) {
	r := newDefaultRouter(t)

	tests := []struct {
		path     string
		wantPath string
		wantName string
	}{
		{path: "", wantPath: "/", wantName: "home"},
		{path: "login", wantPath: "/login", wantName: "login"},
		{path: "//login", wantPath: "/login", wantName: "login"},
		{path: "/login/", wantPath: "/login", wantName: "login"},
		{path: "/videos//42", wantPath: "/videos/42", wantName: "video"},
		{path: "/login?next=/videos", wantPath: "/login", wantName: "login"},
		{path: "/login#top", wantPath: "/login", wantName: "login"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, err := r.Resolve(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, route.Path)
			assert.Equal(t, tt.wantName, route.Name)
		})
	}
}

func TestResolve_KeepsQueryAfterNormalizing(t *testing.T) {
	r := newDefaultRouter(t)

	route, err := r.Resolve("login?next=/videos")
	require.NoError(t, err)
	assert.Equal(t, "/login", route.Path)
	assert.Equal(t, "/videos", route.Query.Get("next"))
}

func TestResolve_InvalidEscape(t *testing.T) {
	r := newDefaultRouter(t)

	_, err := r.Resolve("/videos/%zz")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRouteNotFound)
}

func TestResolve_NotFound(t *testing.T) {
	r := newDefaultRouter(t)

	_, err := r.Resolve("/nope")
	assert.ErrorIs(t, err, ErrRouteNotFound)

	_, err = r.Resolve("/videos/1/2")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestResolve_Wildcard(t *testing.T) {
	r, err := New([]RouteRecord{
		{Name: "docs", Path: "/docs/*"},
	})
	require.NoError(t, err)

	route, err := r.Resolve("/docs/a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", route.Params["*"])

	route, err = r.Resolve("/docs")
	require.NoError(t, err)
	assert.Equal(t, "", route.Params["*"])
}

func TestNew_InvalidRecords(t *testing.T) {
	_, err := New([]RouteRecord{{Name: "nopath"}})
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, err = New([]RouteRecord{{Name: "relative", Path: "relative"}})
	assert.ErrorIs(t, err, ErrInvalidRoute)
}

func TestPush_HooksRunInOrder(t *testing.T) {
	r := newDefaultRouter(t)

	var calls []string
	r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		calls = append(calls, "first:"+to.Path)
		return Allow()
	})
	r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		calls = append(calls, "second:"+to.Path)
		return Allow()
	})

	route, err := r.Push(context.Background(), "/profile")
	require.NoError(t, err)
	assert.Equal(t, "profile", route.Name)
	assert.Equal(t, route, r.Current())
	assert.Equal(t, []string{"first:/profile", "second:/profile"}, calls)
}

func TestPush_Redirect(t *testing.T) {
	r := newDefaultRouter(t)

	var fromPaths []string
	r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		fromPaths = append(fromPaths, from.Path)
		if to.RequiresAuth() {
			return RedirectTo("/login")
		}
		return Allow()
	})

	_, err := r.Push(context.Background(), "/")
	require.NoError(t, err)

	route, err := r.Push(context.Background(), "/videos/1")
	require.NoError(t, err)
	assert.Equal(t, "/login", route.Path)
	assert.Equal(t, "/login", r.Current().Path)

	// redirected attempt still reports the committed route as its origin
	assert.Equal(t, []string{"", "/", "/"}, fromPaths)
}

func TestPush_ShortCircuitsOnRedirect(t *testing.T) {
	r := newDefaultRouter(t)

	second := 0
	r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		if to.Path == "/upload" {
			return RedirectTo("/")
		}
		return Allow()
	})
	r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		second++
		return Allow()
	})

	route, err := r.Push(context.Background(), "/upload")
	require.NoError(t, err)
	assert.Equal(t, "/", route.Path)
	assert.Equal(t, 1, second)
}

func TestPush_RedirectLoop(t *testing.T) {
	r := newDefaultRouter(t)

	r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		if to.Path == "/login" {
			return RedirectTo("/")
		}
		return RedirectTo("/login")
	})

	_, err := r.Push(context.Background(), "/")
	assert.ErrorIs(t, err, ErrRedirectLoop)
	assert.Equal(t, Route{}, r.Current())
}

func TestPush_NotFound(t *testing.T) {
	r := newDefaultRouter(t)

	_, err := r.Push(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestBeforeEach_Remove(t *testing.T) {
	r := newDefaultRouter(t)

	calls := 0
	remove := r.BeforeEach(func(ctx context.Context, to, from Route) Outcome {
		calls++
		return Allow()
	})

	_, err := r.Push(context.Background(), "/")
	require.NoError(t, err)
	remove()
	_, err = r.Push(context.Background(), "/login")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestOutcome(t *testing.T) {
	assert.True(t, Allow().Allowed())
	assert.Equal(t, "allow", Allow().String())
	assert.False(t, RedirectTo("/login").Allowed())
	assert.Equal(t, "redirect", RedirectTo("/login").String())
}

func TestLoadRoutes(t *testing.T) {
	doc := `
routes:
  - path: /
    name: home
  - path: /login
    name: login
  - path: /admin
    name: admin
    meta:
      requiresAuth: true
    children:
      - path: users
        name: users
      - path: /status
        name: status
`
	records, err := LoadRoutes(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, records, 3)

	r, err := New(records)
	require.NoError(t, err)

	route, err := r.Resolve("/admin/users")
	require.NoError(t, err)
	assert.Equal(t, "users", route.Name)
	assert.True(t, route.RequiresAuth())

	// absolute child paths keep the parent chain
	route, err = r.Resolve("/status")
	require.NoError(t, err)
	assert.Equal(t, "status", route.Name)
	assert.True(t, route.RequiresAuth())
}

func TestLoadRoutes_Errors(t *testing.T) {
	_, err := LoadRoutes(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, err = LoadRoutes(strings.NewReader("routes: []\n"))
	assert.ErrorIs(t, err, ErrInvalidRoute)

	_, err = LoadRoutes(strings.NewReader("routes:\n  - path: /\n    bogus: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse routes")
}

func TestLoadRoutesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - path: /\n"), 0600))

	records, err := LoadRoutesFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = LoadRoutesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
