// Package router resolves application paths against a nested route table and
// runs registered hooks before each transition is committed.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// maxRedirects bounds the number of hook redirects followed by a single Push.
const maxRedirects = 10

var (
	// ErrRouteNotFound is returned when no record matches a path.
	ErrRouteNotFound = errors.New("route not found")

	// ErrRedirectLoop is returned when hooks keep redirecting.
	ErrRedirectLoop = errors.New("too many redirects")

	// ErrInvalidRoute is returned for malformed route tables.
	ErrInvalidRoute = errors.New("invalid route")
)

// Meta is the per record metadata read by hooks.
type Meta struct {
	RequiresAuth bool `yaml:"requiresAuth" json:"requiresAuth"`
}

// RouteRecord is an entry in the route table. Child paths without a leading
// slash are relative to their parent.
type RouteRecord struct {
	Name     string        `yaml:"name" json:"name"`
	Path     string        `yaml:"path" json:"path"`
	Meta     Meta          `yaml:"meta" json:"meta"`
	Children []RouteRecord `yaml:"children" json:"children"`
}

// Route is a resolved location.
type Route struct {
	Path   string
	Name   string
	Params map[string]string
	Query  url.Values
	// Matched holds the records from the outermost parent to the leaf.
	Matched []RouteRecord
}

// RequiresAuth is true when any matched record is marked requiresAuth.
func (r Route) RequiresAuth() bool {
	for _, rec := range r.Matched {
		if rec.Meta.RequiresAuth {
			return true
		}
	}
	return false
}

// Outcome is a hook's decision. The zero value allows the transition.
type Outcome struct {
	Redirect string
}

func Allow() Outcome { return Outcome{} }

func RedirectTo(path string) Outcome { return Outcome{Redirect: path} }

func (o Outcome) Allowed() bool { return o.Redirect == "" }

func (o Outcome) String() string {
	if o.Allowed() {
		return "allow"
	}
	return "redirect"
}

// Hook runs before a transition from `from` to `to`.
type Hook func(ctx context.Context, to, from Route) Outcome

type compiled struct {
	segments []string
	chain    []RouteRecord
}

// Router holds the route table, registered hooks and the current route.
type Router struct {
	routes []compiled

	mu      sync.Mutex
	hooks   map[int]Hook
	order   []int
	nextID  int
	current Route
}

// New validates and compiles records.
func New(records []RouteRecord) (*Router, error) {
	r := &Router{hooks: make(map[int]Hook)}

	if err := r.compile(records, "", nil); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Router) compile(records []RouteRecord, prefix string, parents []RouteRecord) error {
	for _, rec := range records {
		if rec.Path == "" {
			return fmt.Errorf("%w: record %q has no path", ErrInvalidRoute, rec.Name)
		}

		full := rec.Path
		if !strings.HasPrefix(full, "/") {
			if prefix == "" {
				return fmt.Errorf("%w: top level path %q must start with /", ErrInvalidRoute, rec.Path)
			}
			full = strings.TrimSuffix(prefix, "/") + "/" + full
		}

		chain := make([]RouteRecord, len(parents), len(parents)+1)
		copy(chain, parents)
		chain = append(chain, rec)

		r.routes = append(r.routes, compiled{
			segments: splitPath(full),
			chain:    chain,
		})

		if err := r.compile(rec.Children, full, chain); err != nil {
			return err
		}
	}

	return nil
}

// BeforeEach registers a hook; hooks run in registration order. The returned
// function removes it.
func (r *Router) BeforeEach(hook Hook) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.hooks[id] = hook
	r.order = append(r.order, id)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.hooks, id)
	}
}

// Current returns the last committed route.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Resolve matches path against the table without running hooks. The
// returned Route.Path is normalized to a single leading slash with empty
// segments removed, so "login", "//login" and "/login/" all resolve to
// "/login".
func (r *Router) Resolve(path string) (Route, error) {
	rest, _, _ := strings.Cut(path, "#")
	rawPath, rawQuery, _ := strings.Cut(rest, "?")

	p, err := url.PathUnescape(rawPath)
	if err != nil {
		return Route{}, fmt.Errorf("invalid path %q: %w", path, err)
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Route{}, fmt.Errorf("invalid query in %q: %w", path, err)
	}

	segments := splitPath(p)
	normalized := "/" + strings.Join(segments, "/")

	for _, c := range r.routes {
		params, ok := match(c.segments, segments)
		if !ok {
			continue
		}

		leaf := c.chain[len(c.chain)-1]
		return Route{
			Path:    normalized,
			Name:    leaf.Name,
			Params:  params,
			Query:   query,
			Matched: c.chain,
		}, nil
	}

	return Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, normalized)
}

// Push navigates to path. Hooks may redirect, in which case resolution
// restarts at the new target. The committed route is returned.
func (r *Router) Push(ctx context.Context, path string) (Route, error) {
	from := r.Current()

	for hop := 0; hop <= maxRedirects; hop++ {
		to, err := r.Resolve(path)
		if err != nil {
			return Route{}, err
		}

		outcome := r.runHooks(ctx, to, from)
		if outcome.Allowed() {
			r.mu.Lock()
			r.current = to
			r.mu.Unlock()

			log.Debug().Str("path", to.Path).Str("from", from.Path).Msg("navigation committed")

			return to, nil
		}

		log.Debug().Str("path", to.Path).Str("redirect", outcome.Redirect).Msg("navigation redirected")

		path = outcome.Redirect
	}

	return Route{}, fmt.Errorf("%w: last target %s", ErrRedirectLoop, path)
}

func (r *Router) runHooks(ctx context.Context, to, from Route) Outcome {
	r.mu.Lock()
	hooks := make([]Hook, 0, len(r.order))
	for _, id := range r.order {
		if h, ok := r.hooks[id]; ok {
			hooks = append(hooks, h)
		}
	}
	r.mu.Unlock()

	for _, h := range hooks {
		if outcome := h(ctx, to, from); !outcome.Allowed() {
			return outcome
		}
	}

	return Allow()
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

// match compares pattern segments to path segments. ":name" captures one
// segment and a trailing "*" captures the rest.
func match(pattern, path []string) (map[string]string, bool) {
	params := map[string]string{}

	for i, seg := range pattern {
		if seg == "*" && i == len(pattern)-1 {
			params["*"] = strings.Join(path[min(i, len(path)):], "/")
			return params, true
		}
		if i >= len(path) {
			return nil, false
		}
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			params[name] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}

	if len(pattern) != len(path) {
		return nil, false
	}

	return params, true
}
