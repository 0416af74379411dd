package guard

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sessionkit/internal/apiclient"
	"github.com/wolfeidau/sessionkit/internal/router"
	"github.com/wolfeidau/sessionkit/internal/session"
	"github.com/wolfeidau/sessionkit/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Whoamier performs the server identity check.
type Whoamier interface {
	Whoami(ctx context.Context) (*apiclient.WhoamiResponse, error)
}

// Guard re-establishes the session from the server before every navigation
// and keeps unauthenticated users out of protected routes.
type Guard struct {
	client  Whoamier
	session *session.Store
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures a Guard.
type Option func(*Guard)

// WithMetrics overrides the global metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) {
		g.tracer = t
	}
}

func New(client Whoamier, sess *session.Store, opts ...Option) *Guard {
	g := &Guard{
		client:  client,
		session: sess,
		metrics: telemetry.GetMetrics(),
		tracer:  telemetry.Tracer(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Install registers the guard as a before-each hook on r.
func (g *Guard) Install(r *router.Router) func() {
	return r.BeforeEach(g.BeforeEach)
}

// BeforeEach decides a single transition. It never fails: an identity check
// error is treated as logged out.
func (g *Guard) BeforeEach(ctx context.Context, to, from router.Route) router.Outcome {
	ctx, span := g.tracer.Start(ctx, "guard.BeforeEach", trace.WithAttributes(
		attribute.String("route.path", to.Path),
		attribute.String("route.from", from.Path),
	))
	defer span.End()

	if to.Path == apiclient.LoginPath {
		return g.decide(ctx, span, router.Allow())
	}

	g.refreshSession(ctx, span)

	if to.RequiresAuth() && !g.session.IsLoggedIn() {
		log.Debug().Str("path", to.Path).Msg("redirecting to login: user not authenticated")
		return g.decide(ctx, span, router.RedirectTo(apiclient.LoginPath))
	}

	return g.decide(ctx, span, router.Allow())
}

// refreshSession syncs the store with the server's view of the caller.
func (g *Guard) refreshSession(ctx context.Context, span trace.Span) {
	g.metrics.IdentityChecksTotal.Add(ctx, 1)

	resp, err := g.client.Whoami(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("identity check failed, treating as logged out")

		span.RecordError(err)
		span.SetStatus(codes.Error, "identity check failed")
		g.metrics.IdentityCheckFailuresTotal.Add(ctx, 1)

		g.session.Logout()
		return
	}

	if !resp.LoggedIn {
		g.session.Logout()
		return
	}

	g.session.Login(resp.Username, g.session.PersistedToken(), resp.Role)
}

func (g *Guard) decide(ctx context.Context, span trace.Span, outcome router.Outcome) router.Outcome {
	span.SetAttributes(attribute.String("guard.outcome", outcome.String()))
	g.metrics.GuardDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome.String()),
	))
	return outcome
}
