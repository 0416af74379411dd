package apiclient

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sessionkit/internal/session"
	"golang.org/x/oauth2"
)

// authTransport adds the session's bearer token to outgoing requests.
type authTransport struct {
	session *session.Store
	next    http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.resolveToken()
	if token == "" {
		return t.next.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)

	log.Debug().Str("path", req.URL.Path).Msg("added authorization header")

	return t.next.RoundTrip(req)
}

// resolveToken prefers the in-memory session and falls back to the persisted
// token.
func (t *authTransport) resolveToken() string {
	if token := t.session.Token(); token != "" {
		return token
	}
	return t.session.PersistedToken()
}
