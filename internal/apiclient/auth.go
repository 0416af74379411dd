package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const (
	WhoamiPath       = "/api/whoami"
	LoginAPI         = "/api/login"
	LogoutAPI        = "/api/logout"
	RegisterAPI      = "/api/register"
	UsernameCheckAPI = "/api/username-check"
)

var (
	// ErrInvalidCredentials is returned when the server rejects a login with 401.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrLoginRejected is returned when the server answers a login with success=false.
	ErrLoginRejected = errors.New("login rejected")

	// ErrRegistrationRejected is returned when the server answers a registration
	// with success=false, e.g. for a taken username.
	ErrRegistrationRejected = errors.New("registration rejected")
)

// WhoamiResponse is the identity reported by the server.
type WhoamiResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// LoginResponse is the body returned by the login endpoint.
type LoginResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    *LoginData `json:"data,omitempty"`
}

// RegisterRequest is the body sent to the registration endpoint.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginData struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Whoami asks the server who the current credentials belong to.
func (c *Client) Whoami(ctx context.Context) (*WhoamiResponse, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, WhoamiPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp WhoamiResponse
	if err := c.Do(req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// LoginWithPassword exchanges credentials for a token, persists the token and
// marks the session logged in.
func (c *Client) LoginWithPassword(ctx context.Context, username, password string) (*LoginData, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var resp LoginResponse
	if err := c.PostForm(ctx, LoginAPI, form, &resp); err != nil {
		if IsUnauthorized(err) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	if !resp.Success || resp.Data == nil || resp.Data.Token == "" {
		return nil, fmt.Errorf("%w: %s", ErrLoginRejected, resp.Message)
	}

	if err := c.session.PersistLogin(resp.Data.Username, resp.Data.Token, resp.Data.Role); err != nil {
		return nil, err
	}

	log.Info().
		Str("username", resp.Data.Username).
		Str("role", resp.Data.Role).
		Msg("logged in")

	return resp.Data, nil
}

// Logout notifies the server and clears the local session. Server errors are
// logged; the local session is always cleared.
func (c *Client) Logout(ctx context.Context) {
	if err := c.Get(ctx, LogoutAPI, nil); err != nil {
		log.Warn().Err(err).Msg("server logout failed")
	}

	c.session.Logout()
}

// UsernameAvailable reports whether username is free to register.
func (c *Client) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	q := url.Values{}
	q.Set("username", username)

	var available bool
	if err := c.Get(ctx, UsernameCheckAPI+"?"+q.Encode(), &available); err != nil {
		return false, fmt.Errorf("username check failed: %w", err)
	}

	return available, nil
}

// Register creates an account. It does not log in; the server issues no token
// on registration.
func (c *Client) Register(ctx context.Context, username, password string) error {
	var resp LoginResponse
	if err := c.PostJSON(ctx, RegisterAPI, RegisterRequest{Username: username, Password: password}, &resp); err != nil {
		return fmt.Errorf("registration request failed: %w", err)
	}

	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRegistrationRejected, resp.Message)
	}

	log.Info().Str("username", username).Msg("registered")

	return nil
}
