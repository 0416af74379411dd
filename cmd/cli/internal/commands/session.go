package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/sessionkit/internal/apiclient"
	"github.com/wolfeidau/sessionkit/internal/session"
)

// LoginCmd signs in with a username and password.
type LoginCmd struct {
	Username string `arg:"" help:"Username"`
	Password string `help:"Password" required:"" env:"SESSIONKIT_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}

	data, err := a.client.LoginWithPassword(ctx, c.Username, c.Password)
	if err != nil {
		if errors.Is(err, apiclient.ErrInvalidCredentials) {
			return fmt.Errorf("login failed: invalid username or password")
		}
		return err
	}

	fmt.Fprintf(globals.out(), "Logged in as %s (%s).\n", data.Username, data.Role)
	return nil
}

// RegisterCmd creates an account.
type RegisterCmd struct {
	Username string `arg:"" help:"Username"`
	Password string `help:"Password" required:"" env:"SESSIONKIT_PASSWORD"`
}

func (c *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}

	available, err := a.client.UsernameAvailable(ctx, c.Username)
	if err != nil {
		return err
	}
	if !available {
		return fmt.Errorf("username %q is already taken", c.Username)
	}

	if err := a.client.Register(ctx, c.Username, c.Password); err != nil {
		return err
	}

	fmt.Fprintf(globals.out(), "Registered %s. Run 'sessionkit login %s' to sign in.\n", c.Username, c.Username)
	return nil
}

// LogoutCmd ends the session.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}

	a.client.Logout(ctx)

	fmt.Fprintln(globals.out(), "Logged out.")
	return nil
}

// StatusCmd re-validates the session with the server and prints it.
type StatusCmd struct{}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}

	if _, err := a.router.Push(ctx, "/"); err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}

	state := a.session.Snapshot()
	out := globals.out()

	if !state.LoggedIn {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Username:\t%s\n", state.Username)
	fmt.Fprintf(w, "Role:\t%s\n", state.Role)

	if state.Token == "" {
		fmt.Fprintf(w, "Token:\tnone (cookie session)\n")
	} else {
		printClaims(w, state)
	}

	return w.Flush()
}

func printClaims(w *tabwriter.Writer, state session.State) {
	claims, err := session.ParseTokenClaims(state.Token)
	if err != nil {
		fmt.Fprintf(w, "Token:\topaque\n")
		return
	}

	fmt.Fprintf(w, "Token:\tJWT\n")
	if claims.Subject != "" {
		fmt.Fprintf(w, "Subject:\t%s\n", claims.Subject)
	}
	if !claims.ExpiresAt.IsZero() {
		status := "valid"
		if claims.Expired(time.Now()) {
			status = "expired"
		}
		fmt.Fprintf(w, "Expires:\t%s (%s)\n", claims.ExpiresAt.Format("2006-01-02 15:04:05"), status)
	}
}
