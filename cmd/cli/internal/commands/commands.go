package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wolfeidau/sessionkit/internal/apiclient"
	"github.com/wolfeidau/sessionkit/internal/guard"
	"github.com/wolfeidau/sessionkit/internal/localstore"
	"github.com/wolfeidau/sessionkit/internal/router"
	"github.com/wolfeidau/sessionkit/internal/session"
)

type Globals struct {
	Debug   bool
	Version string
	Server  string
	DataDir string
	Routes  string
	Timeout time.Duration

	// Out receives command output; defaults to stdout.
	Out io.Writer
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// app is the per invocation wiring of storage, session, client and router.
type app struct {
	session  *session.Store
	client   *apiclient.Client
	router   *router.Router
	location *apiclient.HardRedirect
}

func newApp(globals *Globals) (*app, error) {
	storage, err := localstore.NewFile(globals.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	sess := session.NewStore(storage)

	out := globals.out()
	loc := &apiclient.HardRedirect{
		OnAssign: func(path string) {
			fmt.Fprintf(out, "Session ended, redirected to %s. Run 'sessionkit login <username>' to sign in again.\n", path)
		},
	}

	cfg := apiclient.DefaultConfig()
	if globals.Server != "" {
		cfg.BaseURL = globals.Server
	}
	cfg.Timeout = globals.Timeout
	cfg.Debug = globals.Debug

	client, err := apiclient.New(cfg, sess, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	records := router.DefaultRoutes()
	if globals.Routes != "" {
		records, err = router.LoadRoutesFile(globals.Routes)
		if err != nil {
			return nil, err
		}
	}

	r, err := router.New(records)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	guard.New(client, sess).Install(r)

	return &app{
		session:  sess,
		client:   client,
		router:   r,
		location: loc,
	}, nil
}
