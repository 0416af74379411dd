package main

import (
	"context"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sessionkit/cmd/cli/internal/commands"
	"github.com/wolfeidau/sessionkit/internal/logger"
	"github.com/wolfeidau/sessionkit/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login    commands.LoginCmd    `cmd:"" help:"Log in with a username and password"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Log out and forget the stored token"`
		Register commands.RegisterCmd `cmd:"" help:"Create an account"`
		Status   commands.StatusCmd   `cmd:"" help:"Show the current session"`
		Open     commands.OpenCmd     `cmd:"" help:"Navigate to an application route"`
		Get      commands.GetCmd      `cmd:"" help:"Send an authenticated GET to the API"`

		Server    string        `help:"API server URL (default http://localhost:8080)" env:"SESSIONKIT_SERVER"`
		DataDir   string        `help:"Local storage directory (default ~/.sessionkit)" env:"SESSIONKIT_DATA_DIR"`
		Routes    string        `help:"YAML route table" type:"existingfile" env:"SESSIONKIT_ROUTES"`
		Timeout   time.Duration `help:"Request timeout, 0 for none" default:"0s" env:"SESSIONKIT_TIMEOUT"`
		Telemetry bool          `help:"Export OpenTelemetry metrics and traces over OTLP" env:"SESSIONKIT_TELEMETRY"`
		Debug     bool          `help:"Enable debug mode." env:"SESSIONKIT_DEBUG"`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("sessionkit"),
		kong.Description("Session aware client for bearer token protected APIs."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	shutdown := func(context.Context) error { return nil }
	if cli.Telemetry {
		var err error
		shutdown, err = telemetry.InitTelemetry(ctx, "sessionkit", version)
		cmd.FatalIfErrorf(err)
	}

	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Version: version,
		Server:  cli.Server,
		DataDir: cli.DataDir,
		Routes:  cli.Routes,
		Timeout: cli.Timeout,
	})

	// flush before FatalIfErrorf exits
	if serr := shutdown(context.Background()); serr != nil {
		log.Warn().Err(serr).Msg("telemetry shutdown failed")
	}

	cmd.FatalIfErrorf(err)
}
