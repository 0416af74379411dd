package commands

import (
	"context"
	"encoding/json"
	"fmt"
)

// OpenCmd navigates to an application route through the guard.
type OpenCmd struct {
	Path string `arg:"" help:"Route path, e.g. /videos/42"`
}

func (c *OpenCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}

	requested, err := a.router.Resolve(c.Path)
	if err != nil {
		return err
	}

	route, err := a.router.Push(ctx, c.Path)
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	out := globals.out()
	if route.Path != requested.Path {
		fmt.Fprintf(out, "REDIRECT %s -> %s\n", requested.Path, route.Path)
		return nil
	}

	fmt.Fprintf(out, "ALLOW %s\n", route.Path)
	return nil
}

// GetCmd performs an authenticated API GET and prints the JSON response.
type GetCmd struct {
	Path string `arg:"" help:"API path, e.g. /api/videos"`
}

func (c *GetCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(globals)
	if err != nil {
		return err
	}

	var body json.RawMessage
	if err := a.client.Get(ctx, c.Path, &body); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}

	fmt.Fprintln(globals.out(), string(data))
	return nil
}
