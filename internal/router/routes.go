package router

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type routeFile struct {
	Routes []RouteRecord `yaml:"routes"`
}

// LoadRoutes decodes a YAML route table:
//
//	routes:
//	  - path: /videos
//	    meta: {requiresAuth: true}
//	    children:
//	      - path: ":id"
func LoadRoutes(r io.Reader) ([]RouteRecord, error) {
	var f routeFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty route table", ErrInvalidRoute)
		}
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}

	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("%w: empty route table", ErrInvalidRoute)
	}

	return f.Routes, nil
}

// LoadRoutesFile reads a route table from path.
func LoadRoutesFile(path string) ([]RouteRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open routes file: %w", err)
	}
	defer f.Close()

	return LoadRoutes(f)
}

// DefaultRoutes is the built in table used when no routes file is given.
func DefaultRoutes() []RouteRecord {
	return []RouteRecord{
		{Name: "home", Path: "/"},
		{Name: "login", Path: "/login"},
		{Name: "register", Path: "/register"},
		{
			Name: "videos",
			Path: "/videos",
			Meta: Meta{RequiresAuth: true},
			Children: []RouteRecord{
				{Name: "video", Path: ":id"},
			},
		},
		{Name: "upload", Path: "/upload", Meta: Meta{RequiresAuth: true}},
		{Name: "profile", Path: "/profile", Meta: Meta{RequiresAuth: true}},
	}
}
