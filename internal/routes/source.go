// ABOUTME: Filesystem route source listing auth records and markdown content routes
// ABOUTME: Decodes auth files from JSON (with comments), YAML or TOML

package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/2389/passgate/internal/auth"
)

// authFiles lists accepted auth file names in precedence order.
var authFiles = []string{"auth.json", "auth.jsonc", "auth.yaml", "auth.yml", "auth.toml"}

// ErrNotFound is returned by Page when a route has no such page.
var ErrNotFound = errors.New("page not found")

// authFile is the on-disk shape of a route's auth configuration.
type authFile struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Passphrase string `json:"passphrase" yaml:"passphrase" toml:"passphrase"`
	Expires    string `json:"expires" yaml:"expires" toml:"expires"`
}

// Source reads routes from a filesystem.
type Source struct {
	fsys   fs.FS
	logger *slog.Logger
}

var _ auth.RouteSource = (*Source)(nil)

// New creates a Source over fsys.
func New(fsys fs.FS, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{fsys: fsys, logger: logger.With("component", "routes")}
}

// NewDirSource creates a Source over a directory on disk.
func NewDirSource(dir string, logger *slog.Logger) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening routes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("routes path %s is not a directory", dir)
	}
	return New(os.DirFS(dir), logger), nil
}

// AuthRecords returns one record per route directory holding an auth file,
// ordered by route name. Files that can't be read or decoded are logged and
// skipped, leaving their route inaccessible.
func (s *Source) AuthRecords(ctx context.Context) ([]auth.Record, error) {
	dirs, err := s.routeDirs()
	if err != nil {
		return nil, err
	}

	var records []auth.Record
	for _, route := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var found string
		for _, name := range authFiles {
			p := path.Join(route, name)
			if _, err := fs.Stat(s.fsys, p); err != nil {
				continue
			}
			if found != "" {
				s.logger.Warn("ignoring extra auth file", "route", route, "file", p, "using", found)
				continue
			}
			found = p
		}
		if found == "" {
			continue
		}

		rec, err := s.readAuthFile(route, found)
		if err != nil {
			s.logger.Error("unreadable auth file - route is not accessible", "route", route, "file", found, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ContentRoutes returns every route directory containing markdown, at any depth.
func (s *Source) ContentRoutes(ctx context.Context) ([]string, error) {
	dirs, err := s.routeDirs()
	if err != nil {
		return nil, err
	}

	var routes []string
	for _, route := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		has, err := s.hasMarkdown(route)
		if err != nil {
			return nil, fmt.Errorf("scanning route %s: %w", route, err)
		}
		if has {
			routes = append(routes, route)
		}
	}
	return routes, nil
}

// Page returns the markdown source of a page within route. An empty page
// resolves to the route's index.md; a page naming a directory resolves to
// its index.md.
func (s *Source) Page(route, page string) ([]byte, error) {
	p := strings.Trim(path.Clean("/"+page), "/")
	if !fs.ValidPath(route) || strings.Contains(route, "/") {
		return nil, ErrNotFound
	}

	candidates := []string{path.Join(route, p, "index.md")}
	if p != "" {
		candidates = append([]string{path.Join(route, strings.TrimSuffix(p, ".md")+".md")}, candidates...)
	}

	for _, c := range candidates {
		data, err := fs.ReadFile(s.fsys, c)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", c, err)
		}
	}
	return nil, ErrNotFound
}

func (s *Source) routeDirs() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (s *Source) hasMarkdown(route string) (bool, error) {
	found := false
	err := fs.WalkDir(s.fsys, route, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".md") {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found, err
}

func (s *Source) readAuthFile(route, p string) (auth.Record, error) {
	data, err := fs.ReadFile(s.fsys, p)
	if err != nil {
		return auth.Record{}, err
	}

	var f authFile
	switch path.Ext(p) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	default:
		err = fmt.Errorf("unsupported auth file format %q", path.Ext(p))
	}
	if err != nil {
		return auth.Record{}, fmt.Errorf("parsing %s: %w", p, err)
	}

	return auth.Record{
		Route:       route,
		Passphrase:  f.Passphrase,
		DisplayName: f.Name,
		Expires:     f.Expires,
		Source:      p,
	}, nil
}
