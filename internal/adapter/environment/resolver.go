// Package environment locates the file a command is run against and the
// project that encloses it.
package environment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"termrun/internal/domain"
)

// DefaultMarkers are the directory entries that identify a project root.
var DefaultMarkers = []string{".git", "go.mod", ".hg", ".svn"}

// Resolver implements domain.EnvironmentResolver over the local filesystem.
type Resolver struct {
	filePath string
	markers  []string
	getwd    func() (string, error)
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMarkers replaces the project root markers.
func WithMarkers(markers []string) Option {
	return func(r *Resolver) {
		if len(markers) > 0 {
			r.markers = markers
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver. filePath is the "current file"; when empty
// the process working directory stands in for it.
func NewResolver(filePath string, opts ...Option) *Resolver {
	r := &Resolver{
		filePath: filePath,
		markers:  DefaultMarkers,
		getwd:    os.Getwd,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CurrentFileLocation returns the absolute path of the configured file, or
// of the working directory when no file is configured.
func (r *Resolver) CurrentFileLocation(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.filePath == "" {
		wd, err := r.getwd()
		if err != nil {
			return "", domain.NewSubSystemError("environment", "Resolver.CurrentFileLocation",
				domain.ErrNoCurrentFile, err.Error())
		}
		return wd, nil
	}

	abs, err := filepath.Abs(r.filePath)
	if err != nil {
		return "", domain.NewSubSystemError("environment", "Resolver.CurrentFileLocation",
			domain.ErrNoCurrentFile, err.Error())
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", domain.NewSubSystemError("environment", "Resolver.CurrentFileLocation",
				domain.ErrNotFound, abs)
		}
		return "", domain.NewSubSystemError("environment", "Resolver.CurrentFileLocation",
			domain.ErrUnavailable, err.Error())
	}
	return abs, nil
}

// ProjectRootFor walks up from path (or its parent, if path is a file) and
// returns the first directory containing one of the markers.
func (r *Resolver) ProjectRootFor(ctx context.Context, path string) (string, bool, error) {
	if path == "" {
		return "", false, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("project root for %s: %w", path, err)
	}

	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		if r.hasMarker(dir) {
			r.logger.Debug("project root found", "path", abs, "root", dir)
			return dir, true, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

func (r *Resolver) hasMarker(dir string) bool {
	for _, m := range r.markers {
		if _, err := os.Lstat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}
