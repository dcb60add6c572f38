// Package cli implements the texpal command-line interface.
//
// # Commands
//
// The main commands are:
//   - build: Palettize scene files into texture pages and rewrite the scenes
//   - remove: Drop scene files from the session and repack
//   - report: Print the palettization report (text or YAML)
//   - stats: Print page utilization per palette group
//   - groups: Print the palette group graph as DOT or SVG
//   - browse: Explore groups, pages and placements interactively
//   - serve: Serve the report of a session over HTTP
//   - cache: Manage the image header cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging and
// --log-file for a rotating log file next to the terminal output.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/pkg/buildinfo"
	"github.com/matzehuels/texpal/pkg/cache"
	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "texpal"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// ErrPartialBuild is returned by build and remove when the session was saved
// but some pages, copies or scene files could not be written.
var ErrPartialBuild = errors.New("build finished with write failures")

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	out     io.Writer
	logFile io.Closer
	flags   sessionFlags
}

// sessionFlags are the persistent flags naming the session and its config.
type sessionFlags struct {
	config  string
	session string
	mapDir  string
	noCache bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), out: w}
}

// SetLogLevel updates the logger's level. At debug level, cache and session
// store events are logged too.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		h := debugHooks{logger: c.Logger}
		observability.SetCacheHooks(h)
		observability.SetStoreHooks(h)
	}
}

// SetLogFile tees log output into a rotating file at path.
func (c *CLI) SetLogFile(path string) {
	if path == "" {
		return
	}
	rot := newRotatingFile(path)
	c.logFile = rot
	c.Logger.SetOutput(io.MultiWriter(c.out, rot))
}

// Close releases the log file, if any.
func (c *CLI) Close() error {
	if c.logFile == nil {
		return nil
	}
	return c.logFile.Close()
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "texpal packs the textures of scene files into shared atlas pages",
		Long: `texpal reads scene files, assigns every texture they use to palette groups,
packs the textures of each group onto a few large pages and rewrites the scene
files so their UVs address the pages. Rebuilds are incremental: only pages and
scene files affected by a change are written again.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.config, "config", pipeline.ConfigFileName, "TOML config file (ignored when missing)")
	pf.StringVar(&c.flags.session, "session", "", "session store: a file path or a mongodb:// URI (default <map-dir>/texpal.session.json)")
	pf.StringVar(&c.flags.mapDir, "map-dir", "", "directory for pages and stand-alone copies (default \"maps\")")
	pf.BoolVar(&c.flags.noCache, "no-cache", false, "read image headers without the header cache")

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.reportCommand())
	root.AddCommand(c.statsCommand())
	root.AddCommand(c.groupsCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// options returns pipeline options carrying the persistent flags and the
// TOML config.
func (c *CLI) options() (pipeline.Options, error) {
	cfg, err := pipeline.LoadConfigIfExists(c.flags.config)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Config:  cfg,
		Session: c.flags.session,
		MapDir:  c.flags.mapDir,
		Logger:  c.Logger,
	}, nil
}

// newRunner creates a pipeline runner reading headers through the cache the
// config selects. The returned cleanup closes the cache.
func (c *CLI) newRunner(ctx context.Context, cfg *pipeline.Config) (*pipeline.Runner, func(), error) {
	hc, err := c.newCache(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	headers := cache.NewHeaderCache(hc)
	if cfg != nil && cfg.CachePrefix != "" {
		headers.Keyer = cache.NewScopedKeyer(headers.Keyer, cfg.CachePrefix)
	}
	cleanup := func() {
		if err := hc.Close(); err != nil {
			c.Logger.Debug("close cache", "err", err)
		}
	}
	return pipeline.NewRunner(headers, c.Logger), cleanup, nil
}

func (c *CLI) newCache(ctx context.Context, cfg *pipeline.Config) (cache.Cache, error) {
	if c.flags.noCache || cfg == nil {
		return cache.NewNullCache(), nil
	}
	switch cfg.Cache {
	case pipeline.CacheNone:
		return cache.NewNullCache(), nil
	case pipeline.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			c.Logger.Warn("redis cache unavailable, reading headers directly", "err", err)
			return cache.NewNullCache(), nil
		}
		return rc, nil
	default:
		fc, err := cache.NewFileCache(cacheDir(cfg))
		if err != nil {
			c.Logger.Warn("file cache unavailable, reading headers directly", "err", err)
			return cache.NewNullCache(), nil
		}
		return fc, nil
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the header cache directory: the config's cache_dir, else
// the XDG cache directory.
func cacheDir(cfg *pipeline.Config) string {
	if cfg != nil && cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	return pipeline.DefaultCacheDir()
}

// stdout is where command results go. Tests replace it.
var stdout io.Writer = os.Stdout
