package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/texpal/pkg/directive"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/scene"
	"github.com/matzehuels/texpal/pkg/state"
)

// Runner executes builds against a persisted session.
//
// The Runner is stateless except for the header reader and logger - it
// doesn't keep sessions between calls. The session lock serializes builds
// that share a session, whether they run in one process or several.
type Runner struct {
	Headers imageio.HeaderReader
	Logger  *log.Logger
}

// NewRunner creates a runner. If headers is nil, image headers are read
// straight from disk. If logger is nil, the default logger is used.
func NewRunner(headers imageio.HeaderReader, logger *log.Logger) *Runner {
	if headers == nil {
		headers = imageio.Files{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Headers: headers, Logger: logger}
}

// Failure is an output file that could not be written. The build carries
// on past it.
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result is the outcome of a build.
type Result struct {
	Session *palette.Session `json:"-"`

	Pages     []string  `json:"pages,omitempty"`
	Copies    []string  `json:"copies,omitempty"`
	Scenes    []string  `json:"scenes,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
	Surprises []string  `json:"surprises,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`

	Invalid []directive.Invalid `json:"invalid,omitempty"`

	Stats    palette.Stats `json:"stats"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether any output file could not be written.
func (r *Result) Failed() bool { return len(r.Failures) > 0 }

// Build runs every stage against the session named by opts and saves the
// session afterwards. Write failures of single pages, copies or scene files
// are collected in the result; any other error aborts the build without
// saving.
func (r *Runner) Build(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := r.logger(opts)
	start := time.Now()

	store, err := state.Open(ctx, opts.Session)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "open session %s", opts.Session)
	}
	defer store.Close()

	unlock, err := store.Lock(ctx)
	if err != nil {
		if stderrors.Is(err, state.ErrLocked) {
			return nil, errors.Wrap(errors.ErrCodeLocked, err, "session %s", opts.Session)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, err, "lock session %s", opts.Session)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("release session lock", "err", err)
		}
	}()

	sess, err := r.load(ctx, store, opts)
	if err != nil {
		return nil, err
	}

	b := &build{
		runner:  r,
		opts:    opts,
		logger:  logger,
		sess:    sess,
		result:  &Result{Session: sess},
		files:   make(map[string]*scene.File),
		sources: make(map[palette.TextureID]string),
		alpha:   make(map[palette.TextureID]bool),
		pixels:  make(map[palette.TextureID]pixelResult),
		mtimes:  make(map[string]time.Time),
	}

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"scan", b.scan},
		{"assign", b.assign},
		{"pack", b.pack},
		{"stale", b.stale},
		{"write", b.write},
		{"store", func(ctx context.Context) error { return b.store(ctx, store) }},
	}
	for _, st := range stages {
		if err := r.stage(ctx, logger, st.name, st.fn); err != nil {
			return nil, err
		}
	}

	b.result.Warnings = append(b.result.Warnings, sess.Warnings()...)
	b.result.Stats = sess.Stats()
	b.result.Duration = time.Since(start)
	logger.Info("build complete",
		"pages", len(b.result.Pages),
		"copies", len(b.result.Copies),
		"scenes", len(b.result.Scenes),
		"failures", len(b.result.Failures),
		"duration", b.result.Duration)
	return b.result, nil
}

// Load returns the saved session without modifying it. A missing session
// yields an empty one.
func (r *Runner) Load(ctx context.Context, opts Options) (*palette.Session, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	store, err := state.Open(ctx, opts.Session)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "open session %s", opts.Session)
	}
	defer store.Close()
	return r.load(ctx, store, opts)
}

func (r *Runner) load(ctx context.Context, store state.Store, opts Options) (*palette.Session, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		if stderrors.Is(err, state.ErrVersion) {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "session %s", opts.Session)
		}
		return nil, errors.Wrap(errors.ErrCodeIO, err, "load session %s", opts.Session)
	}
	if snap == nil {
		r.logger(opts).Debug("starting new session", "session", opts.Session)
		return palette.NewSession(opts.params(directiveParams{})), nil
	}
	sess, err := palette.Restore(snap)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "session %s", opts.Session)
	}
	r.logger(opts).Debug("loaded session", "session", opts.Session, "run", snap.RunID, "saved", snap.SavedAt)
	return sess, nil
}

// stage runs one pipeline stage with cancellation checks, hooks and timing.
func (r *Runner) stage(ctx context.Context, logger *log.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCancelled, err, "%s", name)
	}
	observability.Pipeline().OnStageStart(ctx, name)
	start := time.Now()
	err := fn(ctx)
	observability.Pipeline().OnStageComplete(ctx, name, time.Since(start), err)
	if err != nil {
		return err
	}
	logger.Debug("stage complete", "stage", name, "duration", time.Since(start))
	return nil
}

func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}

// build carries the state of one Build call across stages.
type build struct {
	runner *Runner
	opts   Options
	logger *log.Logger
	sess   *palette.Session
	dir    *directive.File
	result *Result

	// files holds the parsed scene files, kept for the rewrite.
	files map[string]*scene.File
	// sources maps textures to the image file scanned scenes point at.
	sources map[palette.TextureID]string
	// alpha records textures some reference uses with an alpha mode.
	alpha map[palette.TextureID]bool
	// pixels caches decoded source images across pages.
	pixels map[palette.TextureID]pixelResult
	// mtimes caches output file modification times.
	mtimes map[string]time.Time

	rebuild  []*palette.SceneRecord
	obsolete []string
}

type pixelResult struct {
	img *image.NRGBA
	err error
}

func (b *build) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.logger.Warn(msg)
	b.result.Warnings = append(b.result.Warnings, msg)
}

func (b *build) fail(path string, err error) {
	b.logger.Error("write failed", "path", path, "err", err)
	b.result.Failures = append(b.result.Failures, Failure{Path: path, Err: err.Error()})
}

func (b *build) assign(context.Context) error {
	if err := b.sess.Assign(); err != nil {
		if stderrors.Is(err, palette.ErrEmptyCandidateSet) {
			return errors.Wrap(errors.ErrCodeInvariant, err, "assign")
		}
		return errors.Wrap(errors.ErrCodeInternal, err, "assign")
	}
	for _, c := range b.sess.Cycles() {
		b.warnf("palette groups form a cycle: %s", c)
	}
	b.sess.DetermineSizes()
	return nil
}

func (b *build) pack(context.Context) error {
	b.sess.PackAll()
	for _, g := range b.sess.Groups() {
		if pages := b.sess.Pages(g.ID); len(pages) > 0 {
			b.logger.Debug("packed group", "group", g.Name, "pages", len(pages))
		}
	}
	return nil
}
