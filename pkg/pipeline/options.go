// Package pipeline runs a texpal build: the scan, assign, pack, stale-check,
// remap and write stages, in that order, against a persisted session.
//
// This package is shared by every command that touches a session so that a
// build, a scene removal and a read-only report all see the session the
// same way.
//
// # Architecture
//
// A build proceeds in strictly ordered stages:
//
//  1. Scan: parse the directive file and every scene file, read texture
//     headers (through the header cache)
//  2. Assign: resolve palette groups and reconcile placements
//  3. Pack: place rectangles, shrink pages, check solitary pages
//  4. Stale: decide which scene files must be rewritten
//  5. Write: compose pages, copy omitted textures, rewrite scene files
//  6. Store: remove obsolete files and save the session
//
// The session is saved only after every stage ran, so an interrupted build
// leaves the previous session untouched.
//
// # Usage
//
//	runner := pipeline.NewRunner(headerCache, logger)
//	opts := pipeline.Options{
//	    Scenes:    []string{"town.scene.json", "house.scene.json"},
//	    Directive: "textures.txa",
//	    MapDir:    "out/maps",
//	}
//	result, err := runner.Build(ctx, opts)
package pipeline

import (
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/imageio"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/state"
	"github.com/matzehuels/texpal/pkg/uv"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and Server
// =============================================================================

const (
	// DefaultMapDir is where pages and stand-alone copies are written when
	// no map directory is given.
	DefaultMapDir = "maps"

	// DefaultGroup is the palette group of scene files no directive rule
	// names a group for.
	DefaultGroup = "default"
)

// =============================================================================
// Options - Build Configuration
// =============================================================================

// Options contains all configuration for a build. Zero values mean "not
// given": they fall back to the directive file, then the TOML config, then
// the package defaults.
type Options struct {
	// Inputs
	Scenes    []string `json:"scenes,omitempty"`
	Directive string   `json:"directive,omitempty"`

	// Outputs
	MapDir  string `json:"map_dir,omitempty"`
	OutDir  string `json:"out_dir,omitempty"`
	Session string `json:"session,omitempty"`

	// Packing parameters
	PageW        int      `json:"page_w,omitempty"`
	PageH        int      `json:"page_h,omitempty"`
	Margin       *int     `json:"margin,omitempty"`
	ImageType    string   `json:"image_type,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	Remap        string   `json:"remap,omitempty"`
	RemapChar    string   `json:"remap_char,omitempty"`
	Fuzz         *float64 `json:"fuzz,omitempty"`
	Repeat       string   `json:"repeat,omitempty"`
	OmitSolitary *bool    `json:"omit_solitary,omitempty"`
	Bake         bool     `json:"bake,omitempty"`

	// All regenerates every page, copy and scene file.
	All bool `json:"all,omitempty"`

	// Config supplies defaults below the directive file.
	Config *Config `json:"-"`

	// Remove lists scene files to drop from the session before the build.
	Remove []string `json:"remove,omitempty"`

	// Runtime options (not serialized). Logger overrides the runner's.
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// ValidateAndSetDefaults checks the options and fills in output locations.
// This method is idempotent - calling it multiple times has the same effect
// as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Config == nil {
		o.Config = &Config{}
	}
	if o.MapDir == "" {
		o.MapDir = o.Config.MapDir
	}
	if o.MapDir == "" {
		o.MapDir = DefaultMapDir
	}
	if o.OutDir == "" {
		o.OutDir = o.Config.OutDir
	}
	if o.OutDir == "" {
		o.OutDir = o.MapDir
	}
	if o.Session == "" {
		o.Session = o.Config.Session
	}
	if o.Session == "" {
		o.Session = filepath.Join(o.MapDir, state.DefaultFileName)
	}

	if o.PageW != 0 || o.PageH != 0 {
		if err := errors.ValidatePageSize(o.PageW, o.PageH); err != nil {
			return err
		}
	}
	if o.Margin != nil && *o.Margin < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "margin must not be negative, got %d", *o.Margin)
	}
	if o.ImageType != "" && !imageio.Supported(o.ImageType) {
		return errors.New(errors.ErrCodeInvalidFormat, "unsupported image type %q", o.ImageType)
	}
	if o.Pattern != "" {
		if err := errors.ValidatePattern(o.Pattern); err != nil {
			return err
		}
	}
	for _, p := range []string{o.Remap, o.RemapChar} {
		if p == "" {
			continue
		}
		if _, err := uv.ParsePolicy(p); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid remap policy")
		}
	}
	if o.Repeat != "" {
		if _, err := uv.ParseRepeatPolicy(o.Repeat); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid repeat policy")
		}
	}
	if o.Fuzz != nil && *o.Fuzz < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "fuzz must not be negative")
	}
	o.validated = true
	return nil
}

// params computes the session parameters. Each layer overrides the one
// before it: package defaults, TOML config, directive file, options.
func (o *Options) params(d directiveParams) palette.Params {
	p := palette.DefaultParams()
	o.Config.apply(&p)
	d.apply(&p)

	if o.PageW != 0 {
		p.PageW, p.PageH = o.PageW, o.PageH
	}
	if o.Margin != nil {
		p.Margin = *o.Margin
	}
	if o.ImageType != "" {
		p.ImageType = o.ImageType
	}
	if o.Pattern != "" {
		p.Pattern = o.Pattern
	}
	if pol, err := uv.ParsePolicy(o.Remap); err == nil && o.Remap != "" {
		p.Remap = pol
	}
	if pol, err := uv.ParsePolicy(o.RemapChar); err == nil && o.RemapChar != "" {
		p.RemapChar = pol
	}
	if o.Fuzz != nil {
		p.Fuzz = *o.Fuzz
	}
	if rp, err := uv.ParseRepeatPolicy(o.Repeat); err == nil && o.Repeat != "" {
		p.Repeat = rp
	}
	if o.OmitSolitary != nil {
		p.OmitSolitary = *o.OmitSolitary
	}
	p.MapDir = o.MapDir
	return p
}
