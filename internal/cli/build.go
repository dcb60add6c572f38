package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/observability"
	"github.com/matzehuels/texpal/pkg/pipeline"
)

// buildFlags holds the flags of the build command. Pointer-valued options
// are only set when the flag was given, so the directive file and config
// keep their say otherwise.
type buildFlags struct {
	directive    string
	outDir       string
	page         string
	margin       int
	imageType    string
	pattern      string
	remap        string
	remapChar    string
	fuzz         float64
	repeat       string
	omitSolitary bool
	bake         bool
	all          bool
	list         bool
}

// buildCommand creates the build command.
func (c *CLI) buildCommand() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build [scene files...]",
		Short: "Palettize scene files and rewrite their texture references",
		Long: `Build reads the named scene files (and every scene file already in the
session), assigns their textures to palette groups, packs each group onto
pages and rewrites the scene files to address the pages.

Only pages, copies and scene files affected by a change are written.`,
		Example: `  # Palettize two scenes with the rules in textures.txp
  texpal build -d textures.txp scenes/town.json scenes/forest.json

  # Repack everything onto 1024x1024 pages
  texpal build --page 1024x1024 --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			opts.Scenes = args
			if err := flags.apply(cmd, &opts); err != nil {
				return err
			}
			return c.runBuild(cmd.Context(), opts, flags.list)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.directive, "directive", "d", "", "directive file with group and texture rules")
	f.StringVar(&flags.outDir, "out-dir", "", "directory for rewritten scene files (default <map-dir>)")
	f.StringVar(&flags.page, "page", "", "page size as WxH, e.g. 512x512")
	f.IntVar(&flags.margin, "margin", 0, "pixels of margin around each packed texture")
	f.StringVar(&flags.imageType, "image-type", "", "image type of pages and copies (png, tga, webp, ...)")
	f.StringVar(&flags.pattern, "pattern", "", "page filename pattern; %g group, %p properties, %i index")
	f.StringVar(&flags.remap, "remap", "", "UV remap policy for repeating textures: never, group or poly")
	f.StringVar(&flags.remapChar, "remap-char", "", "UV remap policy for characteristic ranges: never, group or poly")
	f.Float64Var(&flags.fuzz, "fuzz", 0, "UV fuzz tolerance as a fraction of a pixel")
	f.StringVar(&flags.repeat, "repeat", "", "repeat policy: correct or trust")
	f.BoolVar(&flags.omitSolitary, "omit-solitary", false, "keep textures alone on a page out of the palette")
	f.BoolVar(&flags.bake, "bake", false, "rewrite every scene file with baked UVs")
	f.BoolVar(&flags.all, "all", false, "regenerate every page, copy and scene file")
	f.BoolVar(&flags.list, "list", false, "list every written file")

	_ = cmd.RegisterFlagCompletionFunc("image-type", completeImageTypes)

	return cmd
}

// apply copies the given flags onto opts.
func (f *buildFlags) apply(cmd *cobra.Command, opts *pipeline.Options) error {
	changed := cmd.Flags().Changed

	opts.Directive = f.directive
	opts.OutDir = f.outDir
	opts.ImageType = f.imageType
	opts.Pattern = f.pattern
	opts.Remap = f.remap
	opts.RemapChar = f.remapChar
	opts.Repeat = f.repeat
	opts.Bake = f.bake
	opts.All = f.all

	if f.page != "" {
		w, h, err := parsePageSize(f.page)
		if err != nil {
			return err
		}
		opts.PageW, opts.PageH = w, h
	}
	if changed("margin") {
		m := f.margin
		opts.Margin = &m
	}
	if changed("fuzz") {
		z := f.fuzz
		opts.Fuzz = &z
	}
	if changed("omit-solitary") {
		o := f.omitSolitary
		opts.OmitSolitary = &o
	}
	return nil
}

// parsePageSize parses "WxH"; a single number means a square page.
func parsePageSize(s string) (w, h int, err error) {
	ws, hs, found := strings.Cut(strings.ToLower(s), "x")
	if !found {
		hs = ws
	}
	w, err = strconv.Atoi(strings.TrimSpace(ws))
	if err != nil {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "page size %q: want WxH", s)
	}
	h, err = strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, 0, errors.New(errors.ErrCodeInvalidInput, "page size %q: want WxH", s)
	}
	if err := errors.ValidatePageSize(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// runBuild runs one build behind a spinner that follows the pipeline stages.
func (c *CLI) runBuild(ctx context.Context, opts pipeline.Options, listFiles bool) error {
	runner, cleanup, err := c.newRunner(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	spinner := newSpinner(ctx, "Starting build...")
	observability.SetPipelineHooks(stageProgress{spinner: spinner})
	defer observability.SetPipelineHooks(observability.NoopPipelineHooks{})

	spinner.Start()
	res, err := runner.Build(ctx, opts)
	spinner.Stop()
	if err != nil {
		return err
	}

	printBuildResult(res, listFiles)
	if res.Failed() {
		return fmt.Errorf("%w: %d files", ErrPartialBuild, len(res.Failures))
	}
	return nil
}
