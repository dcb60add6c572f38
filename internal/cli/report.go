package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/pkg/directive"
	"github.com/matzehuels/texpal/pkg/errors"
	"github.com/matzehuels/texpal/pkg/palette"
	"github.com/matzehuels/texpal/pkg/report"
)

// Report output formats.
const (
	formatText = "text"
	formatYAML = "yaml"
)

// reportCommand prints the palettization report of the saved session.
func (c *CLI) reportCommand() *cobra.Command {
	var (
		format  string
		output  string
		dirFile string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the palettization report of the session",
		Long: `Report describes every scene file, palette group, page and texture in the
saved session, including textures that were left out of the palette and why.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.loadReport(cmd.Context(), dirFile)
			if err != nil {
				return err
			}
			return writeOutput(output, func(w io.Writer) error {
				switch format {
				case formatText:
					return report.WriteText(w, r)
				case formatYAML:
					return report.WriteYAML(w, r)
				}
				return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (must be text or yaml)", format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVarP(&dirFile, "directive", "d", "", "directive file whose unparsable lines should be listed")
	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions([]string{formatText, formatYAML}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

// statsCommand prints per-group page utilization.
func (c *CLI) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print page utilization per palette group",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.loadSession(cmd.Context())
			if err != nil {
				return err
			}
			st := sess.Stats()
			fmt.Fprintln(stdout, statsTable(st))
			printKeyValue("textures", fmt.Sprint(st.Textures))
			printKeyValue("scenes", fmt.Sprint(st.Scenes))
			if st.Duplicated > 0 {
				printKeyValue("duplicated", fmt.Sprint(st.Duplicated))
			}
			return nil
		},
	}
}

// groupsCommand prints the palette group graph.
func (c *CLI) groupsCommand() *cobra.Command {
	var svg string

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Print the palette group graph as DOT, or render it to SVG",
		Example: `  texpal groups | dot -Tpng > groups.png
  texpal groups --svg groups.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.loadReport(cmd.Context(), "")
			if err != nil {
				return err
			}
			dot := report.ToDOT(r)
			if svg == "" {
				_, err := io.WriteString(stdout, dot)
				return err
			}
			prog := newProgress(c.Logger)
			data, err := report.RenderSVG(cmd.Context(), dot)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "render group graph")
			}
			if err := os.WriteFile(svg, data, 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeIO, err, "write %s", svg)
			}
			prog.done("Rendered group graph")
			printSuccess("Wrote %s", svg)
			return nil
		},
	}

	cmd.Flags().StringVar(&svg, "svg", "", "render the graph to this SVG file")

	return cmd
}

// loadSession reads the saved session without taking the lock.
func (c *CLI) loadSession(ctx context.Context) (*palette.Session, error) {
	opts, err := c.options()
	if err != nil {
		return nil, err
	}
	runner, cleanup, err := c.newRunner(ctx, opts.Config)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return runner.Load(ctx, opts)
}

// loadReport builds the report of the saved session. When dirFile is set,
// its unparsable lines are included.
func (c *CLI) loadReport(ctx context.Context, dirFile string) (*report.Report, error) {
	sess, err := c.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	var invalid []directive.Invalid
	if dirFile != "" {
		f, err := directive.ReadFile(dirFile)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "read directive file %s", dirFile)
		}
		invalid = f.Invalid
	}
	return report.New(sess, invalid), nil
}

// writeOutput runs fn against path, or stdout when path is empty.
func writeOutput(path string, fn func(io.Writer) error) (err error) {
	if path == "" {
		return fn(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return err
	}
	printSuccess("Wrote %s", path)
	return nil
}
