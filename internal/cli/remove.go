package cli

import (
	"github.com/spf13/cobra"
)

// removeCommand drops scene files from the session and repacks what is left.
func (c *CLI) removeCommand() *cobra.Command {
	var (
		dirFile string
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "remove <scene files...>",
		Short: "Remove scene files from the session and repack",
		Long: `Remove forgets the named scene files, deletes their rewritten copies and
repacks the pages their textures occupied. Pages no longer needed are deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			opts.Remove = args
			opts.Directive = dirFile
			return c.runBuild(cmd.Context(), opts, list)
		},
	}

	cmd.Flags().StringVarP(&dirFile, "directive", "d", "", "directive file with group and texture rules")
	cmd.Flags().BoolVar(&list, "list", false, "list every written file")

	return cmd
}
