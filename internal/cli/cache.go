package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/pkg/cache"
	"github.com/matzehuels/texpal/pkg/pipeline"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the image header cache",
		Long: `Image headers (size and alpha) are cached between runs, keyed by path, size
and modification time. The cache lives on disk unless the config selects redis.`,
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached image headers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfigIfExists(c.flags.config)
			if err != nil {
				return err
			}
			if cfg.Cache == pipeline.CacheRedis {
				printInfo("Redis entries expire on their own; nothing to clear on disk")
				return nil
			}
			return clearFileCache(cacheDir(cfg))
		},
	}
}

func clearFileCache(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		printInfo("Cache is empty")
		return nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if err := fc.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	printSuccess("Cleared header cache")
	printDetail("Directory: %s", fc.Dir())
	return nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfigIfExists(c.flags.config)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, cacheDir(cfg))
			return nil
		},
	}
}
