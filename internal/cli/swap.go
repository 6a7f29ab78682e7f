package cli

import (
	"github.com/spf13/cobra"

	"github.com/glorpus-work/ofclient/internal/logger"
)

// NewSwapCmd creates the swap command.
func NewSwapCmd() *cobra.Command {
	var paths pathOverrides

	cmd := &cobra.Command{
		Use:   "swap VERSION",
		Short: "Make a version's playable cache the live one",
		Long: `Rename the live playable cache back to the version it belongs to and move
the cache of VERSION into its place. Nothing is renamed when VERSION is
already live.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSwap(args[0], paths)
		},
	}
	addPathFlags(cmd, &paths)

	return cmd
}

func runSwap(version string, paths pathOverrides) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths.apply(cfg)

	manager := loadSwapManager(cfg)
	if err := manager.SwapTo(version); err != nil {
		return err
	}

	logger.Success("Live cache updated", logger.Fields{"version": version, "path": manager.LivePath()})
	return nil
}
