package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/ofclient/pkg/launch"
	"github.com/glorpus-work/ofclient/pkg/manifest"
)

// NewLaunchCmd creates the launch command.
func NewLaunchCmd() *cobra.Command {
	var paths pathOverrides

	cmd := &cobra.Command{
		Use:   "launch SERVER_UUID",
		Short: "Prepare the game client for a server",
		Long: `Swap the playable cache to the server's version when cache swapping is
enabled, then write the asset, endpoint and login files the game client
reads. The address the client will connect to is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths.apply(cfg)

			store, err := manifest.Load(cfg.GetUserDir())
			if err != nil {
				return fmt.Errorf("failed to load versions: %w", err)
			}
			servers, err := launch.LoadServers(cfg.GetUserDir())
			if err != nil {
				return err
			}
			server, err := launch.FindServer(servers, args[0])
			if err != nil {
				return err
			}

			result, err := loadPreparer(cfg, store).Prepare(cmd.Context(), server)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Endpoint())
			return nil
		},
	}
	addPathFlags(cmd, &paths)

	return cmd
}
