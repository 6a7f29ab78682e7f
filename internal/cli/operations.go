package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/ofclient/internal/logger"
	"github.com/glorpus-work/ofclient/pkg/manifest"
	"github.com/glorpus-work/ofclient/pkg/model"
	"github.com/glorpus-work/ofclient/pkg/orchestrator"
	"github.com/glorpus-work/ofclient/pkg/progress"
)

type operationOptions struct {
	version   string
	cacheMode string
	port      int
	paths     pathOverrides
}

// NewHashCheckCmd creates the hash-check command.
func NewHashCheckCmd() *cobra.Command {
	return newOperationCmd(orchestrator.HashCheck,
		"Verify cached files against their manifests",
		`Hash every file listed in the manifests of the selected versions and report
how many bytes are intact, altered or still missing. Nothing is modified.`)
}

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	return newOperationCmd(orchestrator.Download,
		"Download offline caches",
		`Fetch every file of the selected offline caches that is missing or does not
match its manifest. Files that are already intact are not downloaded again.
The playable cache is filled by the game client and is never downloaded.`)
}

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	return newOperationCmd(orchestrator.Delete,
		"Delete cached files",
		`Remove every file listed in the manifests of the selected caches and the
directories left empty afterwards. Other files are kept.`)
}

func newOperationCmd(kind orchestrator.OperationKind, short, long string) *cobra.Command {
	var opts operationOptions

	cmd := &cobra.Command{
		Use:   kind.String(),
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOperation(cmd, kind, opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "cache-version", AllSelector, "Version to operate on, or \"all\"")
	cmd.Flags().StringVar(&opts.cacheMode, "cache-mode", AllSelector, "Cache kind: all, offline or playable")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Stream progress as JSON lines to localhost:PORT")
	addPathFlags(cmd, &opts.paths)

	return cmd
}

func addPathFlags(cmd *cobra.Command, p *pathOverrides) {
	cmd.Flags().StringVar(&p.userDir, "user-dir", "", "User data directory (defaults to config)")
	cmd.Flags().StringVar(&p.playableRoot, "playable-root", "", "Playable cache root (defaults to config)")
	cmd.Flags().StringVar(&p.offlineRoot, "offline-root", "", "Offline cache root (defaults to config)")
	cmd.Flags().StringVar(&p.cdnRoot, "cdn-root", "", "Remote root of the offline caches (defaults to config)")
}

func runOperation(cmd *cobra.Command, kind orchestrator.OperationKind, opts operationOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.paths.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	cacheKind, err := model.ParseCacheKind(opts.cacheMode)
	if err != nil {
		return err
	}

	store, err := manifest.Load(cfg.GetUserDir())
	if err != nil {
		return fmt.Errorf("failed to load manifests: %w", err)
	}

	reporters := []progress.Reporter{progress.Log{}}
	if opts.port > 0 {
		stream, conn, err := progress.Dial(cmd.Context(), opts.port)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()
		reporters = append(reporters, stream)
	}

	orch := loadOrchestrator(cfg, store, progress.Hooks(reporters...))
	logger.Debug("Running cache operation", logger.Fields{
		"operation": kind.String(),
		"version":   opts.version,
		"mode":      opts.cacheMode,
	})

	results, err := orch.RunOperation(cmd.Context(), orchestrator.Request{
		Kind:      kind,
		Version:   opts.version,
		CacheKind: cacheKind,
	})
	logSummary(kind.String(), results)
	if err != nil {
		return fmt.Errorf("%s failed: %w", kind, err)
	}

	logger.Success("Cache operation finished", logger.Fields{"operation": kind.String()})
	return nil
}
