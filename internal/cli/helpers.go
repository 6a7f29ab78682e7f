package cli

import (
	"fmt"
	"net"

	"github.com/glorpus-work/ofclient/internal/logger"
	"github.com/glorpus-work/ofclient/pkg/config"
	"github.com/glorpus-work/ofclient/pkg/download"
	"github.com/glorpus-work/ofclient/pkg/integrity"
	"github.com/glorpus-work/ofclient/pkg/launch"
	"github.com/glorpus-work/ofclient/pkg/manifest"
	"github.com/glorpus-work/ofclient/pkg/orchestrator"
	"github.com/glorpus-work/ofclient/pkg/swap"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	NoColor    *bool
)

// pathOverrides are location flags that take precedence over the config file.
type pathOverrides struct {
	userDir      string
	playableRoot string
	offlineRoot  string
	cdnRoot      string
}

func (o pathOverrides) apply(cfg *config.Config) {
	if o.userDir != "" {
		cfg.Settings.UserDir = o.userDir
	}
	if o.playableRoot != "" {
		cfg.Settings.PlayableRoot = o.playableRoot
	}
	if o.offlineRoot != "" {
		cfg.Settings.OfflineRoot = o.offlineRoot
	}
	if o.cdnRoot != "" {
		cfg.Settings.CDNRoot = o.cdnRoot
	}
}

// loadConfig loads the configuration, applies the global flags and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	noColor := NoColor != nil && *NoColor

	if err := logger.InitLogger(logger.Options{
		Level:   cfg.Settings.LogLevel,
		NoColor: noColor,
		Dir:     cfg.Settings.LogDir,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// an empty path makes LoadConfig/SaveConfig report a descriptive error
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

func loadSwapManager(cfg *config.Config) *swap.Manager {
	return swap.NewManager(cfg.GetPlayableRoot(), cfg.GetUserDir(), swap.WithLiveName(cfg.Settings.LiveCacheName))
}

func loadOrchestrator(cfg *config.Config, store *manifest.Store, hooks orchestrator.Hooks) *orchestrator.Orchestrator {
	scanner := integrity.NewScanner(cfg.Settings.HashCheckConcurrency)
	fetcher := download.NewFetcher(scanner, download.Options{
		RetryDelay: cfg.Settings.RetryDelay,
		MaxRetries: cfg.Settings.MaxRetries,
		Timeout:    cfg.Settings.HTTPTimeout,
		UserAgent:  cfg.Settings.UserAgent,
	})
	return orchestrator.New(store, scanner, fetcher, loadSwapManager(cfg), hooks, orchestrator.Options{
		HashCheckConcurrency: cfg.Settings.HashCheckConcurrency,
		DownloadConcurrency:  cfg.Settings.DownloadConcurrency,
		CDNRoot:              cfg.Settings.CDNRoot,
		OfflineRoot:          cfg.GetOfflineRoot(),
	})
}

func loadPreparer(cfg *config.Config, store *manifest.Store) *launch.Preparer {
	p := &launch.Preparer{
		Versions: store,
		Resolver: net.DefaultResolver,
		WebRoot:  cfg.GetWebRoot(),
	}
	if cfg.Settings.CacheSwapping {
		p.Swapper = loadSwapManager(cfg)
	}
	return p
}
