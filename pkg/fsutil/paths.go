package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
)

const (
	// AppName is the name of the application used in paths
	AppName = "ofclient"
)

// getAppDataDir returns the platform-specific base data directory
// On Linux: ~/.local/share
// On macOS: ~/Library/Application Support
// On Windows: %APPDATA%
func getAppDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return appData, nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil

	default: // Linux, BSD, etc.
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return xdgDataHome, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// GetDataDir returns the platform-specific user data directory for the launcher.
// It holds config.yaml, versions.json, servers.json, hashes.json and the
// last-launched version record.
func GetDataDir() (string, error) {
	baseDir, err := getAppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, AppName), nil
}

// DefaultPlayableRoot returns the directory the web player keeps its asset caches in.
// On Windows this is the LocalLow Unity cache next to the roaming user data directory.
func DefaultPlayableRoot(userDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(userDir, "..", "..", "LocalLow", "Unity", "Web Player", "Cache")
	}
	return filepath.Join(userDir, "webplayer_cache")
}

// DefaultOfflineRoot returns the directory pre-downloaded offline caches are kept in.
func DefaultOfflineRoot(userDir string) string {
	return filepath.Join(userDir, "offline_cache")
}

// SafeJoin joins a slash-separated relative path onto root and rejects results
// that would leave root.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty relative path: %w", pkgerrors.ErrInvalidPath)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%s is absolute: %w", rel, pkgerrors.ErrPathTraversal)
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%s: %w", rel, pkgerrors.ErrPathTraversal)
	}
	return filepath.Join(root, local), nil
}
