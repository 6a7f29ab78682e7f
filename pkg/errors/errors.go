// Package errors holds the sentinel errors shared by the launcher packages and
// small helpers for adding context to them.
package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename config file")
	ErrConfigFileChmod   = fmt.Errorf("failed to set config file permissions")
	ErrConfigMarshal     = fmt.Errorf("failed to marshal config")
	ErrUnknownConfigKey  = fmt.Errorf("unknown configuration key")
	ErrConfigFileExists  = fmt.Errorf("configuration file already exists")

	// Path errors.
	ErrInvalidPath   = fmt.Errorf("invalid path")
	ErrPathTraversal = fmt.Errorf("path escapes its root")

	// Manifest errors.
	ErrManifestLoad       = fmt.Errorf("failed to load manifest")
	ErrInvalidDigest      = fmt.Errorf("invalid content digest")
	ErrUnknownVersion     = fmt.Errorf("unknown version")
	ErrUnknownCacheKind   = fmt.Errorf("unknown cache kind")
	ErrConfigInconsistent = fmt.Errorf("manifest and version list are inconsistent")

	// Operation errors.
	ErrInvalidOperation = fmt.Errorf("invalid cache operation")
	ErrDownloadFailed   = fmt.Errorf("download failed")
	ErrSwapFailed       = fmt.Errorf("cache swap failed")

	// Launch errors.
	ErrServerNotFound  = fmt.Errorf("server not found")
	ErrInvalidAddress  = fmt.Errorf("invalid server address")
	ErrServerListParse = fmt.Errorf("failed to load server list")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
