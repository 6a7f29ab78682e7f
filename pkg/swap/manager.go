// Package swap keeps the single live playable cache directory in line with the
// version about to be launched.
package swap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/ofclient/internal/logger"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
)

const (
	// RecordFile holds the name of the version occupying the live directory.
	RecordFile = ".lastver"
	// DefaultLiveName is the directory the game plugin reads its cache from.
	DefaultLiveName = "FusionFall"
	// UnversionedSuffix is appended to a live directory of unknown version when it is moved aside.
	UnversionedSuffix = "-unversioned"
)

// RenameFunc renames a directory.
type RenameFunc func(src, dst string) error

// Manager swaps version-named directories in and out of the live slot.
type Manager struct {
	cacheRoot  string
	liveName   string
	recordPath string
	rename     RenameFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithRename replaces the function used to rename directories.
func WithRename(fn RenameFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.rename = fn
		}
	}
}

// WithLiveName sets the name of the live directory under the cache root.
func WithLiveName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.liveName = name
		}
	}
}

// NewManager creates a Manager for the cache root, keeping its record in userDir.
func NewManager(cacheRoot, userDir string, opts ...Option) *Manager {
	m := &Manager{
		cacheRoot:  cacheRoot,
		liveName:   DefaultLiveName,
		recordPath: filepath.Join(userDir, RecordFile),
		rename:     fsutil.Move,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State describes the live directory.
type State struct {
	Occupied bool   // the live directory exists
	Current  string // recorded version, empty when unknown
}

// LivePath returns the path of the live directory.
func (m *Manager) LivePath() string {
	return filepath.Join(m.cacheRoot, m.liveName)
}

// ReadRecord returns the last launched version. ok is false when no record exists.
func (m *Manager) ReadRecord() (version string, ok bool, err error) {
	data, err := os.ReadFile(m.recordPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(err, "read last version record")
	}
	version = strings.TrimSpace(string(data))
	return version, version != "", nil
}

// WriteRecord persists version as the last launched version.
func (m *Manager) WriteRecord(version string) error {
	if err := fsutil.EnsureFileDir(m.recordPath); err != nil {
		return pkgerrors.Wrap(err, "create record directory")
	}
	return fsutil.WriteFileAtomic(m.recordPath, []byte(version), fsutil.FileModeDefault)
}

// State inspects the live directory and the record.
func (m *Manager) State() (State, error) {
	current, _, err := m.ReadRecord()
	if err != nil {
		return State{}, err
	}
	return State{Occupied: fsutil.IsDir(m.LivePath()), Current: current}, nil
}

// PathFor returns the playable cache directory of version. That is the live
// directory when version is the one recorded there and has no directory of its
// own, otherwise the version-named directory.
func (m *Manager) PathFor(version string) (string, error) {
	named, err := m.versionDir(version)
	if err != nil {
		return "", err
	}
	if fsutil.IsDir(named) || !fsutil.IsDir(m.LivePath()) {
		return named, nil
	}
	current, ok, err := m.ReadRecord()
	if err != nil {
		return "", err
	}
	if ok && current == version {
		return m.LivePath(), nil
	}
	return named, nil
}

// SwapTo makes target the live version.
//
// Nothing is renamed when the live directory already holds target. Otherwise
// the live directory is moved back under its recorded version name and the
// target directory, if present, takes its place. The record is written even
// when a rename fails so the next swap knows what the live slot should hold.
func (m *Manager) SwapTo(target string) error {
	named, err := m.versionDir(target)
	if err != nil {
		return err
	}

	state, err := m.State()
	if err != nil {
		logger.Warn("Ignoring unreadable version record", logger.Fields{"error": err})
		state = State{Occupied: fsutil.IsDir(m.LivePath())}
	}
	if state.Occupied && state.Current == target {
		logger.Debug("Live cache already holds version, skipping swap", logger.Fields{"version": target})
		return nil
	}

	var errs []error
	live := m.LivePath()
	if state.Occupied {
		if err := m.moveOut(live, state.Current); err != nil {
			errs = append(errs, err)
		}
	}
	if fsutil.IsDir(named) {
		if fsutil.IsDir(live) {
			errs = append(errs, fmt.Errorf("live cache %s still occupied, cannot swap in %s", live, target))
		} else if err := m.rename(named, live); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "swap in %s", target))
		} else {
			logger.Info("Live cache swapped", logger.Fields{"version": target})
		}
	}
	if err := m.WriteRecord(target); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", pkgerrors.ErrSwapFailed, errors.Join(errs...))
	}
	return nil
}

// moveOut renames the live directory to the name of the version it holds,
// replacing any stale copy left by an interrupted swap. A live directory of
// unknown version is moved aside instead.
func (m *Manager) moveOut(live, current string) error {
	dest := live + UnversionedSuffix
	if current != "" {
		if dir, err := m.versionDir(current); err == nil {
			dest = dir
		} else {
			logger.Warn("Recorded version is not a usable directory name", logger.Fields{"version": current})
		}
	}
	if dest == live+UnversionedSuffix {
		logger.Warn("No version record for live cache, moving it aside", logger.Fields{"path": dest})
	}

	if _, err := os.Lstat(dest); err == nil {
		logger.Debug("Removing stale cache directory", logger.Fields{"path": dest})
		if err := os.RemoveAll(dest); err != nil {
			return pkgerrors.Wrapf(err, "remove stale cache %s", dest)
		}
	}
	if err := m.rename(live, dest); err != nil {
		return pkgerrors.Wrapf(err, "swap out %s", filepath.Base(dest))
	}
	return nil
}

func (m *Manager) versionDir(version string) (string, error) {
	if version == "" || version == "." || filepath.Base(version) != version || strings.ContainsAny(version, `/\`) {
		return "", fmt.Errorf("version %q is not a directory name: %w", version, pkgerrors.ErrInvalidPath)
	}
	if version == m.liveName || version == m.liveName+UnversionedSuffix {
		return "", fmt.Errorf("version %q collides with the live cache: %w", version, pkgerrors.ErrInvalidPath)
	}
	return filepath.Join(m.cacheRoot, version), nil
}
