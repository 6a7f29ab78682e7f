// Package manifest loads the version list and per-version file manifests and
// serves them read-only to the cache operations.
//
// Two files in the user data directory are consumed:
//
//	versions.json  {"versions": [{"name": "...", "url": "..."}]}
//	hashes.json    {"<version>": {"playable_size": N, "offline_size": N,
//	                              "playable": {"<path>": "<sha256>"},
//	                              "offline":  {"<path>": "<sha256>"}}}
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/glorpus-work/ofclient/internal/logger"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
	"github.com/glorpus-work/ofclient/pkg/hasher"
	"github.com/glorpus-work/ofclient/pkg/model"
)

const (
	// VersionsFile is the version list maintained by the launcher UI.
	VersionsFile = "versions.json"
	// HashesFile holds the expected file digests and sizes per version.
	HashesFile = "hashes.json"
)

// VersionManifest is the hashes.json record of one version.
type VersionManifest struct {
	PlayableSize int64             `json:"playable_size"`
	OfflineSize  int64             `json:"offline_size"`
	Playable     map[string]string `json:"playable"`
	Offline      map[string]string `json:"offline"`
}

func (m VersionManifest) files(kind model.CacheKind) map[string]string {
	if kind == model.Playable {
		return m.Playable
	}
	return m.Offline
}

type versionsFile struct {
	Versions []fileVersion `json:"versions"`
}

type fileVersion struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Store is the in-memory view of versions.json and hashes.json.
// It is not modified after construction and is safe for concurrent readers.
type Store struct {
	versions  map[string]model.Version
	manifests map[string]VersionManifest
}

// New builds a store from already-decoded data. Declared sizes on versions are
// taken from the matching manifest.
func New(versions []model.Version, manifests map[string]VersionManifest) *Store {
	s := &Store{
		versions:  make(map[string]model.Version, len(versions)),
		manifests: make(map[string]VersionManifest, len(manifests)),
	}
	for name, m := range manifests {
		s.manifests[name] = m
	}
	for _, v := range versions {
		if m, ok := s.manifests[v.Name]; ok {
			v.PlayableSize = m.PlayableSize
			v.OfflineSize = m.OfflineSize
		}
		s.versions[v.Name] = v
	}
	return s
}

// Load reads versions.json and hashes.json from userDir. Versions without a
// manifest get an empty one and hashes.json is rewritten to include them.
func Load(userDir string) (*Store, error) {
	var vf versionsFile
	if err := readJSON(filepath.Join(userDir, VersionsFile), &vf); err != nil {
		return nil, err
	}

	manifests := map[string]VersionManifest{}
	hashesPath := filepath.Join(userDir, HashesFile)
	if err := readJSON(hashesPath, &manifests); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logger.Debug("No hashes file found, starting empty", logger.Fields{"path": hashesPath})
	}

	versions := make([]model.Version, 0, len(vf.Versions))
	updated := false
	for _, fv := range vf.Versions {
		versions = append(versions, model.Version{Name: fv.Name, URL: fv.URL})
		if _, ok := manifests[fv.Name]; !ok {
			manifests[fv.Name] = VersionManifest{
				Playable: map[string]string{},
				Offline:  map[string]string{},
			}
			updated = true
		}
	}

	if updated {
		if err := writeJSON(hashesPath, manifests); err != nil {
			return nil, err
		}
		logger.Info("Added missing versions to hashes file", logger.Fields{"path": hashesPath})
	}

	return New(versions, manifests), nil
}

// Version returns the version record for name.
func (s *Store) Version(name string) (model.Version, error) {
	v, ok := s.versions[name]
	if !ok {
		return model.Version{}, fmt.Errorf("%s: %w", name, pkgerrors.ErrUnknownVersion)
	}
	return v, nil
}

// ManifestVersions returns the names of all versions that have a manifest, sorted.
func (s *Store) ManifestVersions() []string {
	names := make([]string, 0, len(s.manifests))
	for name := range s.manifests {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns the manifest entries of one (version, cache kind) pair sorted by
// path. Paths escaping the cache root and hashes that are not valid sha256
// digests are rejected.
func (s *Store) Entries(version string, kind model.CacheKind) ([]model.ManifestEntry, error) {
	m, ok := s.manifests[version]
	if !ok {
		return nil, fmt.Errorf("no manifest for %s: %w", version, pkgerrors.ErrUnknownVersion)
	}

	files := m.files(kind)
	entries := make([]model.ManifestEntry, 0, len(files))
	for rel, hash := range files {
		if _, err := fsutil.SafeJoin(".", rel); err != nil {
			return nil, pkgerrors.Wrapf(err, "manifest %s/%s", version, kind)
		}
		if _, err := hasher.ParseExpected(hash); err != nil {
			return nil, pkgerrors.Wrapf(err, "manifest %s/%s entry %s", version, kind, rel)
		}
		entries = append(entries, model.ManifestEntry{RelativePath: rel, ExpectedHash: hash})
	}
	slices.SortFunc(entries, func(a, b model.ManifestEntry) int {
		switch {
		case a.RelativePath < b.RelativePath:
			return -1
		case a.RelativePath > b.RelativePath:
			return 1
		}
		return 0
	})
	return entries, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", pkgerrors.ErrManifestLoad, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %w", pkgerrors.ErrManifestLoad, path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return pkgerrors.Wrap(err, "encode hashes")
	}
	if err := fsutil.WriteFileAtomic(path, data, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrapf(err, "write %s", path)
	}
	return nil
}
