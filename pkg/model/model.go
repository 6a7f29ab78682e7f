// Package model defines the types shared by the cache subsystem: client versions,
// cache kinds, manifest entries and the byte tallies reported while a cache is
// checked or downloaded.
package model

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/ofclient/pkg/errors"
)

// CacheKind selects one of the two cache trees kept per version.
type CacheKind string

const (
	// Playable is the cache read by the embedded web player. One version at a
	// time occupies the shared live directory.
	Playable CacheKind = "playable"
	// Offline is a pre-downloaded cache kept in a per-version directory.
	Offline CacheKind = "offline"
)

// AllCacheKinds lists every cache kind in the order operations visit them.
var AllCacheKinds = []CacheKind{Offline, Playable}

// ParseCacheKind parses a cache kind name. The empty string and "all" return nil,
// meaning every kind.
func ParseCacheKind(s string) (*CacheKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return nil, nil
	case string(Playable):
		k := Playable
		return &k, nil
	case string(Offline):
		k := Offline
		return &k, nil
	default:
		return nil, fmt.Errorf("%q: %w", s, errors.ErrUnknownCacheKind)
	}
}

// Version identifies one client build.
type Version struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	PlayableSize int64  `json:"-"`
	OfflineSize  int64  `json:"-"`
}

// DeclaredSize returns the expected total size of the given cache kind.
func (v Version) DeclaredSize(kind CacheKind) int64 {
	if kind == Playable {
		return v.PlayableSize
	}
	return v.OfflineSize
}

// ManifestEntry is one file expected in a (version, cache kind) cache.
type ManifestEntry struct {
	RelativePath string // slash separated, relative to the cache kind root
	ExpectedHash string // lowercase hex sha256
}

// Pair addresses one cache: a version and a cache kind.
type Pair struct {
	Version string
	Kind    CacheKind
}

func (p Pair) String() string {
	return p.Version + "/" + string(p.Kind)
}
