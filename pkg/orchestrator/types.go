//go:generate mockgen -destination=./mocks/orchestrator.go -package=mocks . Scanner,Fetcher,ManifestSource,Locator

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/glorpus-work/ofclient/pkg/download"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/model"
)

// All tags an event that concerns every version or every cache kind.
const All = "all"

// Scanner classifies a single manifest entry on disk.
type Scanner interface {
	Check(root string, entry model.ManifestEntry) (model.FileStatus, error)
}

// Fetcher brings a single manifest entry up to date from the remote.
type Fetcher interface {
	Fetch(ctx context.Context, remoteBase, root string, entry model.ManifestEntry) (download.Result, error)
}

// ManifestSource is the subset of the manifest store used by the orchestrator.
type ManifestSource interface {
	Version(name string) (model.Version, error)
	ManifestVersions() []string
	Entries(version string, kind model.CacheKind) ([]model.ManifestEntry, error)
}

// Locator resolves the playable cache directory of a version.
type Locator interface {
	PathFor(version string) (string, error)
}

// OperationKind is what a batch does to the selected caches.
type OperationKind int

const (
	// HashCheck verifies files without modifying anything.
	HashCheck OperationKind = iota + 1
	// Download verifies files and fetches the ones absent or altered.
	Download
	// Delete removes the files of the selected caches.
	Delete
)

func (k OperationKind) String() string {
	switch k {
	case HashCheck:
		return "hash-check"
	case Download:
		return "download"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOperationKind parses an operation name as used on the command line.
func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hash-check":
		return HashCheck, nil
	case "download":
		return Download, nil
	case "delete":
		return Delete, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, pkgerrors.ErrInvalidOperation)
	}
}

// Request selects the operation and the caches it applies to.
type Request struct {
	Kind      OperationKind
	Version   string           // empty or "all" selects every version
	CacheKind *model.CacheKind // nil selects every kind the operation supports
}

// EventType is the kind of progress notification.
type EventType int

const (
	EventStart EventType = iota + 1
	EventUpdate
	EventComplete
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventUpdate:
		return "update"
	case EventComplete:
		return "complete"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a progress notification for one (version, cache kind) pair.
// Version and CacheKind are All when a failure happens before pairs are known.
type Event struct {
	Type      EventType
	Op        OperationKind
	Version   string
	CacheKind string
	Tally     model.SizeTally
	Err       error
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Options control orchestrator execution.
type Options struct {
	HashCheckConcurrency int    // files hashed in parallel per batch
	DownloadConcurrency  int    // files downloaded in parallel per batch
	CDNRoot              string // remote base, files live at CDNRoot/version/path
	OfflineRoot          string // offline caches live at OfflineRoot/version
}
