package download

import (
	"net/http"
	"time"

	"github.com/glorpus-work/ofclient/pkg/model"
)

// Checker classifies a manifest entry on disk. *integrity.Scanner satisfies it;
// the fetcher uses it for the skip-if-intact pre-check and the post-download re-check.
type Checker interface {
	Check(root string, entry model.ManifestEntry) (model.FileStatus, error)
}

// Outcome reports what Fetch did for one entry.
type Outcome int

const (
	// Downloaded means the file was transferred from the remote.
	Downloaded Outcome = iota + 1
	// AlreadyIntact means the local file matched and no request was made.
	AlreadyIntact
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case AlreadyIntact:
		return "already intact"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single fetch plus the classification of the file
// as it is on disk afterwards.
type Result struct {
	Outcome Outcome
	Status  model.FileStatus
}

// Options control retry and transport behavior of the Fetcher.
type Options struct {
	RetryDelay time.Duration // fixed delay between attempts; DefaultRetryDelay if <= 0
	MaxRetries int           // 0 retries until success or cancellation
	Timeout    time.Duration // per-request timeout; 0 means none
	UserAgent  string
	Client     *http.Client // optional, overrides Timeout
}
