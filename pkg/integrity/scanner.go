// Package integrity compares cache directories against their manifests.
package integrity

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/glorpus-work/ofclient/internal/logger"
	"github.com/glorpus-work/ofclient/internal/workpool"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
	"github.com/glorpus-work/ofclient/pkg/hasher"
	"github.com/glorpus-work/ofclient/pkg/model"
	"github.com/opencontainers/go-digest"
)

// DefaultConcurrency is the number of files hashed in parallel when none is configured.
const DefaultConcurrency = 20

// Scanner classifies the files of a cache directory as intact, altered or missing.
type Scanner struct {
	concurrency int
}

// NewScanner creates a Scanner hashing up to concurrency files at a time.
func NewScanner(concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scanner{concurrency: concurrency}
}

// Check classifies one manifest entry under root.
//
// A file that is absent or cannot be read is reported as Missing with a nil
// error so one bad file does not stop a scan. An entry whose path leaves root
// or whose hash is not a valid digest is a configuration error.
func (s *Scanner) Check(root string, entry model.ManifestEntry) (model.FileStatus, error) {
	path, expected, err := resolve(root, entry)
	if err != nil {
		return model.FileStatus{Entry: entry}, err
	}

	sum, err := hasher.Digest(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Unreadable cache file treated as missing", logger.Fields{"path": path, "error": err})
		}
		return model.FileStatus{Entry: entry, State: model.Missing}, nil
	}

	state := model.Altered
	if sum.Matches(expected) {
		state = model.Intact
	}
	return model.FileStatus{Entry: entry, State: state, Size: sum.Size}, nil
}

// Scan checks every entry and returns the aggregated tally.
func (s *Scanner) Scan(ctx context.Context, root string, entries []model.ManifestEntry, total int64) (model.SizeTally, error) {
	return s.ScanStream(ctx, root, entries, total, nil)
}

// ScanStream checks every entry and calls onEntryChecked after each file.
// Calls to onEntryChecked are serialized. All entries are validated before any
// file is read, so a configuration error is reported without partial progress.
func (s *Scanner) ScanStream(
	ctx context.Context,
	root string,
	entries []model.ManifestEntry,
	total int64,
	onEntryChecked func(model.FileStatus),
) (model.SizeTally, error) {
	tally := model.NewSizeTally(total)
	if err := Validate(root, entries); err != nil {
		return tally, err
	}

	var mu sync.Mutex
	err := workpool.Run(ctx, s.concurrency, len(entries), func(i int) error {
		status, err := s.Check(root, entries[i])
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		tally.Add(status)
		if onEntryChecked != nil {
			onEntryChecked(status)
		}
		return nil
	})
	return tally, err
}

// Validate checks that every entry has a local path under root and a valid digest.
func Validate(root string, entries []model.ManifestEntry) error {
	for _, entry := range entries {
		if _, _, err := resolve(root, entry); err != nil {
			return err
		}
	}
	return nil
}

func resolve(root string, entry model.ManifestEntry) (string, digest.Digest, error) {
	path, err := fsutil.SafeJoin(root, entry.RelativePath)
	if err != nil {
		return "", "", err
	}
	expected, err := hasher.ParseExpected(entry.ExpectedHash)
	if err != nil {
		return "", "", pkgerrors.Wrapf(err, "entry %s", entry.RelativePath)
	}
	return path, expected, nil
}
