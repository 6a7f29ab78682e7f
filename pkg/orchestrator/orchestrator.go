package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/glorpus-work/ofclient/internal/logger"
	"github.com/glorpus-work/ofclient/internal/workpool"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
	"github.com/glorpus-work/ofclient/pkg/model"
)

const (
	// DefaultHashCheckConcurrency bounds parallel hashing in a batch.
	DefaultHashCheckConcurrency = 20
	// DefaultDownloadConcurrency bounds parallel downloads in a batch.
	DefaultDownloadConcurrency = 5
)

// Orchestrator runs hash-check, download and delete batches over the caches
// described by the manifest store.
type Orchestrator struct {
	Manifests ManifestSource
	Scanner   Scanner
	Fetcher   Fetcher
	Playable  Locator
	Hooks     Hooks // Hooks for progress notifications
	Options   Options

	mu sync.Mutex // serializes tally updates and hook calls
}

// New constructs an Orchestrator. Hooks can be empty if no progress is needed.
func New(manifests ManifestSource, scanner Scanner, fetcher Fetcher, playable Locator, hooks Hooks, opts Options) *Orchestrator {
	return &Orchestrator{
		Manifests: manifests,
		Scanner:   scanner,
		Fetcher:   fetcher,
		Playable:  playable,
		Hooks:     hooks,
		Options:   opts,
	}
}

// job is one (version, cache kind) pair resolved to concrete paths and entries.
type job struct {
	pair    model.Pair
	root    string
	remote  string
	entries []model.ManifestEntry
	total   int64
}

// RunOperation executes req and returns the final tally of every pair it touched.
//
// The whole selection is resolved before any file is touched, so an unknown
// version or a broken manifest fails the batch up front. Pairs then run
// independently: a fatal error in one pair stops scheduling for that pair only
// and is reported as its Failed event. The returned error joins the errors of
// all failed pairs.
func (o *Orchestrator) RunOperation(ctx context.Context, req Request) (map[model.Pair]model.SizeTally, error) {
	jobs, err := o.plan(req)
	if err != nil {
		o.emit(Event{Type: EventFailed, Op: req.Kind, Version: selection(req.Version), CacheKind: kindSelection(req.CacheKind), Err: err})
		return nil, err
	}

	limit := o.limit(req.Kind)
	sem := semaphore.NewWeighted(int64(limit))
	results := make(map[model.Pair]model.SizeTally, len(jobs))
	var resultsMu sync.Mutex
	var errs []error

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error {
			tally, err := o.runJob(ctx, req.Kind, j, limit, sem)
			resultsMu.Lock()
			defer resultsMu.Unlock()
			results[j.pair] = tally
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", req.Kind, j.pair, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

func (o *Orchestrator) limit(kind OperationKind) int {
	switch kind {
	case Download:
		if o.Options.DownloadConcurrency > 0 {
			return o.Options.DownloadConcurrency
		}
		return DefaultDownloadConcurrency
	default:
		if o.Options.HashCheckConcurrency > 0 {
			return o.Options.HashCheckConcurrency
		}
		return DefaultHashCheckConcurrency
	}
}

// plan resolves the request into jobs. The playable cache is never downloaded.
func (o *Orchestrator) plan(req Request) ([]job, error) {
	switch req.Kind {
	case HashCheck, Delete:
	case Download:
		if req.CacheKind != nil && *req.CacheKind == model.Playable {
			return nil, fmt.Errorf("playable cache cannot be downloaded: %w", pkgerrors.ErrInvalidOperation)
		}
	default:
		return nil, fmt.Errorf("operation %d: %w", req.Kind, pkgerrors.ErrInvalidOperation)
	}

	kinds := model.AllCacheKinds
	if req.CacheKind != nil {
		kinds = []model.CacheKind{*req.CacheKind}
	} else if req.Kind == Download {
		kinds = []model.CacheKind{model.Offline}
	}

	all := req.Version == "" || req.Version == All
	names := []string{req.Version}
	if all {
		names = o.Manifests.ManifestVersions()
	}

	jobs := make([]job, 0, len(names)*len(kinds))
	for _, name := range names {
		version, err := o.Manifests.Version(name)
		if err != nil {
			if all {
				return nil, fmt.Errorf("manifest lists version %q: %w: %w", name, pkgerrors.ErrConfigInconsistent, err)
			}
			return nil, err
		}
		for _, kind := range kinds {
			j, err := o.resolve(version, kind)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (o *Orchestrator) resolve(version model.Version, kind model.CacheKind) (job, error) {
	pair := model.Pair{Version: version.Name, Kind: kind}
	entries, err := o.Manifests.Entries(version.Name, kind)
	if err != nil {
		return job{}, pkgerrors.Wrapf(err, "%s", pair)
	}

	var root string
	if kind == model.Playable {
		root, err = o.Playable.PathFor(version.Name)
	} else {
		root, err = fsutil.SafeJoin(o.Options.OfflineRoot, version.Name)
	}
	if err != nil {
		return job{}, pkgerrors.Wrapf(err, "%s root", pair)
	}

	remote, err := url.JoinPath(o.Options.CDNRoot, version.Name)
	if err != nil {
		return job{}, fmt.Errorf("cdn root %q: %w", o.Options.CDNRoot, pkgerrors.ErrInvalidOperation)
	}

	return job{
		pair:    pair,
		root:    root,
		remote:  remote,
		entries: entries,
		total:   version.DeclaredSize(kind),
	}, nil
}

func (o *Orchestrator) runJob(ctx context.Context, op OperationKind, j job, limit int, sem *semaphore.Weighted) (model.SizeTally, error) {
	tally := model.NewSizeTally(j.total)
	o.emit(o.event(EventStart, op, j, tally, nil))

	logger.Debug("Starting cache operation", logger.Fields{
		"operation": op.String(),
		"pair":      j.pair.String(),
		"root":      j.root,
		"files":     len(j.entries),
	})

	var err error
	if op == Delete {
		err = o.deleteJob(j)
	} else {
		err = workpool.Run(ctx, limit, len(j.entries), func(i int) error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			status, err := o.processEntry(ctx, op, j, j.entries[i])
			sem.Release(1)
			if err != nil {
				return err
			}
			o.mu.Lock()
			defer o.mu.Unlock()
			tally.Add(status)
			o.emitLocked(o.event(EventUpdate, op, j, tally, nil))
			return nil
		})
	}

	o.mu.Lock()
	final := tally
	o.mu.Unlock()
	if err != nil {
		logger.Error("Cache operation failed", logger.Fields{"operation": op.String(), "pair": j.pair.String(), "error": err})
		o.emit(o.event(EventFailed, op, j, final, err))
		return final, err
	}
	o.emit(o.event(EventComplete, op, j, final, nil))
	return final, nil
}

func (o *Orchestrator) processEntry(ctx context.Context, op OperationKind, j job, entry model.ManifestEntry) (model.FileStatus, error) {
	if op == Download {
		result, err := o.Fetcher.Fetch(ctx, j.remote, j.root, entry)
		if err != nil {
			return model.FileStatus{}, pkgerrors.Wrapf(err, "fetch %s", entry.RelativePath)
		}
		return result.Status, nil
	}
	return o.Scanner.Check(j.root, entry)
}

// deleteJob removes every manifest file of the pair, then the directories the
// removal left empty.
func (o *Orchestrator) deleteJob(j job) error {
	dirs := make(map[string]struct{})
	for _, entry := range j.entries {
		path, err := fsutil.SafeJoin(j.root, entry.RelativePath)
		if err != nil {
			return err
		}
		if fsutil.IsDir(filepath.Dir(path)) {
			dirs[filepath.Dir(path)] = struct{}{}
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return pkgerrors.Wrapf(err, "remove %s", entry.RelativePath)
		}
	}

	list := make([]string, 0, len(dirs))
	for dir := range dirs {
		list = append(list, dir)
	}
	return fsutil.PruneEmptyDirs(list)
}

func (o *Orchestrator) event(t EventType, op OperationKind, j job, tally model.SizeTally, err error) Event {
	return Event{
		Type:      t,
		Op:        op,
		Version:   j.pair.Version,
		CacheKind: string(j.pair.Kind),
		Tally:     tally,
		Err:       err,
	}
}

func (o *Orchestrator) emit(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitLocked(e)
}

func (o *Orchestrator) emitLocked(e Event) {
	if o.Hooks.OnEvent != nil {
		o.Hooks.OnEvent(e)
	}
}

func selection(version string) string {
	if version == "" {
		return All
	}
	return version
}

func kindSelection(kind *model.CacheKind) string {
	if kind == nil {
		return All
	}
	return string(*kind)
}
