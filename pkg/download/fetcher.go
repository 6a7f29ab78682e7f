package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/ofclient/internal/logger"
	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/fsutil"
	"github.com/glorpus-work/ofclient/pkg/model"
)

const (
	// DefaultRetryDelay is the pause between two attempts at the same file.
	DefaultRetryDelay = time.Second
	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "ofclient/1.0"
)

// Fetcher downloads single cache files with retry on transient failures.
type Fetcher struct {
	checker    Checker
	client     *http.Client
	userAgent  string
	retryDelay time.Duration
	maxRetries int
}

// NewFetcher creates a Fetcher that verifies files through checker.
func NewFetcher(checker Checker, opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Fetcher{
		checker:    checker,
		client:     client,
		userAgent:  opts.UserAgent,
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
	}
}

// transientError marks a failure that is worth another attempt.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error { return &transientError{err: err} }

// Fetch makes sure the file described by entry exists under root.
//
// An already intact file is left alone without touching the network. Otherwise
// the file is fetched from remoteBase/entry.RelativePath, retrying connection
// errors, bad statuses and truncated bodies after a fixed delay. A file that
// arrives complete but with the wrong digest is reported as altered and not
// retried. Local filesystem failures end the fetch immediately.
func (f *Fetcher) Fetch(ctx context.Context, remoteBase, root string, entry model.ManifestEntry) (Result, error) {
	status, err := f.checker.Check(root, entry)
	if err != nil {
		return Result{Status: status}, err
	}
	if status.State == model.Intact {
		return Result{Outcome: AlreadyIntact, Status: status}, nil
	}

	path, err := fsutil.SafeJoin(root, entry.RelativePath)
	if err != nil {
		return Result{Status: status}, err
	}
	source, err := url.JoinPath(remoteBase, entry.RelativePath)
	if err != nil {
		return Result{Status: status}, fmt.Errorf("invalid remote base %q: %w", remoteBase, pkgerrors.ErrDownloadFailed)
	}
	if err := os.MkdirAll(filepath.Dir(path), fsutil.DirModeDefault); err != nil {
		return Result{Status: status}, pkgerrors.Wrap(err, "could not create cache directory")
	}

	if err := f.retry(ctx, source, path); err != nil {
		return Result{Status: status}, err
	}

	status, err = f.checker.Check(root, entry)
	if err != nil {
		return Result{Status: status}, err
	}
	if status.State != model.Intact {
		logger.Warn("Downloaded file does not match manifest", logger.Fields{
			"path":  entry.RelativePath,
			"state": status.State.String(),
		})
	}
	return Result{Outcome: Downloaded, Status: status}, nil
}

func (f *Fetcher) retry(ctx context.Context, source, path string) error {
	var policy backoff.BackOff = backoff.NewConstantBackOff(f.retryDelay)
	if f.maxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(f.maxRetries))
	}
	policy = backoff.WithContext(policy, ctx)

	operation := func() error {
		err := f.attempt(ctx, source, path)
		var te *transientError
		if err == nil || errors.As(err, &te) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying download", logger.Fields{"url": source, "error": err, "wait": wait})
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var te *transientError
		if errors.As(err, &te) {
			return fmt.Errorf("%s: %w: %w", source, pkgerrors.ErrDownloadFailed, te.err)
		}
		return err
	}
	return nil
}

// attempt performs one transfer into a temp file next to path and renames it
// into place once the body has been read completely.
func (f *Fetcher) attempt(ctx context.Context, source, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, http.NoBody)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return transient(pkgerrors.Wrap(err, "request failed"))
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return transient(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ofdl-*.tmp")
	if err != nil {
		return pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return transient(pkgerrors.Wrap(err, "transfer interrupted"))
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		_ = tmp.Close()
		return transient(fmt.Errorf("truncated body: got %d of %d bytes", written, resp.ContentLength))
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrap(err, "could not close temp file")
	}
	if err := os.Chmod(tmpPath, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrap(err, "could not set permissions")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	keep = true

	logger.Debug("Downloaded file", logger.Fields{"url": source, "size": humanize.IBytes(uint64(written))})
	return nil
}
