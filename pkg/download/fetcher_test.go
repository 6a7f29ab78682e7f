package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/glorpus-work/ofclient/pkg/integrity"
	"github.com/glorpus-work/ofclient/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newTestFetcher(maxRetries int) *Fetcher {
	return NewFetcher(integrity.NewScanner(1), Options{
		RetryDelay: time.Millisecond,
		MaxRetries: maxRetries,
		Timeout:    5 * time.Second,
		UserAgent:  "test-agent/1.0",
	})
}

// countingServer serves the responses in order, repeating the last one.
func countingServer(t *testing.T, handlers ...http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(handlers) {
			n = len(handlers) - 1
		}
		handlers[n](w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func serve(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

// truncated declares a longer body than it sends, then drops the connection.
func truncated(body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("hijacking not supported")
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			panic(err)
		}
		defer func() { _ = conn.Close() }()
		_, _ = fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(body)*2)
		_, _ = buf.Write(body)
		_ = buf.Flush()
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(integrity.NewScanner(1), Options{})
	assert.Equal(t, DefaultUserAgent, f.userAgent)
	assert.Equal(t, DefaultRetryDelay, f.retryDelay)
	assert.Equal(t, time.Duration(0), f.client.Timeout)
	assert.Equal(t, 0, f.maxRetries)
}

func TestFetch_DownloadsMissingFile(t *testing.T) {
	content := []byte("asset bytes")
	var gotPath, gotUA string
	server, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.UserAgent()
		serve(content)(w, r)
	})

	root := t.TempDir()
	entry := model.ManifestEntry{RelativePath: "Sub Dir/a.bin", ExpectedHash: hashOf(content)}

	result, err := newTestFetcher(0).Fetch(context.Background(), server.URL+"/beta-20100104", root, entry)
	require.NoError(t, err)

	assert.Equal(t, Downloaded, result.Outcome)
	assert.Equal(t, model.Intact, result.Status.State)
	assert.Equal(t, int64(len(content)), result.Status.Size)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "/beta-20100104/Sub Dir/a.bin", gotPath)
	assert.Equal(t, "test-agent/1.0", gotUA)

	data, err := os.ReadFile(filepath.Join(root, "Sub Dir", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	leftovers, err := filepath.Glob(filepath.Join(root, "Sub Dir", ".ofdl-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetch_SecondCallMakesNoRequest(t *testing.T) {
	content := []byte("idempotent")
	server, calls := countingServer(t, serve(content))
	root := t.TempDir()
	entry := model.ManifestEntry{RelativePath: "a.bin", ExpectedHash: hashOf(content)}
	f := newTestFetcher(0)

	first, err := f.Fetch(context.Background(), server.URL, root, entry)
	require.NoError(t, err)
	assert.Equal(t, Downloaded, first.Outcome)

	second, err := f.Fetch(context.Background(), server.URL, root, entry)
	require.NoError(t, err)
	assert.Equal(t, AlreadyIntact, second.Outcome)
	assert.Equal(t, model.Intact, second.Status.State)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	content := []byte("eventually consistent")

	tests := []struct {
		name     string
		handlers []http.HandlerFunc
		calls    int32
	}{
		{
			name:     "server error then success",
			handlers: []http.HandlerFunc{status(http.StatusInternalServerError), serve(content)},
			calls:    2,
		},
		{
			name:     "not found twice then success",
			handlers: []http.HandlerFunc{status(http.StatusNotFound), status(http.StatusNotFound), serve(content)},
			calls:    3,
		},
		{
			name:     "truncated body then success",
			handlers: []http.HandlerFunc{truncated(content[:5]), serve(content)},
			calls:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := countingServer(t, tt.handlers...)
			root := t.TempDir()
			entry := model.ManifestEntry{RelativePath: "a.bin", ExpectedHash: hashOf(content)}

			result, err := newTestFetcher(0).Fetch(context.Background(), server.URL, root, entry)
			require.NoError(t, err)
			assert.Equal(t, Downloaded, result.Outcome)
			assert.Equal(t, model.Intact, result.Status.State)
			assert.Equal(t, tt.calls, calls.Load())

			leftovers, err := filepath.Glob(filepath.Join(root, ".ofdl-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestFetch_AlteredDownloadIsNotRetried(t *testing.T) {
	server, calls := countingServer(t, serve([]byte("wrong bytes")))
	root := t.TempDir()
	entry := model.ManifestEntry{RelativePath: "b.bin", ExpectedHash: hashOf([]byte("right bytes"))}

	result, err := newTestFetcher(0).Fetch(context.Background(), server.URL, root, entry)
	require.NoError(t, err)
	assert.Equal(t, Downloaded, result.Outcome)
	assert.Equal(t, model.Altered, result.Status.State)
	assert.Equal(t, int64(len("wrong bytes")), result.Status.Size)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ReplacesAlteredFile(t *testing.T) {
	content := []byte("fresh")
	server, calls := countingServer(t, serve(content))
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.bin"), []byte("stale"), 0o644))
	entry := model.ManifestEntry{RelativePath: "b.bin", ExpectedHash: hashOf(content)}

	result, err := newTestFetcher(0).Fetch(context.Background(), server.URL, root, entry)
	require.NoError(t, err)
	assert.Equal(t, model.Intact, result.Status.State)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_DirectoryCreationFailureIsFatal(t *testing.T) {
	server, calls := countingServer(t, serve([]byte("unused")))
	root := t.TempDir()
	// a regular file where a directory is needed
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub"), []byte("x"), 0o644))
	entry := model.ManifestEntry{RelativePath: "sub/a.bin", ExpectedHash: hashOf([]byte("unused"))}

	_, err := newTestFetcher(0).Fetch(context.Background(), server.URL, root, entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not create cache directory")
	assert.Equal(t, int32(0), calls.Load())
}

func TestFetch_InvalidDigestIsFatal(t *testing.T) {
	server, calls := countingServer(t, serve([]byte("unused")))

	_, err := newTestFetcher(0).Fetch(context.Background(), server.URL, t.TempDir(),
		model.ManifestEntry{RelativePath: "a.bin", ExpectedHash: "d41d8cd98f00b204e9800998ecf8427e"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDigest))
	assert.Equal(t, int32(0), calls.Load())
}

func TestFetch_MaxRetriesCapsAttempts(t *testing.T) {
	server, calls := countingServer(t, status(http.StatusServiceUnavailable))
	entry := model.ManifestEntry{RelativePath: "a.bin", ExpectedHash: hashOf([]byte("never"))}

	_, err := newTestFetcher(2).Fetch(context.Background(), server.URL, t.TempDir(), entry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrDownloadFailed))
	assert.Contains(t, err.Error(), "unexpected status code: 503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_CancelStopsUnlimitedRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server, calls := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	go func() {
		for calls.Load() < 3 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	entry := model.ManifestEntry{RelativePath: "a.bin", ExpectedHash: hashOf([]byte("never"))}
	_, err := newTestFetcher(0).Fetch(ctx, server.URL, t.TempDir(), entry)
	require.Error(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "downloaded", Downloaded.String())
	assert.Equal(t, "already intact", AlreadyIntact.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
