package swap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renameRecorder struct {
	calls [][2]string
	fail  map[string]error
}

func (r *renameRecorder) rename(src, dst string) error {
	r.calls = append(r.calls, [2]string{filepath.Base(src), filepath.Base(dst)})
	if err, ok := r.fail[filepath.Base(src)]; ok {
		return err
	}
	return os.Rename(src, dst)
}

func setup(t *testing.T) (cacheRoot, userDir string, rec *renameRecorder, m *Manager) {
	t.Helper()
	cacheRoot = t.TempDir()
	userDir = t.TempDir()
	rec = &renameRecorder{fail: map[string]error{}}
	m = NewManager(cacheRoot, userDir, WithRename(rec.rename))
	return cacheRoot, userDir, rec, m
}

func mkdir(t *testing.T, root, name, marker string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte(marker), 0o644))
}

func marker(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name, "marker"))
	require.NoError(t, err)
	return string(data)
}

func record(t *testing.T, m *Manager) string {
	t.Helper()
	v, ok, err := m.ReadRecord()
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func TestSwapTo_SameVersionTwiceRenamesOnce(t *testing.T) {
	cacheRoot, _, rec, m := setup(t)
	mkdir(t, cacheRoot, "beta-20100104", "v1")

	require.NoError(t, m.SwapTo("beta-20100104"))
	first, err := os.Stat(m.LivePath())
	require.NoError(t, err)

	require.NoError(t, m.SwapTo("beta-20100104"))
	second, err := os.Stat(m.LivePath())
	require.NoError(t, err)

	assert.Len(t, rec.calls, 1)
	assert.True(t, os.SameFile(first, second))
	assert.Equal(t, "v1", marker(t, cacheRoot, DefaultLiveName))
}

func TestSwapTo_FromEmpty(t *testing.T) {
	cacheRoot, _, rec, m := setup(t)

	require.NoError(t, m.SwapTo("1.0"))
	assert.NoDirExists(t, m.LivePath())
	assert.Equal(t, "1.0", record(t, m))
	assert.Empty(t, rec.calls)

	mkdir(t, cacheRoot, "1.1", "one-one")
	require.NoError(t, m.SwapTo("1.1"))

	assert.Equal(t, [][2]string{{"1.1", DefaultLiveName}}, rec.calls)
	assert.Equal(t, "one-one", marker(t, cacheRoot, DefaultLiveName))
	assert.NoDirExists(t, filepath.Join(cacheRoot, "1.1"))
	assert.Equal(t, "1.1", record(t, m))
}

func TestSwapTo_SwapsOutCurrentVersion(t *testing.T) {
	cacheRoot, _, rec, m := setup(t)
	mkdir(t, cacheRoot, DefaultLiveName, "old")
	mkdir(t, cacheRoot, "new", "new")
	require.NoError(t, m.WriteRecord("old"))

	require.NoError(t, m.SwapTo("new"))

	assert.Equal(t, [][2]string{{DefaultLiveName, "old"}, {"new", DefaultLiveName}}, rec.calls)
	assert.Equal(t, "old", marker(t, cacheRoot, "old"))
	assert.Equal(t, "new", marker(t, cacheRoot, DefaultLiveName))
	assert.Equal(t, "new", record(t, m))
}

func TestSwapTo_TargetWithoutDirectoryLeavesLiveEmpty(t *testing.T) {
	cacheRoot, _, rec, m := setup(t)
	mkdir(t, cacheRoot, DefaultLiveName, "old")
	require.NoError(t, m.WriteRecord("old"))

	require.NoError(t, m.SwapTo("fresh"))

	assert.Len(t, rec.calls, 1)
	assert.NoDirExists(t, m.LivePath())
	assert.Equal(t, "old", marker(t, cacheRoot, "old"))
	assert.Equal(t, "fresh", record(t, m))
}

func TestSwapTo_RemovesStaleCopy(t *testing.T) {
	cacheRoot, _, _, m := setup(t)
	mkdir(t, cacheRoot, DefaultLiveName, "live copy")
	mkdir(t, cacheRoot, "old", "stale copy")
	require.NoError(t, m.WriteRecord("old"))

	require.NoError(t, m.SwapTo("new"))

	assert.Equal(t, "live copy", marker(t, cacheRoot, "old"))
}

func TestSwapTo_UnrecordedLiveMovedAside(t *testing.T) {
	cacheRoot, _, _, m := setup(t)
	mkdir(t, cacheRoot, DefaultLiveName, "unknown")
	mkdir(t, cacheRoot, DefaultLiveName+UnversionedSuffix, "older unknown")
	mkdir(t, cacheRoot, "target", "target")

	require.NoError(t, m.SwapTo("target"))

	assert.Equal(t, "unknown", marker(t, cacheRoot, DefaultLiveName+UnversionedSuffix))
	assert.Equal(t, "target", marker(t, cacheRoot, DefaultLiveName))
	assert.Equal(t, "target", record(t, m))
}

func TestSwapTo_RecordWrittenWhenRenameFails(t *testing.T) {
	cacheRoot, _, rec, m := setup(t)
	mkdir(t, cacheRoot, DefaultLiveName, "old")
	mkdir(t, cacheRoot, "new", "new")
	require.NoError(t, m.WriteRecord("old"))
	rec.fail[DefaultLiveName] = errors.New("directory in use")

	err := m.SwapTo("new")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrSwapFailed))
	assert.Contains(t, err.Error(), "directory in use")

	assert.Len(t, rec.calls, 1)
	assert.Equal(t, "old", marker(t, cacheRoot, DefaultLiveName))
	assert.Equal(t, "new", record(t, m))
}

func TestSwapTo_InvalidVersionName(t *testing.T) {
	_, _, rec, m := setup(t)

	for _, name := range []string{"", ".", "../escape", "a/b", DefaultLiveName} {
		err := m.SwapTo(name)
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidPath), name)
	}
	assert.Empty(t, rec.calls)
	_, ok, err := m.ReadRecord()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithLiveName(t *testing.T) {
	cacheRoot := t.TempDir()
	m := NewManager(cacheRoot, t.TempDir(), WithLiveName("Fusionfall"))
	assert.Equal(t, filepath.Join(cacheRoot, "Fusionfall"), m.LivePath())
}

func TestPathFor(t *testing.T) {
	tests := []struct {
		name     string
		dirs     []string
		record   string
		version  string
		expected string
	}{
		{
			name:     "named directory exists",
			dirs:     []string{"v1", DefaultLiveName},
			record:   "v1",
			version:  "v1",
			expected: "v1",
		},
		{
			name:     "recorded version is live",
			dirs:     []string{DefaultLiveName},
			record:   "v1",
			version:  "v1",
			expected: DefaultLiveName,
		},
		{
			name:     "other version is live",
			dirs:     []string{DefaultLiveName},
			record:   "v2",
			version:  "v1",
			expected: "v1",
		},
		{
			name:     "no live directory",
			record:   "v1",
			version:  "v1",
			expected: "v1",
		},
		{
			name:     "no record",
			dirs:     []string{DefaultLiveName},
			version:  "v1",
			expected: "v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cacheRoot, _, _, m := setup(t)
			for _, d := range tt.dirs {
				mkdir(t, cacheRoot, d, d)
			}
			if tt.record != "" {
				require.NoError(t, m.WriteRecord(tt.record))
			}

			path, err := m.PathFor(tt.version)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(cacheRoot, tt.expected), path)
		})
	}
}

func TestState(t *testing.T) {
	cacheRoot, _, _, m := setup(t)

	state, err := m.State()
	require.NoError(t, err)
	assert.Equal(t, State{}, state)

	mkdir(t, cacheRoot, DefaultLiveName, "x")
	require.NoError(t, m.WriteRecord(" v3\n"))
	state, err = m.State()
	require.NoError(t, err)
	assert.Equal(t, State{Occupied: true, Current: "v3"}, state)
}
