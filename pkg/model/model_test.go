package model

import (
	"errors"
	"testing"

	pkgerrors "github.com/glorpus-work/ofclient/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCacheKind(t *testing.T) {
	tests := []struct {
		input    string
		expected *CacheKind
		wantErr  bool
	}{
		{input: "", expected: nil},
		{input: "all", expected: nil},
		{input: "offline", expected: ptr(Offline)},
		{input: " Playable ", expected: ptr(Playable)},
		{input: "live", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCacheKind(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, pkgerrors.ErrUnknownCacheKind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestVersion_DeclaredSize(t *testing.T) {
	v := Version{Name: "beta-20100104", PlayableSize: 10, OfflineSize: 20}
	assert.Equal(t, int64(10), v.DeclaredSize(Playable))
	assert.Equal(t, int64(20), v.DeclaredSize(Offline))
}

func TestSizeTally_Add(t *testing.T) {
	tally := NewSizeTally(300)
	tally.Add(FileStatus{State: Intact, Size: 100})
	tally.Add(FileStatus{State: Altered, Size: 50})
	tally.Add(FileStatus{State: Missing, Size: 999})

	assert.Equal(t, SizeTally{Intact: 100, Altered: 50, Total: 300}, tally)
	assert.Equal(t, int64(150), tally.Missing())
}

func TestSizeTally_MissingNeverNegative(t *testing.T) {
	tally := SizeTally{Intact: 120, Total: 100}
	assert.Equal(t, int64(0), tally.Missing())
}

func TestFileState_String(t *testing.T) {
	assert.Equal(t, "intact", Intact.String())
	assert.Equal(t, "altered", Altered.String())
	assert.Equal(t, "missing", Missing.String())
}

func ptr(k CacheKind) *CacheKind { return &k }
