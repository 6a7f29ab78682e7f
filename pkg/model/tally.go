package model

// FileState is the classification of one manifest entry on disk.
type FileState int

const (
	// Missing means the file is absent or unreadable.
	Missing FileState = iota
	// Intact means the file digest matches the manifest.
	Intact
	// Altered means the file exists but its digest differs from the manifest.
	Altered
)

func (s FileState) String() string {
	switch s {
	case Intact:
		return "intact"
	case Altered:
		return "altered"
	default:
		return "missing"
	}
}

// FileStatus is the outcome of checking a single manifest entry.
type FileStatus struct {
	Entry ManifestEntry
	State FileState
	Size  int64 // on-disk size; zero when Missing
}

// SizeTally aggregates byte counts for one (version, cache kind) pair.
// Total is the declared size, not what is on disk, so Intact+Altered may be
// below Total; the difference is the size still missing.
type SizeTally struct {
	Intact  int64 `json:"intact"`
	Altered int64 `json:"altered"`
	Total   int64 `json:"total"`
}

// NewSizeTally returns a zeroed tally for the given declared total.
func NewSizeTally(total int64) SizeTally {
	return SizeTally{Total: total}
}

// Add accounts for one checked file. Missing files contribute nothing.
func (t *SizeTally) Add(status FileStatus) {
	switch status.State {
	case Intact:
		t.Intact += status.Size
	case Altered:
		t.Altered += status.Size
	}
}

// Missing returns the bytes neither intact nor altered.
func (t SizeTally) Missing() int64 {
	m := t.Total - t.Intact - t.Altered
	if m < 0 {
		return 0
	}
	return m
}
