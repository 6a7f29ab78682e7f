package cli

// Default values for CLI flags and output.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// AllSelector selects every version or cache mode.
	AllSelector = "all"
)
