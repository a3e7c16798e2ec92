package ir

// Version constants for the entry format and the tool.
const (
	// FormatVersion is the entry/action encoding version; it matches the
	// suffix of the hashing domains.
	FormatVersion = "1"

	// ToolVersion is the mementer release.
	ToolVersion = "0.1.0"
)
