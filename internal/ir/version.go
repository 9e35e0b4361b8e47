package ir

// Version constants.
const (
	// PayloadVersion is the normalized payload format version.
	PayloadVersion = "1"

	// Version is the graphcache release version.
	Version = "0.1.0"
)
