package version

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

// String returns the human-readable version string.
func String() string {
	if Commit != "" {
		return Version + " (" + Commit + ")"
	}
	return Version
}

// Get returns the version and commit fields as a map.
func Get() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
	}
}
