package tautan

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build metadata. GitCommit and BuildDate may be set with -ldflags; otherwise
// they are read from the VCS stamp in the binary when available.
var (
	Version   = "v0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && GitCommit == "unknown":
			GitCommit = s.Value
			if len(GitCommit) > 12 {
				GitCommit = GitCommit[:12]
			}
		case s.Key == "vcs.time" && BuildDate == "unknown":
			BuildDate = s.Value
		}
	}
}

// GetVersion returns a human-readable version string.
func GetVersion() string {
	return fmt.Sprintf("tautan %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// UserAgent is sent on every outgoing request.
func UserAgent() string {
	return "tautan/" + Version
}
