// Package version exposes build metadata of the codereport binary.
package version

import (
	"runtime/debug"
)

// Build metadata, overridden with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	settingRevision = "vcs.revision"
	settingTime     = "vcs.time"
	develVersion    = "(devel)"
	shortCommitLen  = 12
)

// InitBinaryVersion fills unset build metadata from the embedded module
// build info. Values injected with -ldflags are left untouched.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != develVersion {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case settingRevision:
			if Commit == "none" {
				Commit = shorten(setting.Value)
			}
		case settingTime:
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// String returns a one-line description of the build.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}

func shorten(rev string) string {
	if len(rev) > shortCommitLen {
		return rev[:shortCommitLen]
	}

	return rev
}
