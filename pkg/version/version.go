// Package version carries build information stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// Platform returns the os/arch pair the binary was built for.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Summary returns the version with a short commit hash when known.
func Summary() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit != "" && Commit != "none" {
		short := Commit
		if len(short) > 7 {
			short = short[:7]
		}
		return fmt.Sprintf("%s (%s)", v, short)
	}
	return v
}

// Info is the multi-line report printed by the version command of binary.
func Info(binary string) string {
	return fmt.Sprintf("%s version %s\n  commit: %s\n  built: %s\n  go: %s\n  platform: %s",
		binary, Summary(), Commit, Date, GoVersion, Platform())
}

// Fields returns the build information as a flat map for JSON responses.
func Fields() map[string]string {
	return map[string]string{
		"version":  Summary(),
		"commit":   Commit,
		"built":    Date,
		"go":       GoVersion,
		"platform": Platform(),
	}
}
