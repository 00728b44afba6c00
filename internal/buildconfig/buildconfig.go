package buildconfig

import "fmt"

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/mnemo/internal/buildconfig.version=v0.3.0
var (
	version = "dev"
	commit  = "unknown"
	date    = ""
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// String renders the build as "v0.3.0 (abc1234, 2025-06-01)".
func String() string {
	if date == "" {
		return fmt.Sprintf("%s (%s)", version, commit)
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

// VersionInfo is the build description reported by /metrics.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}
