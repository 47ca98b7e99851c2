package version

import "runtime/debug"

// Overridden at build time with
// -ldflags "-X github.com/chmdznr/minio-audit-demo/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func init() {
	if GitCommit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if len(setting.Value) >= 7 {
				GitCommit = setting.Value
			}
		case "vcs.time":
			BuildTime = setting.Value
		}
	}
}

// Short returns the version with an abbreviated commit
func Short() string {
	if GitCommit == "unknown" || GitCommit == "" {
		return Version
	}
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return Version + " (" + commit + ")"
}
