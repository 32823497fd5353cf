package dispatcher

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Build information, injected with -ldflags "-X github.com/lattiq/dispatcher.Version=...".
var (
	// Version is the semantic version of the build.
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built.
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// VersionInfo contains detailed version information.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns version information, falling back to the VCS
// stamps recorded by the Go toolchain when ldflags were not set.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
		info.Version = buildInfo.Main.Version
	}

	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = setting.Value
			}
		case "vcs.modified":
			if setting.Value == "true" && !strings.HasSuffix(info.GitCommit, "-dirty") {
				info.GitCommit += "-dirty"
			}
		}
	}

	return info
}

// String returns a human-readable version string.
func (v VersionInfo) String() string {
	parts := []string{"Version: " + v.Version}

	if v.GitCommit != "unknown" && v.GitCommit != "" {
		parts = append(parts, "Commit: "+v.GitCommit)
	}
	if v.BuildDate != "unknown" && v.BuildDate != "" {
		parts = append(parts, "Built: "+v.BuildDate)
	}
	parts = append(parts, "Go: "+v.GoVersion, "Platform: "+v.Platform)

	return strings.Join(parts, ", ")
}
