package dispatcher

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestVersionInfo_String(t *testing.T) {
	info := VersionInfo{
		Version:   "1.2.0",
		GitCommit: "abc123",
		BuildDate: "unknown",
		GoVersion: "go1.23.0",
		Platform:  "linux/amd64",
	}
	assert.Equal(t, "Version: 1.2.0, Commit: abc123, Go: go1.23.0, Platform: linux/amd64", info.String())

	info.BuildDate = "2024-05-01"
	assert.Contains(t, info.String(), "Built: 2024-05-01")
}
