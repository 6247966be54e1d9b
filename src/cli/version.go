package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Build information. These variables are set via -ldflags at build time.
var (
	// Version is the semantic version (e.g., "v0.1.0")
	Version = "v0.0.0"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// openWrtReleaseFile is read for the firmware description on OpenWrt routers
var openWrtReleaseFile = "/etc/openwrt_release"

// getOpenWrtVersion reads the OpenWrt version, "unknown" off OpenWrt
func getOpenWrtVersion() string {
	data, err := os.ReadFile(openWrtReleaseFile)
	if err != nil {
		return "unknown"
	}

	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "DISTRIB_DESCRIPTION="); ok {
			return strings.Trim(value, "'\"")
		}
	}

	return "unknown"
}

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("TollGate Client %s", Version)
}

// GetFullVersionInfo returns detailed version information as a map
func GetFullVersionInfo() map[string]string {
	return map[string]string{
		"version":         Version,
		"commit":          GitCommit,
		"build_time":      BuildTime,
		"go_version":      GoVersion,
		"openwrt_version": getOpenWrtVersion(),
	}
}

// GetFormattedVersionInfo returns a formatted multi-line version string
func GetFormattedVersionInfo() string {
	return fmt.Sprintf(`TollGate Client Version
version: %s
commit: %s
build_time: %s
go_version: %s
openwrt_version: %s`,
		Version, GitCommit, BuildTime, GoVersion, getOpenWrtVersion())
}
