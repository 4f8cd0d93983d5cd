package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Version information. BuildTime and GitCommit are overridden at link time
// via -ldflags; Version is overridden by LoadVersionFromFile when a deployed
// binary ships a sidecar .version file (the common case for GPU workers
// rolled out without rebuilding, per the ops deploy flow).
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string, as shown in the startup
// banner.
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info, surfaced on GET /healthz
// so an operator can confirm which build a running worker is on without
// grepping its startup log.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, BuildTime, GitCommit)
}

// LoadVersionFromFile reads version from a .version file dropped next to the
// binary, if present, and updates the package-level Version. Called once at
// startup, before SetupLogger/PrintBanner.
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return Version
	}

	exeDir := filepath.Dir(exePath)
	versionFile := filepath.Join(exeDir, ".version")

	data, err := os.ReadFile(versionFile)
	if err != nil {
		return Version
	}

	version := strings.TrimSpace(string(data))
	if version != "" {
		Version = version
	}

	return Version
}
