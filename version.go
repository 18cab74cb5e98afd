/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	"runtime"

	"github.com/suparena/docstore/registry"
)

// Version information set by build flags
var (
	// Version is the semantic version of docstore
	Version = "0.1.0"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build date (set by build flags)
	BuildDate = "unknown"
)

// VersionInfo contains version information
type VersionInfo struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"gitCommit"`
	BuildDate string   `json:"buildDate"`
	GoVersion string   `json:"goVersion"`
	Drivers   []string `json:"drivers"`
}

// GetVersionInfo returns the version information and the registered storage drivers.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Drivers:   registry.Drivers(),
	}
}
