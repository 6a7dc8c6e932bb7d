package system

import (
	"runtime"
)

type Information struct {
	Version      string `json:"version"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	GoVersion    string `json:"go_version"`
	CpuCount     int    `json:"cpu_count"`
}

// GetSystemInformation returns information about the running binary and the
// host it was started on, primarily for the diagnostics command output.
func GetSystemInformation() *Information {
	return &Information{
		Version:      Version,
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
		GoVersion:    runtime.Version(),
		CpuCount:     runtime.NumCPU(),
	}
}
