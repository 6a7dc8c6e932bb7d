package system

var (
	// Version is the current version of this software. The value here is
	// overridden at build time for tagged releases.
	Version = "develop"
)
