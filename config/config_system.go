package config

import (
	"os"

	"emperror.dev/errors"
	"github.com/apex/log"
)

// SystemConfiguration defines basic system configuration settings.
type SystemConfiguration struct {
	// The root directory the shell is confined to. Every command a session runs
	// resolves against this directory and nothing outside it is ever touched.
	RootDirectory string `yaml:"root_directory"`

	// Directory where the shell keeps its own state, such as the command
	// history database. This is deliberately separate from the root directory
	// so sessions cannot see or damage it.
	DataDirectory string `yaml:"data_directory"`

	// Directory where logs are stored.
	LogDirectory string `yaml:"log_directory"`

	// The amount of time in seconds that can elapse before a disk usage figure
	// for the sandbox is considered stale and recomputed on request. Set to 0
	// to walk the tree on every request.
	UsageCheckInterval int `default:"150" yaml:"usage_check_interval"`

	History HistoryConfiguration `yaml:"history"`

	Archives ArchiveConfiguration `yaml:"archives"`
}

// HistoryConfiguration controls the persistent command history.
type HistoryConfiguration struct {
	// Whether executed commands are recorded at all.
	Enabled bool `default:"true" yaml:"enabled"`

	// Number of days a recorded command is kept before being pruned at startup.
	// Anything older than this is deleted the next time the shell boots.
	RetentionDays int `default:"30" yaml:"retention_days"`
}

// ArchiveConfiguration defines the configuration for archives generated
// by the shell.
type ArchiveConfiguration struct {
	// The compression level to use when creating archives, one of "none",
	// "best_speed" or "best_compression".
	CompressionLevel string `default:"best_speed" yaml:"compression_level"`
}

// ConfigureDirectories ensures that the internal directories the shell writes
// to exist on the system. These are created so that only the owner can read
// the data, and no other users.
//
// The sandbox root directory is handled separately by EnsureRootDirectory.
func ConfigureDirectories() error {
	sc := Get().System

	log.WithField("path", sc.DataDirectory).Debug("ensuring data directory exists")
	if err := os.MkdirAll(sc.DataDirectory, 0o700); err != nil {
		return err
	}

	log.WithField("path", sc.LogDirectory).Debug("ensuring log directory exists")
	if err := os.MkdirAll(sc.LogDirectory, 0o700); err != nil {
		return err
	}

	return nil
}

// EnsureRootDirectory creates the sandbox root directory if it is missing and
// confirms the path is a usable directory. Sessions cannot start without it,
// so a failure here is fatal to the caller.
func EnsureRootDirectory() error {
	root := Get().System.RootDirectory

	log.WithField("path", root).Debug("ensuring sandbox root directory exists")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.WithMessage(err, "config: could not create the sandbox root directory")
	}

	st, err := os.Stat(root)
	if err != nil {
		return errors.WithMessage(err, "config: could not access the sandbox root directory")
	}
	if !st.IsDir() {
		return errors.New("config: the configured sandbox root exists but is not a directory")
	}

	return nil
}
