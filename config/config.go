package config

import (
	"os"
	"path/filepath"
	"sync"

	"emperror.dev/errors"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"
)

var (
	mu sync.RWMutex

	_config *Configuration

	// Tracks whether debug mode was enabled from the command line rather than
	// the configuration file so that it never gets persisted back to the disk.
	_debugViaFlag bool
)

// DefaultLocation is where the configuration file lives unless a different
// path is passed on the command line. Computed up front because the flag
// system needs the value before any configuration has been loaded.
var DefaultLocation = defaultPath(".config", "burrow", "config.yml")

type Configuration struct {
	// The location from which this configuration instance was instantiated.
	path string

	// Determines if the shell should be running in debug mode. This value is
	// ignored if the debug flag is passed through the command line arguments.
	Debug bool `default:"false" yaml:"debug"`

	// The name shown at the front of the prompt for every input cycle.
	TerminalName string `default:"burrow" yaml:"terminal_name"`

	System SystemConfiguration `yaml:"system"`
}

// NewAtPath creates a new struct and set the path where it should be stored.
// This function does not modify the currently stored global configuration.
func NewAtPath(path string) (*Configuration, error) {
	var c Configuration
	// Configures the default values for many of the configuration options present
	// in the structs. Values set in the configuration file take priority over the
	// default values.
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	// Directories under the invoking user's home cannot be expressed as static
	// struct tag defaults, so they are filled in here and only kept when the
	// file does not provide an explicit value.
	c.System.RootDirectory = defaultPath("Documents", "Burrow")
	c.System.DataDirectory = defaultPath(".local", "share", "burrow")
	c.System.LogDirectory = filepath.Join(c.System.DataDirectory, "logs")
	// Track the location where we created this configuration.
	c.unsafeSetPath(path)
	return &c, nil
}

// Sets the path where the configuration file is tracked at. This function is
// not thread-safe, use Configuration.SetPath for that.
func (c *Configuration) unsafeSetPath(path string) {
	c.path = path
}

// GetPath returns the path for this configuration file.
func (c *Configuration) GetPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return c.path
}

// Set the global configuration instance. This is a blocking operation such
// that anything trying to set a different configuration value, or read the
// configuration will be paused until it is complete.
func Set(c *Configuration) {
	mu.Lock()
	_config = c
	mu.Unlock()
}

// SetDebugViaFlag tracks if the application is running in debug mode because
// of a command line flag argument. If so we do not want to store that in the
// configuration file.
func SetDebugViaFlag(d bool) {
	mu.Lock()
	_config.Debug = d
	_debugViaFlag = d
	mu.Unlock()
}

// Get returns the global configuration instance. This is a thread-safe
// operation that will block if the configuration is presently being modified.
//
// Be aware that you CANNOT make modifications to the currently stored
// configuration by modifying the struct returned by this function. The only
// way to make modifications is by using the Update() function and passing data
// through in the callback.
func Get() *Configuration {
	mu.RLock()
	// Create a copy of the struct so that all modifications made beyond this
	// point are immutable.
	//nolint:govet
	c := *_config
	mu.RUnlock()
	return &c
}

// Update performs an in-situ update of the global configuration object using
// a thread-safe mutex lock. This is the correct way to make modifications to
// the global configuration.
func Update(callback func(c *Configuration)) {
	mu.Lock()
	callback(_config)
	mu.Unlock()
}

// WriteToDisk writes the configuration to the disk. This is a thread safe
// operation and will only allow one write at a time. Additional calls while
// writing are queued up.
func WriteToDisk(c *Configuration) error {
	mu.Lock()
	defer mu.Unlock()

	//goland:noinspection GoVetCopyLock
	ccopy := *c
	// If debugging is set with the flag, don't save that to the configuration
	// file, otherwise you'll always end up in debug mode.
	if _debugViaFlag {
		ccopy.Debug = false
	}
	if c.path == "" {
		return errors.New("config: cannot write to disk, no path defined in configuration")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(&ccopy)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o600)
}

// FromFile reads the configuration from the provided file and stores it in the
// global singleton for this instance.
func FromFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c, err := NewAtPath(path)
	if err != nil {
		return err
	}

	// Replace environment variables within the configuration file with their
	// values from the host system.
	b = []byte(os.ExpandEnv(string(b)))

	if err := yaml.Unmarshal(b, c); err != nil {
		return err
	}

	// Store this configuration in the global state.
	Set(c)
	return nil
}

// Load reads the configuration at the given path into the global singleton. A
// missing file is not an error, the shell runs perfectly well on the default
// values, so a file is only ever written out by the configure command.
func Load(path string) error {
	err := FromFile(path)
	if err == nil || !os.IsNotExist(err) {
		return err
	}

	c, err := NewAtPath(path)
	if err != nil {
		return err
	}
	Set(c)
	return nil
}

func defaultPath(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Degrade to a path relative to wherever the process was started if
		// the home directory cannot be determined at all.
		home = "."
	}
	return filepath.Join(append([]string{home}, parts...)...)
}
