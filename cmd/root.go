package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"github.com/NYTimes/logrotate"
	"github.com/apex/log"
	"github.com/apex/log/handlers/multi"
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/internal/database"
	"github.com/burrowsh/burrow/loggers/cli"
	"github.com/burrowsh/burrow/shell"
	"github.com/burrowsh/burrow/shell/filesystem"
	"github.com/burrowsh/burrow/system"
)

var (
	configPath    = config.DefaultLocation
	debug         = false
	rootDirectory = ""
	showVersion   = false
)

var root = &cobra.Command{
	Use:   "burrow",
	Short: "An interactive shell confined to a single sandboxed directory",
	Long:  ``,
	Run:   rootCmdRun,
}

func init() {
	root.PersistentFlags().BoolVar(&showVersion, "version", false, "show the version and exit")
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultLocation, "set the location for the configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "pass in order to run burrow in debug mode")
	root.Flags().StringVar(&rootDirectory, "root", "", "use a different sandbox root directory for this session only")

	root.AddCommand(versionCmd)
	root.AddCommand(configureCmd)
	root.AddCommand(newDiagnosticsCommand())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the current executable version and exits.",
	Run: func(cmd *cobra.Command, _ []string) {
		i := system.GetSystemInformation()
		fmt.Printf("burrow v%s (%s %s, %s)\n", i.Version, i.OS, i.Architecture, i.GoVersion)
	},
}

func rootCmdRun(*cobra.Command, []string) {
	if showVersion {
		fmt.Println(system.Version)
		os.Exit(0)
	}

	if err := config.Load(configPath); err != nil {
		exitWithConfigurationError(err)
	}
	if debug {
		config.SetDebugViaFlag(true)
	}

	// A --root override may be passed as a relative path, resolve it against
	// the invoking directory since the shell only ever deals in absolute paths.
	if rootDirectory != "" {
		p, err := filepath.Abs(rootDirectory)
		if err != nil {
			panic(err)
		}
		config.Update(func(c *config.Configuration) {
			c.System.RootDirectory = p
		})
	}

	c := config.Get()

	printLogo()
	if err := configureLogging(c.System.LogDirectory, c.Debug); err != nil {
		panic(err)
	}

	log.WithField("path", c.GetPath()).Info("loading configuration from path")
	if c.Debug {
		log.Debug("running in debug mode")
	}

	if err := config.ConfigureDirectories(); err != nil {
		log.WithField("error", err).Fatal("failed to configure the internal data directories")
		return
	}

	// Sessions are meaningless without a directory to confine them to, so an
	// unusable root is the one startup failure the shell does not recover from.
	if err := config.EnsureRootDirectory(); err != nil {
		log.WithField("error", err).Fatal("failed to prepare the sandbox root directory")
		return
	}

	hc := c.System.History
	if hc.Enabled {
		if err := database.Initialize(); err != nil {
			log.WithField("error", err).Fatal("failed to initialize the command history database")
			return
		}
		if hc.RetentionDays > 0 {
			if n, err := shell.PruneHistory(time.Duration(hc.RetentionDays) * 24 * time.Hour); err != nil {
				log.WithField("error", err).Warn("failed to prune expired command history")
			} else if n > 0 {
				log.WithField("removed", n).Info("pruned expired command history")
			}
		}
	}

	sess := shell.NewSession(filesystem.New(c.System.RootDirectory), shell.NewConsole(os.Stdout))
	if hc.Enabled {
		sess.AttachHistory(shell.NewHistory(sess.ID()))
	}

	log.WithFields(log.Fields{
		"session": sess.ID(),
		"root":    c.System.RootDirectory,
	}).Info("starting interactive session")

	if err := shell.NewREPL(sess).Run(); err != nil {
		log.WithField("error", err).Fatal("shell session terminated unexpectedly")
	}
}

// Execute calls cobra to handle cli commands
func Execute() error {
	return root.Execute()
}

// Configures the global logger so that output goes both to the terminal and
// to a rotating log file in the configured log directory.
func configureLogging(logDir string, debug bool) error {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return err
	}

	p := filepath.Join(logDir, "burrow.log")
	w, err := logrotate.NewFile(p)
	if err != nil {
		return errors.WithMessage(err, "cmd: failed to open process log file")
	}

	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	log.SetHandler(multi.New(
		cli.Default,
		cli.New(w.File, false),
	))

	log.WithField("path", p).Info("writing log files to disk")

	return nil
}

// Prints the burrow logo, nothing special here!
func printLogo() {
	fmt.Printf(colorstring.Color(`
   [yellow]__[reset]
  [yellow]/ /  __ ____________ ___ _    __[reset]
 [yellow]/ _ \/ // / __/ __/ _ \ |/|/ /[reset]
[yellow]/_.__/\_,_/_/ /_/  \___/__,__/[reset] [bold]v%s[reset]

Copyright © 2026 Burrow Contributors

Source:  https://github.com/burrowsh/burrow

This software is made available under the terms of the MIT license.
The above copyright notice and this permission notice shall be included
in all copies or substantial portions of the Software.%s`), system.Version, "\n\n")
}

func exitWithConfigurationError(err error) {
	fmt.Printf(colorstring.Color(`
[_red_][white][bold]Error: Configuration File Unusable[reset]

Burrow was not able to read its configuration file, and therefore is not
able to complete its boot process. The underlying error was:

  %s

Fix or remove the file, or point --config at a different location. A
missing file is not an error, the shell falls back to its built-in
defaults when no file exists at all.

`), err)
	os.Exit(1)
}
