package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/acobaugh/osrelease"
	"github.com/apex/log"
	"github.com/karrick/godirwalk"
	"github.com/spf13/cobra"

	"github.com/burrowsh/burrow/config"
	"github.com/burrowsh/burrow/loggers/cli"
	"github.com/burrowsh/burrow/shell/filesystem"
	"github.com/burrowsh/burrow/system"
)

const DefaultLogLines = 200

var diagnosticsArgs struct {
	IncludePaths bool
	IncludeLogs  bool
	LogLines     int
}

func newDiagnosticsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "diagnostics",
		Short: "Collect and report information about this burrow installation to assist in debugging.",
		PreRun: func(cmd *cobra.Command, args []string) {
			if err := config.Load(configPath); err != nil {
				exitWithConfigurationError(err)
			}
			log.SetHandler(cli.Default)
		},
		Run: diagnosticsCmdRun,
	}

	command.Flags().IntVar(&diagnosticsArgs.LogLines, "log-lines", DefaultLogLines, "the number of log lines to include in the report")

	return command
}

// diagnosticsCmdRun collects diagnostics about the shell, its configuration
// and the host. We collect:
// - burrow and Go runtime versions
// - the host operating system
// - relevant parts of the configuration
// - sandbox usage (entry count, total size)
// - logs
func diagnosticsCmdRun(cmd *cobra.Command, args []string) {
	questions := []*survey.Question{
		{
			Name:   "IncludePaths",
			Prompt: &survey.Confirm{Message: "Do you want to include the configured paths (i.e. the location of your sandbox)?", Default: false},
		},
		{
			Name:   "IncludeLogs",
			Prompt: &survey.Confirm{Message: "Do you want to include the latest logs?", Default: true},
		},
	}
	if err := survey.Ask(questions, &diagnosticsArgs); err != nil {
		if err == terminal.InterruptErr {
			return
		}
		panic(err)
	}

	cfg := config.Get()

	output := &strings.Builder{}
	fmt.Fprintln(output, "Burrow - Diagnostics Report")
	printHeader(output, "Versions")
	i := system.GetSystemInformation()
	fmt.Fprintln(output, "              Burrow:", i.Version)
	fmt.Fprintln(output, "                  Go:", i.GoVersion)
	if release, err := osrelease.Read(); err == nil && release["PRETTY_NAME"] != "" {
		fmt.Fprintln(output, "                  OS:", release["PRETTY_NAME"])
	} else {
		fmt.Fprintln(output, "                  OS:", i.OS, "("+i.Architecture+")")
	}

	printHeader(output, "Burrow Configuration")
	fmt.Fprintln(output, "  Configuration File:", redact(cfg.GetPath()))
	fmt.Fprintln(output, "       Terminal Name:", cfg.TerminalName)
	fmt.Fprintln(output, "          Debug Mode:", cfg.Debug)
	fmt.Fprintln(output, "")
	fmt.Fprintln(output, "      Root Directory:", redact(cfg.System.RootDirectory))
	fmt.Fprintln(output, "      Data Directory:", redact(cfg.System.DataDirectory))
	fmt.Fprintln(output, "      Logs Directory:", redact(cfg.System.LogDirectory))
	fmt.Fprintln(output, "")
	fmt.Fprintln(output, "     History Enabled:", cfg.System.History.Enabled)
	fmt.Fprintln(output, "   History Retention:", cfg.System.History.RetentionDays, "days")
	fmt.Fprintln(output, "   Compression Level:", cfg.System.Archives.CompressionLevel)
	fmt.Fprintln(output, "         System Time:", time.Now().Format(time.RFC1123Z))

	printHeader(output, "Sandbox")
	if st, err := os.Stat(cfg.System.RootDirectory); err != nil {
		fmt.Fprintln(output, "The sandbox root does not exist yet, it is created the first time the shell runs.")
	} else if !st.IsDir() {
		fmt.Fprintln(output, "The configured sandbox root exists but is not a directory.")
	} else {
		var entries int
		_ = godirwalk.Walk(cfg.System.RootDirectory, &godirwalk.Options{
			Unsorted: true,
			Callback: func(p string, _ *godirwalk.Dirent) error {
				if p != cfg.System.RootDirectory {
					entries++
				}
				return nil
			},
		})
		fmt.Fprintln(output, "         Entry Count:", entries)
		if size, err := filesystem.New(cfg.System.RootDirectory).DiskUsage(); err == nil {
			fmt.Fprintln(output, "          Total Size:", system.FormatBytes(size))
		}
	}

	printHeader(output, "Latest Logs")
	if diagnosticsArgs.IncludeLogs {
		p := filepath.Join(cfg.System.LogDirectory, "burrow.log")
		if c, err := exec.Command("tail", "-n", strconv.Itoa(diagnosticsArgs.LogLines), p).Output(); err != nil {
			fmt.Fprintln(output, "No logs found or an error occurred.")
		} else {
			fmt.Fprintf(output, "%s\n", string(c))
		}
	} else {
		fmt.Fprintln(output, "Logs redacted.")
	}

	fmt.Println("\n---------------  generated report  ---------------")
	fmt.Println(output.String())
	fmt.Print("---------------   end of report    ---------------\n\n")
}

func redact(s string) string {
	if !diagnosticsArgs.IncludePaths {
		return "{redacted}"
	}
	return s
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, "\n|\n|", title)
	fmt.Fprintln(w, "| ------------------------------")
}
