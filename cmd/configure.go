package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/burrowsh/burrow/config"
)

var (
	configureArgs struct {
		RootDirectory string
		DataDirectory string
		RetentionDays int
		Debug         bool
		Override      bool
	}
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Walks through the setup questions and writes the configuration file",

	Run: configureCmdRun,
}

func init() {
	configureCmd.PersistentFlags().StringVarP(&configureArgs.RootDirectory, "root-directory", "r", "", "the directory the shell is confined to")
	configureCmd.PersistentFlags().StringVarP(&configureArgs.DataDirectory, "data-directory", "d", "", "the directory the shell keeps its own state in")
	configureCmd.PersistentFlags().BoolVar(&configureArgs.Override, "override", false, "override an existing configuration")
}

func configureCmdRun(cmd *cobra.Command, args []string) {
	if _, err := os.Stat(configPath); err == nil && !configureArgs.Override {
		survey.AskOne(&survey.Confirm{Message: "Override existing configuration file"}, &configureArgs.Override)
		if !configureArgs.Override {
			fmt.Println("Aborted.")
			os.Exit(1)
		}
	}

	// Start from a configuration with the defaults applied so the prompts can
	// offer them as pre-filled answers.
	c, err := config.NewAtPath(configPath)
	if err != nil {
		panic(err)
	}

	mustBeAbsolute := func(ans interface{}) error {
		if str, ok := ans.(string); ok {
			if !filepath.IsAbs(str) {
				return fmt.Errorf("the directory must be given as an absolute path")
			}
		}
		return nil
	}

	questions := []*survey.Question{}
	if configureArgs.RootDirectory == "" {
		questions = append(questions, &survey.Question{
			Name:     "RootDirectory",
			Prompt:   &survey.Input{Message: "Sandbox root directory: ", Default: c.System.RootDirectory},
			Validate: mustBeAbsolute,
		})
	}
	if configureArgs.DataDirectory == "" {
		questions = append(questions, &survey.Question{
			Name:     "DataDirectory",
			Prompt:   &survey.Input{Message: "Data directory: ", Default: c.System.DataDirectory},
			Validate: mustBeAbsolute,
		})
	}
	questions = append(questions, &survey.Question{
		Name:   "RetentionDays",
		Prompt: &survey.Input{Message: "History retention in days (0 keeps it forever): ", Default: strconv.Itoa(c.System.History.RetentionDays)},
		Validate: func(ans interface{}) error {
			if str, ok := ans.(string); ok {
				if n, err := strconv.Atoi(str); err != nil || n < 0 {
					return fmt.Errorf("the retention needs to be a whole number of days")
				}
			}
			return nil
		},
	})
	questions = append(questions, &survey.Question{
		Name:   "Debug",
		Prompt: &survey.Confirm{Message: "Run the shell in debug mode?", Default: false},
	})

	err = survey.Ask(questions, &configureArgs)
	if err == terminal.InterruptErr {
		return
	}
	if err != nil {
		panic(err)
	}

	c.Debug = configureArgs.Debug
	c.System.RootDirectory = configureArgs.RootDirectory
	c.System.DataDirectory = configureArgs.DataDirectory
	c.System.LogDirectory = filepath.Join(configureArgs.DataDirectory, "logs")
	c.System.History.RetentionDays = configureArgs.RetentionDays

	if err := config.WriteToDisk(c); err != nil {
		panic(err)
	}

	fmt.Println("Successfully configured burrow, the settings apply the next time the shell starts.")
}
