package main

import (
	"os"

	"github.com/burrowsh/burrow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
