package main

import (
	"os"

	"github.com/averlane/beatlink-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
