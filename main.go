package main

import (
	"fmt"
	"os"

	"github.com/JinchengGao-Infty/Creator-Studio/config"
	"github.com/JinchengGao-Infty/Creator-Studio/logging"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(settings.Debug, settings.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := newRootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
