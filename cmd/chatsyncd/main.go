package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/velacare/chatsync/internal/engine"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(home, ".chatsync", "config.toml")
	}

	app := fx.New(
		engine.Module(engine.Params{ConfigPath: configPath}),
	)

	app.Run()
}
