package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/daemon"
	"github.com/matheus3301/parley/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address, host:port or unix:///path (overrides config)")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfgPath := instance.ConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	if wrote, err := config.EnsureTokenSecret(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	} else if wrote {
		fmt.Fprintf(os.Stderr, "generated token secret in %s\n", cfgPath)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Instance: name, Config: cfg, ListenAddr: *listenFlag}),
	)

	app.Run()
}
