package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"stockai-router/internal/console"
)

const providersUsage = `Usage:
  stockai-router providers [--config <path>]

Flags:
  --config string   Path to YAML configuration file`

func providers(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, providersUsage)
	}

	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse providers flags: %w", err)
	}

	rt, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}

	console.PrintProviders(os.Stdout, consoleProviders(rt.dispatcher()))
	return nil
}
