package cmd

import (
	"context"
	"fmt"
	"strings"
)

const usage = `stockai-router routes chat and embedding requests to OpenAI, Gemini or Anthropic.

Usage:
  stockai-router <command> [flags]

Commands:
  serve      Start the HTTP server
  providers  List available providers and their models
  chat       Send a single prompt and print the reply

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "providers":
		return providers(ctx, args[1:])
	case "chat":
		return chat(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
