package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"stockai-router/internal/console"
	"stockai-router/internal/models"
)

const chatUsage = `Usage:
  stockai-router chat [--config <path>] [--provider <name>] [--model <id>] [--system <prompt>] <prompt>

Flags:
  --config     string   Path to YAML configuration file
  --provider   string   Provider to use for this request only
  --model      string   Model identifier (provider default when omitted)
  --system     string   System prompt
  --max-tokens int      Maximum tokens to generate`

func chat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, chatUsage)
	}

	var cfgPath, providerName, model, system string
	var maxTokens int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&providerName, "provider", "", "provider override")
	fs.StringVar(&model, "model", "", "model identifier")
	fs.StringVar(&system, "system", "", "system prompt")
	fs.IntVar(&maxTokens, "max-tokens", 0, "maximum tokens to generate")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse chat flags: %w", err)
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return errors.New("chat command requires a prompt")
	}
	if maxTokens < 0 {
		return fmt.Errorf("max-tokens %d must not be negative", maxTokens)
	}

	rt, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}

	req := models.ChatRequest{
		System:           system,
		User:             prompt,
		Model:            model,
		ProviderOverride: strings.ToLower(providerName),
		RequestLabel:     "cli",
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}

	resp, err := rt.dispatcher().SubmitChat(ctx, req)
	if err != nil {
		return err
	}

	console.PrintChatResult(os.Stdout, resp.Provider, resp.ModelUsed, resp.Content(), resp.Usage.TotalTokens)
	return nil
}
