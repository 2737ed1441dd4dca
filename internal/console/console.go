// Package console renders colored terminal output for the CLI.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	warningBadge = color.New(color.FgYellow, color.Bold)
	infoBadge    = color.New(color.FgCyan, color.Bold)
	successText  = color.New(color.FgGreen, color.Bold)
	warningText  = color.New(color.FgYellow)
	mutedText    = color.New(color.FgHiBlack)
	accentText   = color.New(color.FgMagenta, color.Bold)
	neonBlue     = color.New(color.FgHiCyan, color.Bold)
)

// Provider is one row of the provider listing.
type Provider struct {
	Name            string
	DefaultModel    string
	ChatModels      []string
	EmbeddingModels []string
	Current         bool
	Default         bool
}

// PrintBanner prints the startup banner with the served endpoints.
func PrintBanner(w io.Writer, port int, current string) {
	host := "127.0.0.1"
	fmt.Fprintln(w)
	neonBlue.Fprintln(w, "stockai-router ready")
	fmt.Fprint(w, "Listening on ")
	accentText.Fprintf(w, "http://%s:%d\n", host, port)
	fmt.Fprint(w, "Current provider: ")
	if current == "" {
		warningText.Fprintln(w, "none")
	} else {
		successText.Fprintln(w, current)
	}
	fmt.Fprintln(w, "Endpoints:")
	for _, ep := range []string{
		"GET  /health",
		"GET  /metrics",
		"GET  /v1/providers",
		"PUT  /v1/providers/current",
		"POST /v1/chat",
		"POST /v1/embeddings",
	} {
		mutedText.Fprintf(w, "  %s\n", ep)
	}
	fmt.Fprintf(w, "Example:\n  curl http://%s:%d/v1/chat -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}

// PrintProviders lists registered providers, marking the current one.
func PrintProviders(w io.Writer, providers []Provider) {
	if len(providers) == 0 {
		warningBadge.Fprint(w, "[PROVIDERS]")
		fmt.Fprintln(w, " no providers available; set OPENAI_API_KEY, GEMINI_API_KEY or ANTHROPIC_API_KEY")
		return
	}

	for _, p := range providers {
		marker := "  "
		if p.Current {
			marker = "* "
		}
		fmt.Fprint(w, marker)
		accentText.Fprint(w, p.Name)
		mutedText.Fprintf(w, " (default model: %s)", p.DefaultModel)
		if p.Default {
			infoBadge.Fprint(w, " [default]")
		}
		fmt.Fprintln(w)

		fmt.Fprintf(w, "    chat:       %s\n", strings.Join(p.ChatModels, ", "))
		if len(p.EmbeddingModels) == 0 {
			mutedText.Fprintln(w, "    embeddings: not supported")
		} else {
			fmt.Fprintf(w, "    embeddings: %s\n", strings.Join(p.EmbeddingModels, ", "))
		}
	}
}

// PrintProviderUnavailable warns that a provider was skipped at startup.
func PrintProviderUnavailable(w io.Writer, name string, reason error) {
	fmt.Fprint(w, "⚠️  ")
	warningBadge.Fprint(w, "[UNAVAILABLE]")
	fmt.Fprint(w, " ")
	accentText.Fprint(w, name)
	warningText.Fprintf(w, " provider not available: %v\n", reason)
}

// PrintChatResult prints a completion followed by a muted usage line.
func PrintChatResult(w io.Writer, provider, model, content string, totalTokens int) {
	fmt.Fprintln(w, content)
	mutedText.Fprintf(w, "\n[%s/%s] %d tokens\n", provider, model, totalTokens)
}
