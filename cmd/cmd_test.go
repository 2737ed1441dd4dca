package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"stockai-router/internal/config"
)

func TestExecute_ArgumentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown command", args: []string{"deploy"}, wantErr: `unknown command "deploy"`},
		{name: "chat without prompt", args: []string{"chat", "--provider", "openai"}, wantErr: "requires a prompt"},
		{name: "chat negative max tokens", args: []string{"chat", "--max-tokens", "-1", "hi"}, wantErr: "must not be negative"},
		{name: "serve bad port", args: []string{"serve", "--port", "70000"}, wantErr: "valid TCP port"},
		{name: "serve unknown flag", args: []string{"serve", "--verbose"}, wantErr: "parse serve flags"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Execute(context.Background(), tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute(%v) error = %v, want containing %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("dropped")
	logger.Warn("kept", "provider", "gemini")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"provider":"gemini"`) {
		t.Errorf("output = %s, want JSON warn record", out)
	}

	buf.Reset()
	newLogger(&buf, config.LoggingConfig{Level: "info", Format: "text"}).Info("plain")
	if !strings.Contains(buf.String(), "msg=plain") {
		t.Errorf("text output = %s", buf.String())
	}
}
