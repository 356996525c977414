package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/RolandSherwin/rekal/internal/config"
)

// newCLILogger logs to stderr for interactive commands.
func newCLILogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelWarn,
	}))
}

// newHookLogger appends JSON lines to ~/.rekal/rekal.log. Hook processes
// run inside the host tool and must never write to its stdio, so on any
// failure the logger discards instead.
func newHookLogger() *slog.Logger {
	if err := os.MkdirAll(config.Dir(), 0o755); err != nil {
		return discardLogger()
	}
	file, err := os.OpenFile(config.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return discardLogger()
	}
	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
