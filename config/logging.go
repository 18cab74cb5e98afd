/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds a logger from the logging section, writing to stderr.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	return NewLoggerTo(os.Stderr, cfg)
}

// NewLoggerTo builds a logger writing to w. Unknown levels fall back to info.
func NewLoggerTo(w io.Writer, cfg LoggingConfig) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
