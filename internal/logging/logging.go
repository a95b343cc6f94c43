// Package logging builds the process-wide slog logger: level, format and
// destination come from config, and file output rotates through lumberjack.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
	// Output is stdout, file or both.
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "both",
		FilePath:   "bot.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// New builds a logger for cfg. The returned closer releases the log file and
// is safe to call when nothing was opened.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	out, closer, err := writer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(handler(out, cfg)), closer, nil
}

// Init is New plus slog.SetDefault.
func Init(cfg Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handler(out io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.WithCaller,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func writer(cfg Config) (io.Writer, io.Closer, error) {
	output := strings.ToLower(cfg.Output)
	if output != "file" && output != "both" {
		return os.Stdout, nopCloser{}, nil
	}

	path := cfg.FilePath
	if path == "" {
		path = DefaultConfig().FilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if output == "file" {
		return file, file, nil
	}
	return io.MultiWriter(os.Stdout, file), file, nil
}
