package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogMaxSizeMB = 100
	logMaxBackups       = 5
)

// Setup installs the JSON logger of a portfolium service as the slog and
// standard library default. Output goes to stdout and, when LOG_FILE is set,
// to a rotated file as well. LOG_LEVEL selects the minimum level.
func Setup(service, env string) *slog.Logger {
	return SetupWriter(service, env, output(os.Getenv))
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(service, env string, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(os.Getenv("LOG_LEVEL")),
		ReplaceAttr: replaceAttr,
	})
	fields := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		fields = append(fields, slog.String("env", env))
	}
	scoped := handler.WithAttrs(fields)

	logger := slog.New(scoped)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(scoped, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
	return logger
}

// replaceAttr renames the built-in keys to the names log shipping expects
// and masks secrets.
func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return redactAttr(attr)
}

func output(getenv func(string) string) io.Writer {
	path := strings.TrimSpace(getenv("LOG_FILE"))
	if path == "" {
		return os.Stdout
	}
	size := defaultLogMaxSizeMB
	if parsed, err := strconv.Atoi(strings.TrimSpace(getenv("LOG_MAX_SIZE_MB"))); err == nil && parsed > 0 {
		size = parsed
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size,
		MaxBackups: logMaxBackups,
		Compress:   true,
	})
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
