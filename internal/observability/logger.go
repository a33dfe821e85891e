// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/webarchiver/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const colorReset = "\x1b[0m"

var colorCodes = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the global logger from cfg, writing console output to
// consoleWriter. Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		logger := build(cfg, consoleWriter)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// InitializeLogger logs to stderr so stdout stays free for command output.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest clears the global logger. Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func build(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg), consoleWriter, level)}
	if cfg.LogFile != "" {
		// Files always get JSON lines.
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			newEncoder(config.LoggerConfig{Format: "json"}),
			zapcore.AddSync(rotating),
			level,
		))
	}

	options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		options = append(options, zap.AddCaller())
	}
	logger := zap.New(zapcore.NewTee(cores...), options...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// levelColors returns a level encoder painting each level with its
// configured color. Unknown color names leave the level plain.
func levelColors(colors config.ColorConfig) zapcore.LevelEncoder {
	names := map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		label := level.CapitalString()
		if code, ok := colorCodes[names[level]]; ok {
			enc.AppendString(code + label + colorReset)
			return
		}
		enc.AppendString(label)
	}
}

// newEncoder returns a colorized console encoder for the "console" format and
// a JSON encoder otherwise.
func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format == "console" {
		ec.EncodeLevel = levelColors(cfg.Colors)
		ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(name + ".")
		}
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

// GetLogger returns the global logger, or a development logger when
// InitializeLogger has not run.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// Sync flushes buffered entries. Errors from syncing a terminal are expected
// and ignored.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !isBenignSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

func isBenignSyncError(err error) bool {
	msg := err.Error()
	for _, s := range []string{"/dev/stdout", "/dev/stderr", "invalid argument", "inappropriate ioctl", "operation not supported"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
