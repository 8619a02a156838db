package logger

import (
	"fmt"
	"os"
	"sync"

	"finman/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process-wide logger from cfg. Calling it again replaces
// the previous logger; children obtained earlier keep writing to the old one.
func Init(cfg config.LoggerConfig) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// Get returns the process-wide logger, building one from LOG_LEVEL and
// LOG_FORMAT if Init has not run yet.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		var err error
		global, err = build(config.LoggerConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		})
		if err != nil {
			global = zap.NewNop()
		}
	}
	return global
}

// SetLevel changes the level of every logger derived from Get at runtime.
func SetLevel(text string) error {
	lvl, err := zapcore.ParseLevel(text)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", text, err)
	}
	level.SetLevel(lvl)
	return nil
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func Sync() {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) *zap.Logger {
	return Get().With(zap.String("component", name))
}

func build(cfg config.LoggerConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)

	zc, err := encoderPreset(cfg.Format)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.MessageKey = "message"
	zc.EncoderConfig.LevelKey = "level"
	zc.EncoderConfig.CallerKey = "caller"

	return zc.Build(zap.Fields(zap.String("service", "finman")))
}

// encoderPreset picks JSON output for production and a colored console
// encoder for running the bot locally.
func encoderPreset(format string) (zap.Config, error) {
	switch format {
	case "", "json":
		return zap.NewProductionConfig(), nil
	case "console":
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zc, nil
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", format)
	}
}
