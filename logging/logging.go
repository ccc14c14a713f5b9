// Package logging owns the process-wide logger. Components fetch it with L()
// instead of threading a logger through every constructor.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger = zap.NewNop().Sugar()
)

// Init configures logging for the process. With debug disabled only warnings
// and errors reach stderr; with debug enabled everything does, and if logFile
// is non-empty a debug-level copy is appended there as well.
func Init(debug bool, logFile string) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.WarnLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	if debug && logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
			return err
		}
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(f),
			zapcore.DebugLevel,
		))
	}

	logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

// L returns the current process logger.
func L() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Sync flushes buffered log entries. Safe to call on exit paths.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
}
