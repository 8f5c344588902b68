package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu          sync.RWMutex
	level       = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	disableLogs = false
	stdout      zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	stderr      zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	sugar       = build()
)

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.CallerKey = zapcore.OmitKey
	return cfg
}

// build creates the logger: errors go to stderr, everything else to stdout.
func build() *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(encoderConfig())

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l < zapcore.ErrorLevel && level.Enabled(l)
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && level.Enabled(l)
	})

	core := zapcore.NewTee(
		zapcore.NewCore(enc, stdout, low),
		zapcore.NewCore(enc, stderr, high),
	)
	return zap.New(core).Sugar()
}

// SetVerbose sets the logging verbosity. If true, debug messages are displayed.
func SetVerbose(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// IsVerbose returns true if verbose logging is enabled.
func IsVerbose() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// DisableLogs disables all logging.
func DisableLogs() {
	mu.Lock()
	disableLogs = true
	mu.Unlock()
}

// IsDisabled returns true if logging is disabled.
func IsDisabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return disableLogs
}

// SetOutputs redirects regular and error output. Nil keeps the current stream.
func SetOutputs(out, errOut zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
	sugar = build()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = logger().Sync()
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if disableLogs {
		return zap.NewNop().Sugar()
	}
	return sugar
}

// Debugf logs a debug message if verbose is true.
func Debugf(format string, args ...interface{}) {
	logger().Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	logger().Infof(format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	logger().Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	logger().Errorf(format, args...)
}

// Fatalf logs an error message and exits the program.
func Fatalf(format string, args ...interface{}) {
	l := logger()
	l.Errorf(format, args...)
	_ = l.Sync()
	if IsDisabled() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(1)
}
