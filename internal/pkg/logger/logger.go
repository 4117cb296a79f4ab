// Package logger provides structured JSON logging with PII redaction.
// It is a thin wrapper over zap so call sites stay terse key/value pairs
// while output stays machine-parseable.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu        sync.RWMutex
	sugar     *zap.SugaredLogger
	redactPII = true
)

// Init configures the default logger. level is one of debug, info, warn,
// error (anything else means info). Safe to call more than once; the last
// call wins.
func Init(level string) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"

	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	l, err := cfg.Build(zap.WithCaller(false))
	if err != nil {
		// Config above is static; Build only fails on bad output paths.
		panic(fmt.Sprintf("logger init: %v", err))
	}

	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
}

// SetRedactPII enables or disables phone redaction for the default logger.
func SetRedactPII(r bool) {
	mu.Lock()
	redactPII = r
	mu.Unlock()
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { log(zapcore.DebugLevel, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { log(zapcore.InfoLevel, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { log(zapcore.WarnLevel, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { log(zapcore.ErrorLevel, msg, fields...) }

func log(level zapcore.Level, msg string, fields ...interface{}) {
	mu.RLock()
	s := sugar
	redact := redactPII
	mu.RUnlock()

	if s == nil {
		Init("info")
		mu.RLock()
		s = sugar
		mu.RUnlock()
	}

	if redact {
		fields = redactFields(fields)
	}

	switch level {
	case zapcore.DebugLevel:
		s.Debugw(msg, fields...)
	case zapcore.WarnLevel:
		s.Warnw(msg, fields...)
	case zapcore.ErrorLevel:
		s.Errorw(msg, fields...)
	default:
		s.Infow(msg, fields...)
	}
}

// redactFields walks key/value pairs and masks phone values. Keys whose
// name mentions a phone are always masked; any string value containing an
// embedded E.164 number is masked too.
func redactFields(fields []interface{}) []interface{} {
	out := make([]interface{}, len(fields))
	copy(out, fields)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		val, ok := out[i+1].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(key)
		if strings.Contains(lower, "phone") || strings.Contains(lower, "from") || strings.Contains(lower, "recipient") {
			out[i+1] = RedactPhone(val)
			continue
		}
		out[i+1] = phoneRegex.ReplaceAllStringFunc(val, RedactPhone)
	}
	return out
}
