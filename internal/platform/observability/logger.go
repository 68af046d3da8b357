package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/catalog/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds a JSON logger using Cloud Logging field names. The level
// comes from CATALOG_LOG_LEVEL, then LOG_LEVEL, then info.
func NewLogger() (*zap.Logger, error) {
	raw := os.Getenv("CATALOG_LOG_LEVEL")
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv("LOG_LEVEL")
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(raw)))); err != nil || strings.TrimSpace(raw) == "" {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			NameKey:       "logger",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(strings.ToUpper(l.String()))
			},
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext returns the request logger, annotated with the catalog query id when one is set.
func FromContext(ctx context.Context) *zap.Logger {
	logger := requestctx.Logger(ctx)
	if id := requestctx.QueryID(ctx); id != "" {
		return logger.With(zap.String("query_id", id))
	}
	return logger
}

// RedisLogger adapts zap to go-redis' internal logging hook.
type RedisLogger struct {
	logger *zap.SugaredLogger
}

// NewRedisLogger wraps logger for redis.SetLogger.
func NewRedisLogger(logger *zap.Logger) RedisLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return RedisLogger{logger: logger.Sugar()}
}

// Printf implements the go-redis logging interface.
func (a RedisLogger) Printf(_ context.Context, format string, args ...any) {
	a.logger.Warnf(format, args...)
}
