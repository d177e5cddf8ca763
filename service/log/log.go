package log

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

var defaultLogger *zap.Logger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defaultLogger = logger
}

// SetDefault replaces the process-wide logger (e.g. with a development config)
func SetDefault(logger *zap.Logger) {
	defaultLogger = logger
}

// Logger returns the logger attached to the context, or the default one
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return defaultLogger
}

// With attaches the logger to the context
func With(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Fatal logs the message with the default logger and exits
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
