package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "notify-relay"

type requestIDKey struct{}

// NewLogger builds the relay's JSON logger on stderr. Sampling is off so that
// every finalize line is kept.
func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeDuration = zapcore.StringDurationEncoder

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(parsed),
		Encoding:          "json",
		EncoderConfig:     encoder,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		InitialFields:     map[string]any{"service": serviceName},
	}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		return zapcore.InfoLevel, nil
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// WithRequestID stores the inbound X-Request-ID for request-scoped logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	requestID, ok := ctx.Value(requestIDKey{}).(string)
	return requestID, ok && requestID != ""
}

// ForRequest adds the request ID carried by ctx, if any.
func ForRequest(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	if requestID, ok := RequestIDFromContext(ctx); ok {
		return logger.With(zap.String("requestId", requestID))
	}
	return logger
}

// ForComponent tags every entry with the component name.
func ForComponent(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(component).With(zap.String("component", component))
}

// ForNotification scopes a logger to one queue record.
func ForNotification(logger *zap.Logger, notificationID, kind string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(
		zap.String("notificationId", notificationID),
		zap.String("kind", kind),
	)
}
