package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request identifiers.
	RequestIDKey contextKey = "request_id"

	// WorkerKey is the context key for worker identifiers.
	WorkerKey contextKey = "worker"

	// TierKey is the context key for credential tier names.
	TierKey contextKey = "tier"
)

// WithRequestID adds a request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request identifier from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithWorker adds a worker identifier to the context.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, WorkerKey, worker)
}

// GetWorker retrieves the worker identifier from the context.
func GetWorker(ctx context.Context) string {
	if worker, ok := ctx.Value(WorkerKey).(string); ok {
		return worker
	}
	return ""
}

// WithTier adds a tier name to the context.
func WithTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, TierKey, tier)
}

// GetTier retrieves the tier name from the context.
func GetTier(ctx context.Context) string {
	if tier, ok := ctx.Value(TierKey).(string); ok {
		return tier
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	if worker := GetWorker(ctx); worker != "" {
		fields = append(fields, "worker", worker)
	}

	if tier := GetTier(ctx); tier != "" {
		fields = append(fields, "tier", tier)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.DebugContext(cl.ctx, msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.InfoContext(cl.ctx, msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.WarnContext(cl.ctx, msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.ErrorContext(cl.ctx, msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
