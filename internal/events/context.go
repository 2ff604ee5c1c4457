package events

import (
	"context"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	loginKey
	inputIDKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("request_id", id)
	ctx = context.WithValue(ctx, requestIDKey, id)
	return WithLogger(ctx, logger)
}

// WithLogin adds the session login to context.
func WithLogin(ctx context.Context, login string) context.Context {
	logger := FromContext(ctx).WithField("login", login)
	ctx = context.WithValue(ctx, loginKey, login)
	return WithLogger(ctx, logger)
}

// WithInputID adds an input ID to context.
func WithInputID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("input_id", id)
	ctx = context.WithValue(ctx, inputIDKey, id)
	return WithLogger(ctx, logger)
}

// GetRequestID retrieves request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetLogin retrieves the session login from context.
func GetLogin(ctx context.Context) string {
	if login, ok := ctx.Value(loginKey).(string); ok {
		return login
	}
	return ""
}

// GetInputID retrieves input ID from context.
func GetInputID(ctx context.Context) string {
	if id, ok := ctx.Value(inputIDKey).(string); ok {
		return id
	}
	return ""
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewTestLogger(InfoLevel, "text", nil)
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}
