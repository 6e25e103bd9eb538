package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// Middleware stores logger, enriched with the request id, in the request context.
func Middleware(logger *Logger, requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if requestID != nil {
				if id := requestID(r); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext returns the request logger or one built on slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// StructuredLogger writes the application's recurring events with consistent fields.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)
	sl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd picks the level from the status code.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)
	sl.logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogBudgetConfigured(ctx context.Context, sessionID string, budgetCents int64) {
	fields := NewFields().WithSession(sessionID).WithOperation(OpConfigure)
	fields[FieldBudgetCents] = budgetCents
	sl.logger.InfoContext(ctx, "Budget configured", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogContributionAdded(ctx context.Context, sessionID, id string, amountCents, remainingCents int64) {
	fields := NewFields().
		WithSession(sessionID).
		WithContribution(id, amountCents).
		WithRemaining(remainingCents).
		WithOperation(OpAdd)
	sl.logger.InfoContext(ctx, "Contribution added", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogContributionDeleted(ctx context.Context, sessionID, id string, remainingCents int64) {
	fields := NewFields().
		WithSession(sessionID).
		WithRemaining(remainingCents).
		WithOperation(OpDelete)
	fields[FieldContributionID] = id
	sl.logger.InfoContext(ctx, "Contribution deleted", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogExport(ctx context.Context, sessionID, target string, rows int) {
	fields := NewFields().WithSession(sessionID).WithOperation(OpExport)
	fields[FieldRows] = rows
	fields[FieldExportRef] = target
	sl.logger.InfoContext(ctx, "Contributions exported", fields.ToSlice()...)
}

// LogError logs err with its component and operation.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}
