package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with the domain logging helpers used across the service
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a logger writing to w. Level comes from LOG_LEVEL.
func NewWithWriter(w io.Writer) *Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		// text is easier to read while developing
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithEvent scopes the logger to one event
func (l *Logger) WithEvent(eventID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("event_id", eventID))}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
	)
}

// GinMiddleware logs every request after it has been handled
func (l *Logger) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
	}
}

// Waitlist and lottery logging methods

// LogEventCreated logs when an event is created
func (l *Logger) LogEventCreated(ctx context.Context, eventID, organizerID string, capacity int) {
	l.Logger.InfoContext(ctx,
		"Event Created",
		slog.String("event_id", eventID),
		slog.String("organizer_id", organizerID),
		slog.Int("capacity", capacity),
	)
}

// LogAdmission logs the outcome of a join attempt
func (l *Logger) LogAdmission(ctx context.Context, eventID, userID, result string) {
	l.Logger.InfoContext(ctx,
		"Waitlist Admission",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
		slog.String("result", result),
	)
}

// LogStatusChange logs an entrant moving between states outside a draw
func (l *Logger) LogStatusChange(ctx context.Context, eventID, userID, status string) {
	l.Logger.InfoContext(ctx,
		"Entry Status Changed",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
		slog.String("status", status),
	)
}

// LogDraw logs a completed selection round
func (l *Logger) LogDraw(ctx context.Context, eventID, kind string, requested, selected, remaining int, info string) {
	l.Logger.InfoContext(ctx,
		"Lottery Draw",
		slog.String("event_id", eventID),
		slog.String("kind", kind),
		slog.Int("requested", requested),
		slog.Int("selected", selected),
		slog.Int("remaining_capacity", remaining),
		slog.String("info", info),
	)
}

// LogNotificationFailure logs a message that could not be handed to the transport
func (l *Logger) LogNotificationFailure(ctx context.Context, eventID, userID, kind string, err error) {
	l.Logger.WarnContext(ctx,
		"Notification Failed",
		slog.String("event_id", eventID),
		slog.String("user_id", userID),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, key, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("key", key),
		slog.String("endpoint", endpoint),
	)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)+1)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
