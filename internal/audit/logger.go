// Package audit provides the application logger and the append-only audit
// trail for the analysis agent. Both are zap loggers writing JSON lines to
// rotated files; the audit trail additionally records structured pipeline
// lifecycle events (run started, plan created, tool invoked, ...).
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const correlationIDKey ctxKey = "audit_correlation_id"

// WithCorrelationID returns a context carrying the correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFrom extracts the correlation ID from the context, if any.
func CorrelationIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateCorrelationID returns a fresh correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// App returns the application logger for unstructured diagnostics.
	App() *zap.Logger

	// Sync flushes buffered log entries.
	Sync() error

	// Close flushes and stops the logger.
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	AppLogPath   string
	AuditLogPath string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Compress     bool
	LogLevel     string
}

// DefaultConfig returns the default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AppLogPath:   "logs/app.log",
		AuditLogPath: "logs/audit.log",
		MaxSizeMB:    100,
		MaxBackups:   10,
		MaxAgeDays:   30,
		Compress:     true,
		LogLevel:     "info",
	}
}

type auditLogger struct {
	app   *zap.Logger
	trail *zap.Logger

	mu     sync.Mutex
	buffer []*Event
	ticker *time.Ticker
	stopCh chan struct{}
}

// NewLogger creates a new audit logger writing to rotated JSON files.
func NewLogger(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.AppLogPath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}),
		level,
	)

	// Audit trail is always INFO, append-only.
	trailCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.AuditLogPath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}),
		zapcore.InfoLevel,
	)

	l := &auditLogger{
		app:    zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		trail:  zap.New(trailCore),
		buffer: make([]*Event, 0, 100),
		ticker: time.NewTicker(1 * time.Second),
		stopCh: make(chan struct{}),
	}
	go l.autoFlush()
	return l, nil
}

// Log buffers an audit event; the buffer is flushed every second or when it
// reaches 100 entries, whichever comes first.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = CorrelationIDFrom(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}
	return nil
}

func (l *auditLogger) App() *zap.Logger { return l.app }

func (l *auditLogger) Sync() error {
	l.mu.Lock()
	err := l.flushLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	_ = l.app.Sync()
	return l.trail.Sync()
}

func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.ticker.Stop()
	return l.Sync()
}

func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.ticker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// flushLocked writes buffered events; the caller must hold the lock.
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	for _, event := range l.buffer {
		payload, err := json.Marshal(event)
		if err != nil {
			l.app.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}
		l.trail.Info(string(payload),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}
	l.buffer = l.buffer[:0]
	return nil
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() Logger {
	return &nopLogger{app: zap.NewNop()}
}

type nopLogger struct {
	app *zap.Logger
}

func (n *nopLogger) Log(context.Context, *Event) error { return nil }
func (n *nopLogger) App() *zap.Logger                  { return n.app }
func (n *nopLogger) Sync() error                       { return nil }
func (n *nopLogger) Close() error                      { return nil }
