package util

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Severity is the importance of an audit message
type Severity int

// Audit severities, mapped onto zap levels when written
const (
	DEBUG Severity = iota
	INFO
	NOTICE
	WARNING
	ERROR
	CRITICAL
)

func (s Severity) String() string {
	switch s {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case NOTICE:
		return "NOTICE"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

func (s Severity) level() zapcore.Level {
	switch s {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO, NOTICE:
		return zapcore.InfoLevel
	case WARNING:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}

// LogContext is implemented by anything that carries logging identity
type LogContext interface {
	AppName() string
	SessionID() string
	LogRootDir() string
}

// BasicLogContext is the default LogContext for code that has no session of its own
type BasicLogContext struct {
	sessionID string
}

// AppName returns the application name
func (c *BasicLogContext) AppName() string {
	return "espa-worker"
}

// SessionID returns a Session ID, creating one if needed
func (c *BasicLogContext) SessionID() string {
	if c.sessionID == "" {
		c.sessionID, _ = PsuUUID()
	}
	return c.sessionID
}

// LogRootDir returns an empty string
func (c *BasicLogContext) LogRootDir() string {
	return ""
}

// LogAuditInput describes a single auditable action
type LogAuditInput struct {
	Actor    string
	Action   string
	Actee    string
	Message  string
	Severity Severity
}

var (
	loggerMu   sync.RWMutex
	rootLogger = zap.NewNop()
)

// SetLogger replaces the logger behind the Log* functions
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loggerMu.Lock()
	rootLogger = logger
	loggerMu.Unlock()
}

// Logger returns the logger behind the Log* functions
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return rootLogger
}

func contextLogger(ctx LogContext) *zap.Logger {
	logger := Logger()
	if ctx == nil {
		return logger
	}
	return logger.With(zap.String("app", ctx.AppName()), zap.String("session", ctx.SessionID()))
}

// LogInfo writes an informational message
func LogInfo(ctx LogContext, message string) {
	contextLogger(ctx).Info(message)
}

// LogAlert writes a message that somebody should look at
func LogAlert(ctx LogContext, message string) {
	contextLogger(ctx).Warn(message)
}

// LogSimpleErr writes a message together with the error that caused it
func LogSimpleErr(ctx LogContext, message string, err error) {
	contextLogger(ctx).Error(message, zap.Error(err))
}

// LogAudit records who did what to whom
func LogAudit(ctx LogContext, input LogAuditInput) {
	logger := contextLogger(ctx)
	if ce := logger.Check(input.Severity.level(), input.Message); ce != nil {
		ce.Write(
			zap.String("actor", input.Actor),
			zap.String("action", input.Action),
			zap.String("actee", input.Actee),
			zap.Stringer("severity", input.Severity),
		)
	}
}

// PsuUUID returns a new random UUID string
func PsuUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
