// Package logging provides structured logging with trace ID support for the
// orchestration layer of the monitoring engine (scheduler driver, result
// processor dispatch, notifier, payment dispatcher). The per-probe and
// per-check hot paths use infrastructure/logging/hotpath instead.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	OwnerIDKey ContextKey = "owner_id"
	RegionKey  ContextKey = "region"
)

// Logger wraps logrus.Logger with monitoring-specific helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the given service name.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT, defaulting
// to info/json when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a logger entry carrying trace/owner/region fields
// from ctx, if present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if ownerID := ctx.Value(OwnerIDKey); ownerID != nil {
		entry = entry.WithField("owner_id", ownerID)
	}
	if region := ctx.Value(RegionKey); region != nil {
		entry = entry.WithField("region", region)
	}
	return entry
}

// NewTraceID generates a new trace ID.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithOwnerID adds an owner ID to the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// LogIncidentTransition logs an incident state machine transition.
func (l *Logger) LogIncidentTransition(ctx context.Context, targetID, from, to, reason string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"target_id": targetID,
		"from":      from,
		"to":        to,
		"reason":    reason,
	}).Info("incident state transition")
}

// LogPaymentCredit logs a wallet credit (or its skip for non-eligible checks).
func (l *Logger) LogPaymentCredit(ctx context.Context, proberID, checkID string, amountMin int64, credited bool) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"prober_id": proberID,
		"check_id":  checkID,
		"amount":    amountMin,
		"credited":  credited,
	}).Info("payment dispatcher")
}

// LogNotificationDelivery logs an attempt to deliver a notification.
func (l *Logger) LogNotificationDelivery(ctx context.Context, targetID string, transition string, channel string, attempt int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"target_id":  targetID,
		"transition": transition,
		"channel":    channel,
		"attempt":    attempt,
	})
	if err != nil {
		entry.WithField("error", err.Error()).Warn("notification delivery failed")
		return
	}
	entry.Info("notification delivered")
}

// Default returns a package-level logger for call sites that don't carry
// their own Logger (e.g. package init, CLI bootstrap).
var defaultLogger *Logger

func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewFromEnv("monitor-engine")
	}
	return defaultLogger
}
