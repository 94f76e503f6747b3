package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/msl/internal/config"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeMessageAccepted represents a message that passed the full
	// receive pipeline and was handed to the caller as decrypted bytes.
	EventTypeMessageAccepted EventType = "message_accepted"
	// EventTypeMessageRejected represents a message that failed somewhere
	// in the pipeline with a taxonomized *msl.Error.
	EventTypeMessageRejected EventType = "message_rejected"
	// EventTypeReplayRejected represents a message specifically rejected
	// by the freshness/replay acceptance window (spec.md §4.5), broken out
	// from the general rejection case since it is the event an operator
	// most wants to alert on.
	EventTypeReplayRejected EventType = "replay_rejected"
	// EventTypeKeyRotation represents a key manager wrapping-key rotation.
	EventTypeKeyRotation EventType = "key_rotation"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"event_type"`
	Operation  string                 `json:"operation"`
	MessageID  int64                  `json:"message_id,omitempty"`
	Identity   string                 `json:"identity,omitempty"`
	ErrorKind  string                 `json:"error_kind,omitempty"`
	Algorithm  string                 `json:"algorithm,omitempty"`
	KeyVersion int                    `json:"key_version,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Duration   time.Duration          `json:"duration_ms"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogMessageAccepted logs a message that cleared the full pipeline.
	LogMessageAccepted(messageID int64, identity, algorithm string, keyVersion int, duration time.Duration, metadata map[string]interface{})

	// LogMessageRejected logs a message rejected by any taxonomy error kind.
	LogMessageRejected(messageID int64, identity, errorKind string, err error, duration time.Duration, metadata map[string]interface{})

	// LogReplayRejected logs a message rejected specifically by the
	// freshness/replay acceptance window.
	LogReplayRejected(messageID int64, identity string, duration time.Duration)

	// LogKeyRotation logs a key manager wrapping-key rotation.
	LogKeyRotation(keyVersion int, success bool, err error)

	// GetEvents returns all audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu         sync.Mutex
	events     []*AuditEvent
	maxEvents  int
	writer     EventWriter
	redactKeys []string
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction creates a new audit logger with redaction keys.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactKeys []string) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:     make([]*AuditEvent, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
	}
}

// NewLoggerFromConfig creates a new audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter

	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &defaultWriter{}
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
	}

	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, cfg.Sink.BatchSize, cfg.Sink.FlushInterval, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	}

	return NewLoggerWithRedaction(cfg.MaxEvents, writer, cfg.RedactMetadataKeys), nil
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata removes sensitive keys from metadata.
func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}

	needsRedaction := false
	for _, k := range l.redactKeys {
		if _, ok := metadata[k]; ok {
			needsRedaction = true
			break
		}
	}
	if !needsRedaction {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	for _, key := range l.redactKeys {
		if _, ok := clone[key]; ok {
			clone[key] = "[REDACTED]"
		}
	}
	return clone
}

// LogMessageAccepted logs a message that cleared the full receive pipeline.
func (l *auditLogger) LogMessageAccepted(messageID int64, identity, algorithm string, keyVersion int, duration time.Duration, metadata map[string]interface{}) {
	l.Log(&AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeMessageAccepted,
		Operation:  "receive",
		MessageID:  messageID,
		Identity:   identity,
		Algorithm:  algorithm,
		KeyVersion: keyVersion,
		Success:    true,
		Duration:   duration,
		Metadata:   l.redactMetadata(metadata),
	})
}

// LogMessageRejected logs a message rejected anywhere in the pipeline.
func (l *auditLogger) LogMessageRejected(messageID int64, identity, errorKind string, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeMessageRejected,
		Operation: "receive",
		MessageID: messageID,
		Identity:  identity,
		ErrorKind: errorKind,
		Success:   false,
		Duration:  duration,
		Metadata:  l.redactMetadata(metadata),
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogReplayRejected logs a message rejected by the freshness/replay
// acceptance window, broken out from LogMessageRejected's generic taxonomy
// handling since replay rejections are the signal operators most want to
// alert on.
func (l *auditLogger) LogReplayRejected(messageID int64, identity string, duration time.Duration) {
	l.Log(&AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeReplayRejected,
		Operation: "receive",
		MessageID: messageID,
		Identity:  identity,
		ErrorKind: "MESSAGE_REPLAYED",
		Success:   false,
		Duration:  duration,
	})
}

// LogKeyRotation logs a key manager wrapping-key rotation.
func (l *auditLogger) LogKeyRotation(keyVersion int, success bool, err error) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeKeyRotation,
		Operation:  "key_rotation",
		KeyVersion: keyVersion,
		Success:    success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}
