package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"safereport/internal/audit/metrics"
	id "safereport/pkg/domain"
	dErrors "safereport/pkg/domain-errors"
	"safereport/pkg/requestcontext"
)

// Store persists audit entries. Append must honour a transaction carried in
// ctx so the entry commits or rolls back with the mutation it describes.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter, limit int) ([]*Entry, error)
}

// Logger writes audit entries synchronously with fail-closed semantics: if
// the write fails the error is returned and the calling mutation must fail.
type Logger struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type LoggerOption func(*Logger)

func WithLogger(logger *slog.Logger) LoggerOption {
	return func(l *Logger) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) LoggerOption {
	return func(l *Logger) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) LoggerOption {
	return func(l *Logger) {
		l.now = now
	}
}

func NewLogger(store Store, opts ...LoggerOption) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LogDataAccess appends one entry stamped with the server clock. The action
// is taken from the metadata's type.
func (l *Logger) LogDataAccess(ctx context.Context, incidentID *id.IncidentID, userID id.UserID, metadata Metadata) error {
	return l.LogDataAccessWithAdditional(ctx, incidentID, userID, metadata, nil)
}

// LogDataAccessWithAdditional is LogDataAccess with unstructured key/value
// context that does not fit the typed metadata.
func (l *Logger) LogDataAccessWithAdditional(ctx context.Context, incidentID *id.IncidentID, userID id.UserID, metadata Metadata, additional map[string]string) error {
	start := time.Now()
	if metadata == nil {
		return dErrors.New(dErrors.CodeInternal, "audit metadata is required")
	}
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeInternal, "audit entry requires a user")
	}
	entry := &Entry{
		ID:         id.AuditEntryID(uuid.New()),
		IncidentID: incidentID,
		UserID:     userID,
		Action:     metadata.Action(),
		Timestamp:  l.now().UTC(),
		Metadata:   metadata,
		Additional: additional,
		Request:    requestInfo(ctx),
	}

	if err := l.store.Append(ctx, entry); err != nil {
		l.metrics.IncPersistFailures()
		if l.logger != nil {
			l.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
				"action", string(entry.Action),
				"user_id", userID.String(),
				"request_id", entry.Request.RequestID,
				"error", err,
			)
		}
		return dErrors.Wrap(fmt.Errorf("audit persistence failed: %w", err), dErrors.CodeInternal, "audit log unavailable")
	}

	l.metrics.ObservePersistDuration(time.Since(start))
	l.metrics.IncPersisted(string(entry.Action))
	return nil
}

func requestInfo(ctx context.Context) RequestInfo {
	return RequestInfo{
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: SummarizeUserAgent(requestcontext.UserAgent(ctx)),
	}
}

// SummarizeUserAgent reduces a raw User-Agent header to "browser version
// (os)" plus a mobile or bot marker, which is what reviewers need.
func SummarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return strings.TrimSpace("bot " + name)
	}
	name, version := ua.Browser()
	summary := strings.TrimSpace(name + " " + version)
	if osName := ua.OS(); osName != "" {
		summary += " (" + osName + ")"
	}
	if ua.Mobile() {
		summary += " mobile"
	}
	if summary == "" {
		return "unknown"
	}
	return summary
}
