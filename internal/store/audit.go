// ABOUTME: Audit log of authorization decisions on protected routes
// ABOUTME: Records which route was accessed, how, by which user label and the outcome

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Outcome is the result of an authorization decision.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeFailed   Outcome = "failed"
)

// AuthEvent is a single audit log entry.
type AuthEvent struct {
	ID         string    // UUID v4
	Route      string    // route the request targeted
	Scheme     string    // "form", "cookie", "bearer", "basic" or "" when none was supplied
	User       string    // sanitized user label, may be empty
	Outcome    Outcome   // verified or failed
	ErrorKind  string    // failure kind, empty when verified
	Message    string    // failure message, empty when verified
	RemoteAddr string    // client address as seen by the server
	Timestamp  time.Time // when it happened
}

// AuthEventFilter specifies filtering options for listing audit entries.
type AuthEventFilter struct {
	Since   *time.Time // entries after this time
	Route   *string    // filter by route
	Outcome *Outcome   // filter by outcome
	Limit   int        // max results (default 100, max 1000)
}

// AuditStore records and lists authorization events.
type AuditStore interface {
	AppendAuthEvent(ctx context.Context, e *AuthEvent) error
	ListAuthEvents(ctx context.Context, f AuthEventFilter) ([]AuthEvent, error)
}

// AppendAuthEvent appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuthEvent(ctx context.Context, e *AuthEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if e.Outcome != OutcomeVerified && e.Outcome != OutcomeFailed {
		return fmt.Errorf("invalid outcome %q", e.Outcome)
	}

	query := `
		INSERT INTO auth_events (event_id, route, scheme, user_label, outcome, error_kind, message, remote_addr, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Route,
		e.Scheme,
		e.User,
		string(e.Outcome),
		e.ErrorKind,
		e.Message,
		e.RemoteAddr,
		e.Timestamp.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting auth event: %w", err)
	}

	s.logger.Debug("appended auth event",
		"id", e.ID,
		"route", e.Route,
		"outcome", e.Outcome,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// scanAuthEvent scans a row into an AuthEvent.
func scanAuthEvent(scanner interface{ Scan(dest ...any) error }) (AuthEvent, error) {
	var e AuthEvent
	var outcome, tsStr string

	if err := scanner.Scan(
		&e.ID,
		&e.Route,
		&e.Scheme,
		&e.User,
		&outcome,
		&e.ErrorKind,
		&e.Message,
		&e.RemoteAddr,
		&tsStr,
	); err != nil {
		return e, fmt.Errorf("scanning auth event: %w", err)
	}

	e.Outcome = Outcome(outcome)
	var err error
	e.Timestamp, err = time.Parse(tsLayout, tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}
	return e, nil
}

const authEventsQuery = `
	SELECT event_id, route, scheme, user_label, outcome, error_kind, message, remote_addr, ts
	FROM auth_events
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR route = ?)
	  AND (? IS NULL OR outcome = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListAuthEvents returns audit entries matching the filter criteria.
// Results are returned newest first (DESC by timestamp).
func (s *SQLiteStore) ListAuthEvents(ctx context.Context, f AuthEventFilter) ([]AuthEvent, error) {
	limit := normalizeAuditLimit(f.Limit)

	var sinceStr, outcomeStr *string
	if f.Since != nil {
		v := f.Since.UTC().Format(tsLayout)
		sinceStr = &v
	}
	if f.Outcome != nil {
		v := string(*f.Outcome)
		outcomeStr = &v
	}

	rows, err := s.db.QueryContext(ctx, authEventsQuery,
		sinceStr, sinceStr,
		f.Route, f.Route,
		outcomeStr, outcomeStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying auth events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []AuthEvent
	for rows.Next() {
		e, err := scanAuthEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating auth events: %w", err)
	}

	if events == nil {
		events = []AuthEvent{}
	}
	return events, nil
}
