package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"resilientagent/pkg/agent/resilience/failover"
	"resilientagent/pkg/logx"
)

// ErrNotFound is returned by Get when no row has the requested ID.
var ErrNotFound = errors.New("invocation not found")

// maxErrorMessage bounds the stored error text.
const maxErrorMessage = 2000

// Record inserts one invocation. An empty ID is replaced by a new UUID.
func (s *Store) Record(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	msg := truncateUTF8(inv.ErrorMessage, maxErrorMessage)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (
			id, request_id, started_at, duration_ms, primary_model, secondary_model, answered_by,
			primary_attempts, used_secondary, status, error_code, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.RequestID, inv.StartedAt.UTC(), inv.Duration.Milliseconds(), inv.PrimaryModel, inv.SecondaryModel, inv.AnsweredBy,
		inv.PrimaryAttempts, inv.UsedSecondary, inv.Status, inv.ErrorCode, msg,
	)
	if err != nil {
		return fmt.Errorf("failed to record invocation %s: %w", inv.ID, err)
	}
	return nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

const selectColumns = `
	SELECT id, request_id, started_at, duration_ms, primary_model, secondary_model, answered_by,
	       primary_attempts, used_secondary, status, error_code, error_message
	FROM invocations`

// Get returns the invocation with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Invocation, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation %s: %w", id, err)
	}
	return inv, nil
}

// ByRequestID lists every invocation made under requestID, newest first.
// A client that retries with the same request ID gets one row per attempt.
func (s *Store) ByRequestID(ctx context.Context, requestID string) ([]*Invocation, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE request_id = ? ORDER BY started_at DESC, rowid DESC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations for request %s: %w", requestID, err)
	}
	return collectInvocations(rows)
}

// Recent lists up to limit invocations, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	return collectInvocations(rows)
}

func collectInvocations(rows *sql.Rows) ([]*Invocation, error) {
	defer func() { _ = rows.Close() }()

	var out []*Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocations: %w", err)
	}
	return out, nil
}

// CountByStatus summarizes the ledger by outcome status.
func (s *Store) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM invocations GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row rowScanner) (*Invocation, error) {
	var inv Invocation
	var durationMs int64
	if err := row.Scan(
		&inv.ID, &inv.RequestID, &inv.StartedAt, &durationMs, &inv.PrimaryModel, &inv.SecondaryModel, &inv.AnsweredBy,
		&inv.PrimaryAttempts, &inv.UsedSecondary, &inv.Status, &inv.ErrorCode, &inv.ErrorMessage,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}
	inv.Duration = time.Duration(durationMs) * time.Millisecond
	return &inv, nil
}

// Observe implements failover.Observer. It records one row per outcome event
// under a fresh ID, tagged with the request ID on ctx when there is one.
func (s *Store) Observe(ctx context.Context, ev failover.Event) {
	if ev.Kind != failover.EventOutcome {
		return
	}

	inv := &Invocation{
		RequestID:       logx.RequestID(ctx),
		StartedAt:       ev.Started,
		Duration:        ev.Duration,
		PrimaryModel:    ev.Primary,
		SecondaryModel:  ev.Secondary,
		PrimaryAttempts: ev.PrimaryAttempts,
		UsedSecondary:   ev.UsedSecondary,
		Status:          ev.Status,
		ErrorCode:       string(ev.Code),
	}
	if ev.Status == failover.StatusSuccess {
		inv.AnsweredBy = ev.Primary
		if ev.UsedSecondary {
			inv.AnsweredBy = ev.Secondary
		}
	}
	if ev.Err != nil {
		inv.ErrorMessage = ev.Err.Error()
	}

	// The outcome is recorded even when the invocation itself was canceled.
	if err := s.Record(context.WithoutCancel(ctx), inv); err != nil {
		s.logger.Error("Failed to record invocation: %v", err)
	}
}
