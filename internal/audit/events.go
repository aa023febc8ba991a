package audit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind classifies an event.
type Kind string

const (
	KindCreated           Kind = "created"
	KindUnlocked          Kind = "unlocked"
	KindUnlockFailed      Kind = "unlock_failed"
	KindLocked            Kind = "locked"
	KindSaved             Kind = "saved"
	KindPassphraseChanged Kind = "passphrase_changed"
)

// Event is one row of the log.
type Event struct {
	ID     int64
	At     time.Time
	Vault  string
	Kind   Kind
	Detail string
}

// Record appends e. A zero At is stamped with the current time.
func (l *Log) Record(ctx context.Context, e Event) error {
	if l == nil || l.sql == nil {
		return errors.New("audit database handle is nil")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := l.sql.ExecContext(ctx,
		`INSERT INTO events (at, vault, kind, detail) VALUES (?, ?, ?, ?)`,
		e.At.UnixNano(), e.Vault, string(e.Kind), e.Detail,
	)
	if err != nil {
		return errors.Wrap(err, "insert audit event")
	}
	return nil
}

// Failures returns the times of unlock failures for vault at or after since,
// newer than the latest successful unlock.
func (l *Log) Failures(ctx context.Context, vault string, since time.Time) ([]time.Time, error) {
	if l == nil || l.sql == nil {
		return nil, errors.New("audit database handle is nil")
	}
	rows, err := l.sql.QueryContext(ctx, `
		SELECT at FROM events
		WHERE vault = ? AND kind = ? AND at >= ?
		  AND at > COALESCE((SELECT MAX(at) FROM events WHERE vault = ? AND kind = ?), 0)
		ORDER BY at`,
		vault, string(KindUnlockFailed), since.UnixNano(), vault, string(KindUnlocked),
	)
	if err != nil {
		return nil, errors.Wrap(err, "query unlock failures")
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var at int64
		if err := rows.Scan(&at); err != nil {
			return nil, errors.Wrap(err, "scan unlock failure")
		}
		out = append(out, time.Unix(0, at))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate unlock failures")
	}
	return out, nil
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	if l == nil || l.sql == nil {
		return nil, errors.New("audit database handle is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.sql.QueryContext(ctx,
		`SELECT id, at, vault, kind, detail FROM events ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query audit events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			at   int64
			kind string
		)
		if err := rows.Scan(&e.ID, &at, &e.Vault, &kind, &e.Detail); err != nil {
			return nil, errors.Wrap(err, "scan audit event")
		}
		e.At = time.Unix(0, at)
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate audit events")
	}
	return out, nil
}
