package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// Session describes one recorded session.
type Session struct {
	ID     string
	Label  string
	Events int
}

// Sessions lists all sessions in the journal, ordered by id. UUIDv7 ids
// sort by creation time.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, s.label, COUNT(e.seq)
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id
		GROUP BY s.id, s.label
		ORDER BY s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Label, &s.Events); err != nil {
			return nil, fmt.Errorf("read sessions: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return out, nil
}

// Models returns the ids of every model recorded in session, ordered by
// first appearance.
func (j *Journal) Models(ctx context.Context, session string) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT model_id
		FROM events
		WHERE session_id = ?
		GROUP BY model_id
		ORDER BY MIN(seq) ASC
	`, j.sessionOrDefault(session))
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("read models: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	return ids, nil
}

// Events returns the events of modelID in session in seq order. An empty
// modelID returns every event of the session. An empty session means the
// journal's own session.
func (j *Journal) Events(ctx context.Context, session, modelID string) ([]Event, error) {
	session = j.sessionOrDefault(session)

	var (
		rows *sql.Rows
		err  error
	)
	if modelID == "" {
		rows, err = j.db.QueryContext(ctx, `
			SELECT session_id, seq, model_id, kind, payload, fingerprint
			FROM events
			WHERE session_id = ?
			ORDER BY seq ASC
		`, session)
	} else {
		rows, err = j.db.QueryContext(ctx, `
			SELECT session_id, seq, model_id, kind, payload, fingerprint
			FROM events
			WHERE session_id = ? AND model_id = ?
			ORDER BY seq ASC
		`, session, modelID)
	}
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev   Event
			kind string
		)
		if err := rows.Scan(&ev.Session, &ev.Seq, &ev.ModelID, &kind, &ev.Payload, &ev.Fingerprint); err != nil {
			return nil, fmt.Errorf("read events: scan: %w", err)
		}
		ev.Kind = Kind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

func (j *Journal) sessionOrDefault(session string) string {
	if session == "" {
		return j.session
	}
	return session
}
