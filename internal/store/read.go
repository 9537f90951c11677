package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/clubkeeper/quarterbook/internal/session"
)

// eventIDPrefix namespaces server event ids so a stray rowid can never be
// confused with a client token.
const eventIDPrefix = "evt-"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// formatEventID renders a rowid as a wire event id.
func formatEventID(rowID int64) string {
	return fmt.Sprintf("%s%d", eventIDPrefix, rowID)
}

// parseEventID extracts the rowid from a wire event id.
func parseEventID(id string) (int64, error) {
	raw, ok := strings.CutPrefix(id, eventIDPrefix)
	if !ok {
		return 0, fmt.Errorf("malformed event id %q", id)
	}
	rowID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed event id %q", id)
	}
	return rowID, nil
}

// quarterEvents reads a quarter's surviving events in ledger order
// (minute ascending, insertion order on equal minutes). quarter 0 reads
// the whole match.
func quarterEvents(ctx context.Context, q querier, matchID string, quarter int) ([]session.PersistedEvent, error) {
	query := `
		SELECT id, quarter_number, team_id, user_id, event_type, event_subtype,
		       minute, assist_user_id, notes, client_token
		FROM events
		WHERE match_id = ? AND deleted = 0
	`
	args := []any{matchID}
	if quarter > 0 {
		query += ` AND quarter_number = ?`
		args = append(args, quarter)
	}
	query += ` ORDER BY quarter_number ASC, minute ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []session.PersistedEvent
	for rows.Next() {
		var rowID int64
		var pe session.PersistedEvent
		var assist sql.NullString
		if err := rows.Scan(&rowID, &pe.QuarterNumber, &pe.TeamID, &pe.UserID,
			&pe.EventType, &pe.EventSubtype, &pe.Minute, &assist, &pe.Notes, &pe.ClientToken); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		pe.ID = formatEventID(rowID)
		if assist.Valid {
			pe.AssistUserID = &assist.String
		}
		events = append(events, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if events == nil {
		events = []session.PersistedEvent{}
	}
	return events, nil
}
