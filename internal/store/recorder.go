package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/session"
)

// Recorder adapts a Store to the session.Recorder interface.
//
// Server event ids are "evt-<rowid>". The client token arrives with each
// event payload, is stored next to the row, and is echoed back on every
// read, so reconciliation never depends on response ordering. A retried
// append with the same token hits the unique index and is a no-op.
type Recorder struct {
	store *Store
}

// NewRecorder wraps a store as a recording backend.
func NewRecorder(s *Store) *Recorder {
	return &Recorder{store: s}
}

// CreateMatch registers a match and its two teams. Quarter rows are
// created lazily by the first save.
func (r *Recorder) CreateMatch(ctx context.Context, matchID, team1ID, team2ID string) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO matches (id, team1_id, team2_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, matchID, team1ID, team2ID)
	if err != nil {
		return fmt.Errorf("create match %s: %w", matchID, err)
	}
	return nil
}

// AddSelectablePlayer registers an attendee candidate in one of the pools
// (registered, unregistered, virtual, unassigned).
func (r *Recorder) AddSelectablePlayer(ctx context.Context, matchID, teamID, pool, userID, name string) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO selectable_players (match_id, team_id, pool, user_id, name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id, team_id, user_id) DO UPDATE SET pool = excluded.pool, name = excluded.name
	`, matchID, teamID, pool, userID, name)
	if err != nil {
		return fmt.Errorf("add selectable player %s: %w", userID, err)
	}
	return nil
}

// MatchTeams returns the two team ids registered for a match.
func (r *Recorder) MatchTeams(ctx context.Context, matchID string) (team1, team2 string, err error) {
	err = r.store.db.QueryRowContext(ctx, `
		SELECT team1_id, team2_id FROM matches WHERE id = ?
	`, matchID).Scan(&team1, &team2)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("match %s not found", matchID)
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup match %s: %w", matchID, err)
	}
	return team1, team2, nil
}

// SaveQuarter implements session.Recorder.
//
// "append" inserts the request's events without disturbing stored ones.
// "auto" retracts deleteEventIds, recomputes the quarter's goals from the
// stored goal events, and optionally closes the quarter. Both return the
// quarter's surviving events for reconciliation.
func (r *Recorder) SaveQuarter(ctx context.Context, matchID string, req session.SaveQuarterRequest) (session.SaveQuarterResult, error) {
	if req.Mode != session.SaveModeAppend && req.Mode != session.SaveModeAuto {
		return session.SaveQuarterResult{}, fmt.Errorf("save quarter: unknown mode %q", req.Mode)
	}
	if req.QuarterNumber < 1 {
		return session.SaveQuarterResult{}, fmt.Errorf("save quarter: invalid quarter number %d", req.QuarterNumber)
	}
	if err := r.requireMatch(ctx, matchID); err != nil {
		return session.SaveQuarterResult{}, err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return session.SaveQuarterResult{}, fmt.Errorf("save quarter: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	switch req.Mode {
	case session.SaveModeAppend:
		err = r.saveAppend(ctx, tx, matchID, req)
	case session.SaveModeAuto:
		err = r.saveAuto(ctx, tx, matchID, req)
	}
	if err != nil {
		return session.SaveQuarterResult{}, err
	}

	events, err := quarterEvents(ctx, tx, matchID, req.QuarterNumber)
	if err != nil {
		return session.SaveQuarterResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return session.SaveQuarterResult{}, fmt.Errorf("save quarter: commit: %w", err)
	}

	return session.SaveQuarterResult{Events: events}, nil
}

func (r *Recorder) saveAppend(ctx context.Context, tx *sql.Tx, matchID string, req session.SaveQuarterRequest) error {
	for _, e := range req.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events
			(match_id, quarter_number, team_id, user_id, event_type, event_subtype, minute, assist_user_id, notes, client_token)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(match_id, client_token) WHERE client_token != '' DO NOTHING
		`, matchID, req.QuarterNumber, e.TeamID, e.UserID, e.EventType, e.EventSubtype,
			e.Minute, e.AssistUserID, e.Notes, e.ClientToken)
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO quarters (match_id, quarter_number, team1_goals, team2_goals, summary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id, quarter_number) DO UPDATE SET
			team1_goals = excluded.team1_goals,
			team2_goals = excluded.team2_goals,
			summary     = excluded.summary
	`, matchID, req.QuarterNumber, req.Team1Goals, req.Team2Goals, req.Summary)
	if err != nil {
		return fmt.Errorf("upsert quarter: %w", err)
	}
	return nil
}

func (r *Recorder) saveAuto(ctx context.Context, tx *sql.Tx, matchID string, req session.SaveQuarterRequest) error {
	for _, id := range req.DeleteEventIDs {
		rowID, err := parseEventID(id)
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE events SET deleted = 1
			WHERE id = ? AND match_id = ?
		`, rowID, matchID); err != nil {
			return fmt.Errorf("delete event %s: %w", id, err)
		}
	}

	// Scores come from the stored event set, not the request. A blind
	// overwrite would defeat the idempotent-retry behavior auto exists for.
	var team1ID, team2ID string
	err := tx.QueryRowContext(ctx, `
		SELECT team1_id, team2_id FROM matches WHERE id = ?
	`, matchID).Scan(&team1ID, &team2ID)
	if err != nil {
		return fmt.Errorf("read match teams: %w", err)
	}

	countGoals := func(teamID string) (int, error) {
		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM events
			WHERE match_id = ? AND quarter_number = ? AND team_id = ?
			  AND event_type = 'goal' AND deleted = 0
		`, matchID, req.QuarterNumber, teamID).Scan(&n)
		return n, err
	}

	team1Goals, err := countGoals(team1ID)
	if err != nil {
		return fmt.Errorf("recompute goals: %w", err)
	}
	team2Goals, err := countGoals(team2ID)
	if err != nil {
		return fmt.Errorf("recompute goals: %w", err)
	}

	completed := 0
	if req.IsCompleted {
		completed = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarters (match_id, quarter_number, team1_goals, team2_goals, summary, is_completed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, quarter_number) DO UPDATE SET
			team1_goals  = excluded.team1_goals,
			team2_goals  = excluded.team2_goals,
			summary      = excluded.summary,
			is_completed = MAX(quarters.is_completed, excluded.is_completed)
	`, matchID, req.QuarterNumber, team1Goals, team2Goals, req.Summary, completed)
	if err != nil {
		return fmt.Errorf("upsert quarter: %w", err)
	}
	return nil
}

// GetQuarterDetail implements session.Recorder.
func (r *Recorder) GetQuarterDetail(ctx context.Context, matchID string) (session.QuarterDetail, error) {
	if err := r.requireMatch(ctx, matchID); err != nil {
		return session.QuarterDetail{}, err
	}

	var detail session.QuarterDetail

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT quarter_number, team1_goals, team2_goals, summary, is_completed
		FROM quarters
		WHERE match_id = ?
		ORDER BY quarter_number ASC
	`, matchID)
	if err != nil {
		return detail, fmt.Errorf("get quarter detail: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q session.PersistedQuarter
		var completed int
		if err := rows.Scan(&q.QuarterNumber, &q.Team1Goals, &q.Team2Goals, &q.Summary, &completed); err != nil {
			return detail, fmt.Errorf("scan quarter: %w", err)
		}
		q.IsCompleted = completed != 0
		detail.Quarters = append(detail.Quarters, q)
		if q.IsCompleted {
			detail.QuartersCompleted++
		}
	}
	if err := rows.Err(); err != nil {
		return detail, fmt.Errorf("iterate quarters: %w", err)
	}

	detail.Events, err = quarterEvents(ctx, r.store.db, matchID, 0)
	if err != nil {
		return detail, err
	}

	shootout, err := r.readShootout(ctx, matchID)
	if err != nil {
		return detail, err
	}
	detail.PenaltyShootout = shootout

	return detail, nil
}

// SetParticipants implements session.Recorder. The stored lists are
// replaced wholesale - participant saves are idempotent by construction.
func (r *Recorder) SetParticipants(ctx context.Context, matchID string, req session.ParticipantsRequest) error {
	if err := r.requireMatch(ctx, matchID); err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set participants: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("set participants: %w", err)
	}

	insert := func(slot int, userIDs []string) error {
		for _, userID := range userIDs {
			var name string
			err := tx.QueryRowContext(ctx, `
				SELECT name FROM selectable_players WHERE match_id = ? AND user_id = ?
			`, matchID, userID).Scan(&name)
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("set participants: lookup %s: %w", userID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO participants (match_id, team_slot, user_id, name)
				VALUES (?, ?, ?, ?)
			`, matchID, slot, userID, name); err != nil {
				return fmt.Errorf("set participants: insert %s: %w", userID, err)
			}
		}
		return nil
	}
	if err := insert(1, req.Team1); err != nil {
		return err
	}
	if err := insert(2, req.Team2); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set participants: commit: %w", err)
	}
	return nil
}

// GetParticipants implements session.Recorder.
func (r *Recorder) GetParticipants(ctx context.Context, matchID string) (session.ParticipantsResult, error) {
	var result session.ParticipantsResult
	if err := r.requireMatch(ctx, matchID); err != nil {
		return result, err
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT team_slot, user_id, name FROM participants
		WHERE match_id = ?
		ORDER BY team_slot ASC, user_id ASC
	`, matchID)
	if err != nil {
		return result, fmt.Errorf("get participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slot int
		var p session.Participant
		if err := rows.Scan(&slot, &p.UserID, &p.Name); err != nil {
			return result, fmt.Errorf("scan participant: %w", err)
		}
		if slot == 1 {
			result.Team1 = append(result.Team1, p)
		} else {
			result.Team2 = append(result.Team2, p)
		}
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("iterate participants: %w", err)
	}
	return result, nil
}

// SupplementResult implements session.Recorder. Nil fields leave the
// stored values untouched, so an early penalty-only supplement does not
// clear a later MVP save on retry.
func (r *Recorder) SupplementResult(ctx context.Context, matchID string, req session.SupplementRequest) error {
	if err := r.requireMatch(ctx, matchID); err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("supplement result: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO supplements (match_id) VALUES (?)
		ON CONFLICT(match_id) DO NOTHING
	`, matchID); err != nil {
		return fmt.Errorf("supplement result: %w", err)
	}

	if req.MVPUserIDs != nil {
		mvpJSON, err := json.Marshal(req.MVPUserIDs)
		if err != nil {
			return fmt.Errorf("supplement result: marshal mvp: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE supplements SET mvp_user_ids = ? WHERE match_id = ?
		`, string(mvpJSON), matchID); err != nil {
			return fmt.Errorf("supplement result: %w", err)
		}
	}

	if req.Summary != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE supplements SET summary = ? WHERE match_id = ?
		`, *req.Summary, matchID); err != nil {
			return fmt.Errorf("supplement result: %w", err)
		}
	}

	if req.PenaltyShootout != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE supplements SET
				team1_penalty_score = ?,
				team2_penalty_score = ?,
				penalty_winner_team_id = ?
			WHERE match_id = ?
		`, req.PenaltyShootout.Team1PenaltyScore,
			req.PenaltyShootout.Team2PenaltyScore,
			req.PenaltyShootout.PenaltyWinnerTeamID,
			matchID); err != nil {
			return fmt.Errorf("supplement result: %w", err)
		}
	}

	if req.PhotoRefs != nil {
		photoJSON, err := json.Marshal(req.PhotoRefs)
		if err != nil {
			return fmt.Errorf("supplement result: marshal photos: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE supplements SET photo_refs = ? WHERE match_id = ?
		`, string(photoJSON), matchID); err != nil {
			return fmt.Errorf("supplement result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("supplement result: commit: %w", err)
	}
	return nil
}

// GetSelectablePlayers implements session.Recorder.
func (r *Recorder) GetSelectablePlayers(ctx context.Context, matchID, teamID string) (session.SelectablePlayers, error) {
	var result session.SelectablePlayers
	if err := r.requireMatch(ctx, matchID); err != nil {
		return result, err
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT pool, user_id, name FROM selectable_players
		WHERE match_id = ? AND team_id = ?
		ORDER BY user_id ASC
	`, matchID, teamID)
	if err != nil {
		return result, fmt.Errorf("get selectable players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pool string
		var p session.SelectablePlayer
		if err := rows.Scan(&pool, &p.UserID, &p.Name); err != nil {
			return result, fmt.Errorf("scan selectable player: %w", err)
		}
		switch pool {
		case "registered":
			result.RegisteredPlayers = append(result.RegisteredPlayers, p)
		case "unregistered":
			result.UnregisteredPlayers = append(result.UnregisteredPlayers, p)
		case "virtual":
			result.VirtualPlayers = append(result.VirtualPlayers, p)
		case "unassigned":
			result.UnassignedPlayers = append(result.UnassignedPlayers, p)
		default:
			return result, fmt.Errorf("get selectable players: unknown pool %q", pool)
		}
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("iterate selectable players: %w", err)
	}
	return result, nil
}

// readShootout returns saved penalty data, or nil when none was saved.
func (r *Recorder) readShootout(ctx context.Context, matchID string) (*session.ShootoutPayload, error) {
	var team1, team2 sql.NullInt64
	var winner sql.NullString
	err := r.store.db.QueryRowContext(ctx, `
		SELECT team1_penalty_score, team2_penalty_score, penalty_winner_team_id
		FROM supplements WHERE match_id = ?
	`, matchID).Scan(&team1, &team2, &winner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read shootout: %w", err)
	}
	if !team1.Valid || !team2.Valid {
		return nil, nil
	}
	return &session.ShootoutPayload{
		Team1PenaltyScore:   int(team1.Int64),
		Team2PenaltyScore:   int(team2.Int64),
		PenaltyWinnerTeamID: winner.String,
	}, nil
}

// requireMatch fails with a clear error for unknown match ids.
func (r *Recorder) requireMatch(ctx context.Context, matchID string) error {
	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE id = ?`, matchID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("match %s not found", matchID)
	}
	if err != nil {
		return fmt.Errorf("lookup match %s: %w", matchID, err)
	}
	return nil
}
