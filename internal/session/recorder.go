package session

import "context"

// Save modes for SaveQuarter.
const (
	// SaveModeAppend adds the request's events without disturbing
	// previously stored ones. Used for eager event saves inside a still
	// open quarter.
	SaveModeAppend = "append"

	// SaveModeAuto has the backend recompute quarter scores from the
	// already-stored event set and accepts deleteEventIds for retraction.
	// Used when closing a quarter, which makes retried phase advances
	// idempotent.
	SaveModeAuto = "auto"
)

// EventPayload is the wire shape of a single event in a SaveQuarter
// request. Field names are bit-exact with the backend contract.
//
// ClientToken is the client-generated correlation token; the backend
// echoes it back on the matching PersistedEvent so reconciliation never
// depends on response ordering.
type EventPayload struct {
	TeamID       string  `json:"teamId"`
	UserID       string  `json:"userId"`
	EventType    string  `json:"eventType"`
	EventSubtype string  `json:"eventSubtype"`
	Minute       int     `json:"minute"`
	AssistUserID *string `json:"assistUserId"`
	Notes        string  `json:"notes"`
	ClientToken  string  `json:"clientToken"`
}

// PersistedEvent is an event as returned by the backend: the payload plus
// the server-assigned id and the echoed client token.
type PersistedEvent struct {
	ID            string `json:"id"`
	QuarterNumber int    `json:"quarterNumber"`
	EventPayload
}

// PersistedQuarter is a quarter row as returned by GetQuarterDetail.
type PersistedQuarter struct {
	QuarterNumber int    `json:"quarterNumber"`
	Team1Goals    int    `json:"team1Goals"`
	Team2Goals    int    `json:"team2Goals"`
	Summary       string `json:"summary"`
	IsCompleted   bool   `json:"isCompleted"`
}

// SaveQuarterRequest is the request body for SaveQuarter.
type SaveQuarterRequest struct {
	QuarterNumber  int            `json:"quarterNumber"`
	Mode           string         `json:"mode"`
	Team1Goals     int            `json:"team1Goals"`
	Team2Goals     int            `json:"team2Goals"`
	Summary        string         `json:"summary"`
	Events         []EventPayload `json:"events,omitempty"`
	DeleteEventIDs []string       `json:"deleteEventIds,omitempty"`
	IsCompleted    bool           `json:"isCompleted,omitempty"`
}

// SaveQuarterResult carries the stored events of the saved quarter back to
// the client for reconciliation.
type SaveQuarterResult struct {
	Events []PersistedEvent `json:"events"`
}

// QuarterDetail is the resumption payload: everything the backend holds
// for a match's quarters, plus previously saved penalty data when a
// tie-break was already reached in an earlier session.
type QuarterDetail struct {
	Quarters          []PersistedQuarter `json:"quarters"`
	Events            []PersistedEvent   `json:"events"`
	QuartersCompleted int                `json:"quartersCompleted"`
	PenaltyShootout   *ShootoutPayload   `json:"penaltyShootout,omitempty"`
}

// Participant is a confirmed attendee as stored by the backend.
type Participant struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// ParticipantsRequest sets the confirmed attendee lists per team.
type ParticipantsRequest struct {
	Team1 []string `json:"team1"`
	Team2 []string `json:"team2"`
}

// ParticipantsResult returns the stored attendee lists per team.
type ParticipantsResult struct {
	Team1 []Participant `json:"team1"`
	Team2 []Participant `json:"team2"`
}

// ShootoutPayload is the penalty shootout wire shape.
type ShootoutPayload struct {
	Team1PenaltyScore   int    `json:"team1PenaltyScore"`
	Team2PenaltyScore   int    `json:"team2PenaltyScore"`
	PenaltyWinnerTeamID string `json:"penaltyWinnerTeamId"`
}

// SupplementRequest is the final-submission payload. It may also be sent
// early to persist penalty data alone, with the other fields nil.
type SupplementRequest struct {
	MVPUserIDs      []string         `json:"mvpUserIds,omitempty"`
	Summary         *string          `json:"summary,omitempty"`
	PenaltyShootout *ShootoutPayload `json:"penaltyShootout,omitempty"`
	PhotoRefs       []string         `json:"photoRefs,omitempty"`
}

// SelectablePlayer is one pickable attendee candidate.
type SelectablePlayer struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// SelectablePlayers groups a team's attendee candidates into the disjoint
// pools surfaced by the roster collaborator.
type SelectablePlayers struct {
	RegisteredPlayers   []SelectablePlayer `json:"registeredPlayers"`
	UnregisteredPlayers []SelectablePlayer `json:"unregisteredPlayers"`
	VirtualPlayers      []SelectablePlayer `json:"virtualPlayers"`
	UnassignedPlayers   []SelectablePlayer `json:"unassignedPlayers"`
}

// Recorder is the persistence collaborator behind the recording workflow.
// The session treats it as external: network transport, auth, and retries
// live behind this interface.
//
// All methods take a context; a failed call leaves the session's in-memory
// state untouched so the same call can be retried.
type Recorder interface {
	SaveQuarter(ctx context.Context, matchID string, req SaveQuarterRequest) (SaveQuarterResult, error)
	GetQuarterDetail(ctx context.Context, matchID string) (QuarterDetail, error)
	SetParticipants(ctx context.Context, matchID string, req ParticipantsRequest) error
	GetParticipants(ctx context.Context, matchID string) (ParticipantsResult, error)
	SupplementResult(ctx context.Context, matchID string, req SupplementRequest) error
	GetSelectablePlayers(ctx context.Context, matchID, teamID string) (SelectablePlayers, error)
}
