package ledger

import (
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/match"
)

// ServerEvent is the reconciler's view of an event returned by the
// persistence backend: the server-assigned id plus, when the backend
// behaves, the echoed client token. Fingerprint is the content hash of the
// returned payload, computed by the caller from the full persisted event.
type ServerEvent struct {
	ID          string
	ClientToken string
	Fingerprint string
}

// ConflictError reports a local event whose client token could not be
// matched to any returned server event. Non-fatal: the local copy stays
// authoritative until the next successful reload, but the mismatch
// indicates a lost or duplicated save worth surfacing.
type ConflictError struct {
	ClientToken string
	Quarter     int
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("quarter %d: no server event matched client token %s",
		e.Quarter, e.ClientToken)
}

// Reconciler maintains the bijection between client-generated temporary
// tokens and server-assigned event ids.
//
// The table is explicit: matching is keyed on the echoed client token (or,
// as a fallback, the event's content fingerprint), never on response
// ordering, so a backend that reorders its response cannot silently
// mis-map events.
type Reconciler struct {
	serverByToken map[string]string
	tokenByServer map[string]string
}

// NewReconciler creates an empty reconciliation table.
func NewReconciler() *Reconciler {
	return &Reconciler{
		serverByToken: make(map[string]string),
		tokenByServer: make(map[string]string),
	}
}

// Bind records a token/server-id pair. Rebinding either key to a different
// counterpart is an error - the table is a bijection.
func (r *Reconciler) Bind(token, serverID string) error {
	if token == "" || serverID == "" {
		return fmt.Errorf("bind: token and server id are both required")
	}
	if existing, ok := r.serverByToken[token]; ok && existing != serverID {
		return fmt.Errorf("bind: token %s already bound to server id %s", token, existing)
	}
	if existing, ok := r.tokenByServer[serverID]; ok && existing != token {
		return fmt.Errorf("bind: server id %s already bound to token %s", serverID, existing)
	}
	r.serverByToken[token] = serverID
	r.tokenByServer[serverID] = token
	return nil
}

// ServerID looks up the server id bound to a client token.
func (r *Reconciler) ServerID(token string) (string, bool) {
	id, ok := r.serverByToken[token]
	return id, ok
}

// ClientToken looks up the client token bound to a server id.
func (r *Reconciler) ClientToken(serverID string) (string, bool) {
	token, ok := r.tokenByServer[serverID]
	return token, ok
}

// Apply unifies a quarter's unpersisted ledger events with the events the
// backend returned from a save.
//
// Matching order per local event:
//  1. a returned event echoing the local event's token
//  2. a returned unclaimed event whose content fingerprint equals the
//     local event's (backends that drop the echo)
//
// Matched events are rebound in place - same ledger position, server id
// replacing the token. Local events left unmatched are reported as
// ConflictError values; the ledger keeps them untouched.
func (r *Reconciler) Apply(l *Ledger, quarter int, returned []ServerEvent) ([]ConflictError, error) {
	byToken := make(map[string]ServerEvent, len(returned))
	var unclaimed []ServerEvent
	for _, se := range returned {
		if se.ClientToken != "" {
			byToken[se.ClientToken] = se
		} else {
			unclaimed = append(unclaimed, se)
		}
	}

	var conflicts []ConflictError
	for _, local := range l.Pending(quarter) {
		se, ok := byToken[local.ID]
		if !ok {
			se, ok = r.claimByFingerprint(local, unclaimed)
		}
		if !ok {
			conflicts = append(conflicts, ConflictError{
				ClientToken: local.ID,
				Quarter:     quarter,
			})
			continue
		}

		if err := r.Bind(local.ID, se.ID); err != nil {
			return conflicts, fmt.Errorf("reconcile quarter %d: %w", quarter, err)
		}
		if err := l.Rebind(local.ID, se.ID); err != nil {
			return conflicts, fmt.Errorf("reconcile quarter %d: %w", quarter, err)
		}
	}

	return conflicts, nil
}

// claimByFingerprint matches a local event against unclaimed server events
// by content fingerprint. Without an echoed token, an exact fingerprint on
// a not-yet-bound server event is the only safe claim; an ambiguous or
// absent fingerprint leaves the local event unmatched.
func (r *Reconciler) claimByFingerprint(local match.Event, unclaimed []ServerEvent) (ServerEvent, bool) {
	localFP, err := match.Fingerprint(local)
	if err != nil || localFP == "" {
		return ServerEvent{}, false
	}

	var found ServerEvent
	matches := 0
	for _, se := range unclaimed {
		if _, taken := r.tokenByServer[se.ID]; taken {
			continue
		}
		if se.Fingerprint == localFP {
			found = se
			matches++
		}
	}
	if matches != 1 {
		return ServerEvent{}, false
	}
	return found, true
}
