package main

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Handler functions for the match protocol surface.
//
// Every handler resolves the caller's own profile from the authenticated user
// first: match operations act on behalf of a profile, and a user without one
// has no standing in the protocol.

// A dispatcher router function for all /matches/... requests
func matchesActionsRouter(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(r.URL.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) < 2 || parts[0] != "matches" {
			http.NotFound(w, r)
			return
		}

		if len(parts) == 2 {
			switch parts[1] {
			case "pending":
				pendingMatchesHandler(db).ServeHTTP(w, r)
				return
			case "confirmed":
				confirmedMatchesHandler(db).ServeHTTP(w, r)
				return
			}
			// GET /matches/{id} → show-confirmed, DELETE /matches/{id} → withdraw
			switch r.Method {
			case http.MethodGet:
				showMatchHandler(db).ServeHTTP(w, r)
			case http.MethodDelete:
				withdrawMatchHandler(db).ServeHTTP(w, r)
			default:
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			}
			return
		}

		// POST /matches/{id}/confirm
		if len(parts) == 3 && parts[2] == "confirm" {
			confirmMatchHandler(db).ServeHTTP(w, r)
			return
		}

		http.NotFound(w, r)
	}
}

// callerProfile resolves the profile owned by the authenticated user, writing
// the error response itself when there is none.
func callerProfile(db *sql.DB, w http.ResponseWriter, r *http.Request) *Profile {
	userID := r.Context().Value(userIDKey).(int)
	profile, err := fetchProfileByUser(db, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		log.Println("Error resolving caller profile:", err)
		return nil
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "no_profile")
		return nil
	}
	return profile
}

// POST /profiles/{id}/propose
// Proposes a match from the caller's profile to {id}. If a match for the pair
// already exists the call confirms instead; replying to a pending proposal
// this way completes the match.
func proposeMatchHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// Expect: /profiles/{id}/propose
		if len(parts) != 3 || parts[0] != "profiles" || parts[2] != "propose" {
			http.NotFound(w, r)
			return
		}
		targetID, err := uuid.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		match, outcome, err := proposeMatch(r.Context(), db, me.ID, targetID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		switch outcome {
		case outcomeProposed:
			notifyMatchEvent(db, targetID, MatchEvent{Type: "proposal", MatchID: match.ID, PeerID: me.ID})
		case outcomeMutual:
			notifyMatchEvent(db, targetID, MatchEvent{Type: "mutual", MatchID: match.ID, PeerID: me.ID})
			notifyMatchEvent(db, me.ID, MatchEvent{Type: "mutual", MatchID: match.ID, PeerID: targetID})
		}

		status := http.StatusOK
		if outcome == outcomeProposed {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]interface{}{"state": outcome, "match": match})
	})
}

// POST /matches/{id}/confirm
// Accepts the caller's pending side of the match. Idempotent: confirming an
// already-accepted side returns the current state unchanged.
func confirmMatchHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "matches" || parts[2] != "confirm" {
			http.NotFound(w, r)
			return
		}
		matchID, err := uuid.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		match, outcome, err := confirmMatch(r.Context(), db, me.ID, matchID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		if outcome == outcomeMutual {
			peer := match.counterpart(me.ID)
			notifyMatchEvent(db, peer, MatchEvent{Type: "mutual", MatchID: match.ID, PeerID: me.ID})
			notifyMatchEvent(db, me.ID, MatchEvent{Type: "mutual", MatchID: match.ID, PeerID: peer})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"state": outcome, "match": match})
	})
}

// DELETE /matches/{id}
// Withdraws the match: the record is removed and the pair disappears from
// both profiles' bookkeeping. Either participant can call it.
func withdrawMatchHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "matches" {
			http.NotFound(w, r)
			return
		}
		matchID, err := uuid.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		removed, err := withdrawMatch(r.Context(), db, me.ID, matchID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		notifyMatchEvent(db, removed.counterpart(me.ID), MatchEvent{Type: "withdrawn", MatchID: removed.ID, PeerID: me.ID})

		w.WriteHeader(http.StatusNoContent)
	})
}

// GET /matches/pending
// Non-mutual matches for the caller's profile, split by whose answer is
// outstanding.
func pendingMatchesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		pending, err := listPendingMatches(db, me.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			log.Println("Error fetching pending matches:", err)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	})
}

// GET /matches/confirmed
func confirmedMatchesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		matches, err := listConfirmedMatches(db, me.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			log.Println("Error fetching confirmed matches:", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]Match{"matches": matches})
	})
}

// GET /matches/{id}
// Shows a single match, but only once it is mutual and only to a participant.
// Anything else is a plain not_found so the accessor can't be used to probe
// for pending proposals.
func showMatchHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "matches" {
			http.NotFound(w, r)
			return
		}
		matchID, err := uuid.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		match, err := showConfirmedMatch(db, matchID, me.ID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, match)
	})
}
