package main

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchSide is one of the two participant slots on a match: which profile
// holds the slot and whether that profile has accepted.
type MatchSide struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Accepted  bool      `json:"accepted"`
}

// Match links two profiles. is_mutual is derived: it is recomputed inside the
// same statement whenever either side's accepted flag changes, never written
// on its own.
type Match struct {
	ID        uuid.UUID `json:"id"`
	SideA     MatchSide `json:"side_a"`
	SideB     MatchSide `json:"side_b"`
	IsMutual  bool      `json:"is_mutual"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// side returns the slot held by profileID, or nil if the profile is not a
// participant.
func (m *Match) side(profileID uuid.UUID) *MatchSide {
	if m.SideA.ProfileID == profileID {
		return &m.SideA
	}
	if m.SideB.ProfileID == profileID {
		return &m.SideB
	}
	return nil
}

// counterpart returns the other participant's profile id.
func (m *Match) counterpart(profileID uuid.UUID) uuid.UUID {
	if m.SideA.ProfileID == profileID {
		return m.SideB.ProfileID
	}
	return m.SideA.ProfileID
}

const matchColumns = `id, side_a_profile_id, side_a_accepted, side_b_profile_id, side_b_accepted, is_mutual, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*Match, error) {
	var m Match
	err := row.Scan(
		&m.ID,
		&m.SideA.ProfileID, &m.SideA.Accepted,
		&m.SideB.ProfileID, &m.SideB.Accepted,
		&m.IsMutual, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// findMatchByPair looks up the match between two profiles independent of
// argument order. Returns (nil, nil) when no record exists.
func findMatchByPair(db *sql.DB, p, q uuid.UUID) (*Match, error) {
	row := db.QueryRow(`
		SELECT `+matchColumns+`
		FROM matches
		WHERE (side_a_profile_id = $1 AND side_b_profile_id = $2)
		   OR (side_a_profile_id = $2 AND side_b_profile_id = $1)
	`, p, q)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// loadPairForUpdate returns the match between two profiles (in EITHER
// direction) and takes a row lock (`FOR UPDATE`) so no other concurrent
// request can modify it until our transaction finishes.
// Returns (nil, nil) if no row exists yet.
func loadPairForUpdate(tx *sql.Tx, p, q uuid.UUID) (*Match, error) {
	row := tx.QueryRow(`
		SELECT `+matchColumns+`
		FROM matches
		WHERE (side_a_profile_id = $1 AND side_b_profile_id = $2)
		   OR (side_a_profile_id = $2 AND side_b_profile_id = $1)
		FOR UPDATE
	`, p, q)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// loadMatchForUpdate locks a match by id. Returns (nil, nil) if absent.
func loadMatchForUpdate(tx *sql.Tx, matchID uuid.UUID) (*Match, error) {
	row := tx.QueryRow(`
		SELECT `+matchColumns+`
		FROM matches
		WHERE id = $1
		FOR UPDATE
	`, matchID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// insertMatch creates the match for a new pair: initiator's side accepted,
// target's side pending. A match is never created with both sides unaccepted.
// If a concurrent request created the pair first, the unique pair index
// swallows the insert and errConflict is returned; the caller re-reads the
// winning row and continues on the confirm path. A side referencing a profile
// deleted since the caller's existence check surfaces as errNotFound.
func insertMatch(tx *sql.Tx, initiator, target uuid.UUID) (*Match, error) {
	row := tx.QueryRow(`
		INSERT INTO matches (id, side_a_profile_id, side_a_accepted, side_b_profile_id, side_b_accepted, is_mutual)
		VALUES ($1, $2, TRUE, $3, FALSE, FALSE)
		ON CONFLICT DO NOTHING
		RETURNING `+matchColumns+`
	`, uuid.New(), initiator, target)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, errConflict
	}
	if err != nil && strings.Contains(err.Error(), "violates foreign key constraint") {
		return nil, errNotFound
	}
	return m, err
}

// confirmSide flips the slot held by profileID to accepted and recomputes
// is_mutual in the same statement, so no intermediate state is observable.
// Already-accepted slots are left untouched (idempotent). Returns errNotFound
// when the match does not exist or profileID holds neither slot.
func confirmSide(tx *sql.Tx, matchID, profileID uuid.UUID) (*Match, error) {
	m, err := loadMatchForUpdate(tx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.side(profileID) == nil {
		return nil, errNotFound
	}
	if m.side(profileID).Accepted {
		// Nothing to flip; return the current state unchanged.
		return m, nil
	}
	row := tx.QueryRow(`
		UPDATE matches
		SET side_a_accepted = side_a_accepted OR side_a_profile_id = $2,
		    side_b_accepted = side_b_accepted OR side_b_profile_id = $2,
		    is_mutual = (side_a_accepted OR side_a_profile_id = $2)
		            AND (side_b_accepted OR side_b_profile_id = $2),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+matchColumns+`
	`, matchID, profileID)
	return scanMatch(row)
}

// listMatchesForProfile returns every match where the profile holds either
// side, newest first, optionally filtered to mutual matches only.
func listMatchesForProfile(db *sql.DB, profileID uuid.UUID, mutualOnly bool) ([]Match, error) {
	rows, err := db.Query(`
		SELECT `+matchColumns+`
		FROM matches
		WHERE (side_a_profile_id = $1 OR side_b_profile_id = $1)
		  AND ($2 = FALSE OR is_mutual = TRUE)
		ORDER BY created_at DESC, id DESC
	`, profileID, mutualOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func removeMatch(tx *sql.Tx, matchID uuid.UUID) error {
	_, err := tx.Exec(`DELETE FROM matches WHERE id = $1`, matchID)
	return err
}
