package main

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Outcome labels returned alongside the match so handlers can report what a
// call actually did. Propose and confirm are both idempotent, so "unchanged"
// is a normal result, not an error.
//
// TERMINOLOGY
// propose: create a pending match with the initiator's side accepted. If a
// record for the pair already exists (either direction, any state), the call
// acts as a confirm instead: replying to a proposal is the same "I am
// interested" action as sending one.
// confirm: flip the caller's pending side to accepted. A match is created
// with the initiator's side already accepted, so flipping the one pending
// side always completes the match.
// withdraw: remove the match and scrub both profiles' bookkeeping.
const (
	outcomeProposed  = "proposed"
	outcomeMutual    = "mutual"
	outcomeUnchanged = "unchanged"
)

// proposeMatch implements the propose operation. All state changes for one
// call commit in a single transaction holding the pair's row lock, so two
// concurrent proposals for the same pair serialize: one creates, the other
// observes the created row and falls through to confirm semantics.
func proposeMatch(ctx context.Context, db *sql.DB, initiatorID, targetID uuid.UUID) (*Match, string, error) {
	if initiatorID == targetID {
		return nil, "", errSelfProposal
	}

	var (
		result  *Match
		outcome string
	)
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		// Existence checks run inside the transaction so a profile deleted
		// after the check cannot turn the insert into a raw constraint error.
		for _, id := range []uuid.UUID{initiatorID, targetID} {
			p, err := fetchProfile(tx, id)
			if err != nil {
				return err
			}
			if p == nil {
				return errNotFound
			}
		}

		m, err := loadPairForUpdate(tx, initiatorID, targetID)
		if err != nil {
			return err
		}

		if m == nil {
			created, err := insertMatch(tx, initiatorID, targetID)
			if err == nil {
				if err := addSentProposal(tx, initiatorID, targetID); err != nil {
					return err
				}
				result, outcome = created, outcomeProposed
				return nil
			}
			if err != errConflict {
				return err
			}
			// Lost the create race: a concurrent proposal committed first.
			// Re-read the winning row and continue as a confirm.
			m, err = loadPairForUpdate(tx, initiatorID, targetID)
			if err != nil {
				return err
			}
			if m == nil {
				return errConflict
			}
		}

		result, outcome, err = confirmLocked(tx, m, initiatorID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return result, outcome, nil
}

// confirmMatch flips the responder's side of an existing match to accepted.
// Calling it again after success is a no-op returning the current state.
func confirmMatch(ctx context.Context, db *sql.DB, responderID, matchID uuid.UUID) (*Match, string, error) {
	var (
		result  *Match
		outcome string
	)
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		m, err := loadMatchForUpdate(tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return errNotFound
		}
		result, outcome, err = confirmLocked(tx, m, responderID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return result, outcome, nil
}

// confirmLocked applies confirm semantics to a match already locked by the
// surrounding transaction. Flipping the pending side makes the match mutual,
// and both profiles' confirmed_matches sets gain the counterpart in the same
// transaction, so the ledger and the directory never disagree at commit.
func confirmLocked(tx *sql.Tx, m *Match, responderID uuid.UUID) (*Match, string, error) {
	side := m.side(responderID)
	if side == nil {
		return nil, "", errNotParticipant
	}
	if side.Accepted {
		return m, outcomeUnchanged, nil
	}

	updated, err := confirmSide(tx, m.ID, responderID)
	if err != nil {
		return nil, "", err
	}
	if err := addConfirmedPair(tx, updated.SideA.ProfileID, updated.SideB.ProfileID); err != nil {
		return nil, "", err
	}
	return updated, outcomeMutual, nil
}

// withdrawMatch removes a match and clears the pair from both profiles'
// bookkeeping sets. Returns the removed match.
func withdrawMatch(ctx context.Context, db *sql.DB, profileID, matchID uuid.UUID) (*Match, error) {
	var removed *Match
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		m, err := loadMatchForUpdate(tx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return errNotFound
		}
		if m.side(profileID) == nil {
			return errNotParticipant
		}
		if err := removeMatch(tx, m.ID); err != nil {
			return err
		}
		if err := removeSentProposalPair(tx, m.SideA.ProfileID, m.SideB.ProfileID); err != nil {
			return err
		}
		if err := removeConfirmedPair(tx, m.SideA.ProfileID, m.SideB.ProfileID); err != nil {
			return err
		}
		removed = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// PendingMatches splits a profile's non-mutual matches by role: matches
// waiting on this profile's answer vs. matches where it already accepted and
// is waiting on the other side.
type PendingMatches struct {
	AwaitingMyResponse    []Match `json:"awaiting_my_response"`
	AwaitingTheirResponse []Match `json:"awaiting_their_response"`
}

func listPendingMatches(db *sql.DB, profileID uuid.UUID) (*PendingMatches, error) {
	all, err := listMatchesForProfile(db, profileID, false)
	if err != nil {
		return nil, err
	}
	pending := &PendingMatches{
		AwaitingMyResponse:    []Match{},
		AwaitingTheirResponse: []Match{},
	}
	for _, m := range all {
		if m.IsMutual {
			continue
		}
		if m.side(profileID).Accepted {
			pending.AwaitingTheirResponse = append(pending.AwaitingTheirResponse, m)
		} else {
			pending.AwaitingMyResponse = append(pending.AwaitingMyResponse, m)
		}
	}
	return pending, nil
}

func listConfirmedMatches(db *sql.DB, profileID uuid.UUID) ([]Match, error) {
	return listMatchesForProfile(db, profileID, true)
}

// showConfirmedMatch returns a match only when it is mutual AND the requester
// participates in it. A pending match, or someone else's match, looks
// exactly like a missing one, so this accessor cannot leak existence.
func showConfirmedMatch(db *sql.DB, matchID, requesterID uuid.UUID) (*Match, error) {
	row := db.QueryRow(`SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	if !m.IsMutual || m.side(requesterID) == nil {
		return nil, errNotFound
	}
	return m, nil
}

// cascadeProfileRemoval withdraws every match the profile participates in and
// scrubs the profile from every bookkeeping set, its own and its
// counterparts'. Runs inside the caller's transaction so profile deletion and
// the cascade commit together.
func cascadeProfileRemoval(tx *sql.Tx, profileID uuid.UUID) error {
	rows, err := tx.Query(`
		SELECT `+matchColumns+`
		FROM matches
		WHERE side_a_profile_id = $1 OR side_b_profile_id = $1
		FOR UPDATE
	`, profileID)
	if err != nil {
		return err
	}
	matches := []Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return err
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range matches {
		if err := removeMatch(tx, m.ID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`
		DELETE FROM sent_proposals WHERE profile_id = $1 OR target_profile_id = $1
	`, profileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM confirmed_matches WHERE profile_id = $1 OR peer_profile_id = $1
	`, profileID); err != nil {
		return err
	}
	return nil
}
