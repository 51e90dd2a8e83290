package main

import (
	"database/sql"
	"log"
	"net/http"
)

// findCandidates returns profiles of the opposite kind that the given profile
// could propose to. Anything already linked by a match record, pending or
// mutual, proposed by either side, is excluded, as is the profile itself.
func findCandidates(db *sql.DB, profile *Profile) ([]Profile, error) {
	rows, err := db.Query(`
		SELECT `+profileColumns+`
		FROM profiles p
		WHERE p.kind = $2
		  AND p.id <> $1
		  AND NOT EXISTS (
			SELECT 1 FROM matches m
			WHERE (m.side_a_profile_id = $1 AND m.side_b_profile_id = p.id)
			   OR (m.side_b_profile_id = $1 AND m.side_a_profile_id = p.id)
		  )
		ORDER BY p.created_at, p.id
	`, profile.ID, oppositeKind(profile.Kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *p)
	}
	return candidates, rows.Err()
}

// GET /candidates
func candidatesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		me := callerProfile(db, w, r)
		if me == nil {
			return
		}

		candidates, err := findCandidates(db, me)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "candidate_error")
			log.Println("Error fetching candidates:", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]Profile{"candidates": candidates})
	})
}
