package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	kindPlanner = "planner"
	kindBand    = "band"
)

// oppositeKind is a pure function of the two-variant kind tag.
func oppositeKind(kind string) string {
	if kind == kindPlanner {
		return kindBand
	}
	return kindPlanner
}

// Profile is a planner or band page. Each authenticated user owns at most one.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	UserID    int       `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const profileColumns = `id, user_id, kind, title, text, created_at, updated_at`

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.UserID, &p.Kind, &p.Title, &p.Text, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx, so lookups can run
// inside or outside a transaction.
type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// fetchProfile returns (nil, nil) when the profile does not exist.
func fetchProfile(q rowQuerier, profileID uuid.UUID) (*Profile, error) {
	row := q.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, profileID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// fetchProfileByUser resolves the caller's own profile from the authenticated
// user id. Returns (nil, nil) when the user has not created one yet.
func fetchProfileByUser(db *sql.DB, userID int) (*Profile, error) {
	row := db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// --- Bookkeeping sets ---
//
// sent_proposals and confirmed_matches are owned sets, not free-form arrays:
// composite primary keys plus ON CONFLICT DO NOTHING make every add/remove
// idempotent, so a retried request cannot duplicate an entry.

func addSentProposal(tx *sql.Tx, from, to uuid.UUID) error {
	_, err := tx.Exec(`
		INSERT INTO sent_proposals (profile_id, target_profile_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, from, to)
	return err
}

func removeSentProposalPair(tx *sql.Tx, p, q uuid.UUID) error {
	_, err := tx.Exec(`
		DELETE FROM sent_proposals
		WHERE (profile_id = $1 AND target_profile_id = $2)
		   OR (profile_id = $2 AND target_profile_id = $1)
	`, p, q)
	return err
}

func addConfirmedPair(tx *sql.Tx, p, q uuid.UUID) error {
	_, err := tx.Exec(`
		INSERT INTO confirmed_matches (profile_id, peer_profile_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT DO NOTHING
	`, p, q)
	return err
}

func removeConfirmedPair(tx *sql.Tx, p, q uuid.UUID) error {
	_, err := tx.Exec(`
		DELETE FROM confirmed_matches
		WHERE (profile_id = $1 AND peer_profile_id = $2)
		   OR (profile_id = $2 AND peer_profile_id = $1)
	`, p, q)
	return err
}

func sentProposalIDs(db *sql.DB, profileID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Query(`
		SELECT target_profile_id FROM sent_proposals WHERE profile_id = $1
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func confirmedMatchIDs(db *sql.DB, profileID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Query(`
		SELECT peer_profile_id FROM confirmed_matches WHERE profile_id = $1
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Handlers ---

// POST /profiles
// Creates the caller's profile. One profile per user; a second create is a 409.
func createProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		type ProfileRequest struct {
			Kind  string `json:"kind"`
			Title string `json:"title"`
			Text  string `json:"text"`
		}
		var req ProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		req.Kind = strings.TrimSpace(req.Kind)
		req.Title = strings.TrimSpace(req.Title)
		req.Text = strings.TrimSpace(req.Text)
		if req.Title == "" || req.Text == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		if req.Kind != kindPlanner && req.Kind != kindBand {
			writeError(w, http.StatusBadRequest, "invalid_kind")
			return
		}

		userID := r.Context().Value(userIDKey).(int)

		row := db.QueryRow(`
			INSERT INTO profiles (id, user_id, kind, title, text)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+profileColumns+`
		`, uuid.New(), userID, req.Kind, req.Title, req.Text)
		profile, err := scanProfile(row)
		if err != nil {
			if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
				writeError(w, http.StatusConflict, "profile_exists")
				return
			}
			writeError(w, http.StatusInternalServerError, "profile_save_error")
			log.Println("Error saving profile:", err)
			return
		}
		writeJSON(w, http.StatusCreated, profile)
	})
}

// Dispatcher for /profiles/* requests:
//
//	GET    /profiles/mine
//	GET    /profiles/{id}
//	DELETE /profiles/{id}
//	POST   /profiles/{id}/propose
func profilesDispatcher(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(r.URL.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) < 2 || parts[0] != "profiles" {
			http.NotFound(w, r)
			return
		}

		if len(parts) == 2 {
			if parts[1] == "mine" {
				myProfileHandler(db).ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet:
				getProfileHandler(db).ServeHTTP(w, r)
			case http.MethodDelete:
				deleteProfileHandler(db).ServeHTTP(w, r)
			default:
				writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			}
			return
		}

		if len(parts) == 3 && parts[2] == "propose" {
			proposeMatchHandler(db).ServeHTTP(w, r)
			return
		}

		http.NotFound(w, r)
	}
}

// GET /profiles/mine
// Returns the caller's profile together with its bookkeeping lists.
func myProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(int)

		profile, err := fetchProfileByUser(db, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			log.Println("Error fetching own profile:", err)
			return
		}
		if profile == nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		sent, err := sentProposalIDs(db, profile.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		confirmed, err := confirmedMatchIDs(db, profile.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"profile":           profile,
			"sent_proposals":    sent,
			"confirmed_matches": confirmed,
		})
	})
}

// GET /profiles/{id}
func getProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "profiles" {
			http.NotFound(w, r)
			return
		}
		profileID, err := uuid.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		profile, err := fetchProfile(db, profileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			log.Println("Error fetching profile:", err)
			return
		}
		if profile == nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	})
}

// DELETE /profiles/{id}
// Only the owning user can delete a profile. Every match the profile
// participates in is withdrawn in the same transaction so no counterpart is
// left holding a dangling reference.
func deleteProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "profiles" {
			http.NotFound(w, r)
			return
		}
		profileID, err := uuid.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		userID := r.Context().Value(userIDKey).(int)

		profile, err := fetchProfile(db, profileID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if profile == nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		// Ownership is checked against the authenticated user, not the profile id.
		if profile.UserID != userID {
			writeError(w, http.StatusForbidden, "not_owner")
			return
		}

		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			if err := cascadeProfileRemoval(tx, profileID); err != nil {
				return err
			}
			_, err := tx.Exec(`DELETE FROM profiles WHERE id = $1`, profileID)
			return err
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			log.Println("deleteProfileHandler tx error:", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
