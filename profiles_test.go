package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// PROFILE DIRECTORY TEST SUITE
// ============================================================================

func TestProfileHandlersSuite(t *testing.T) {
	t.Run("CreateProfileHandler", func(t *testing.T) {
		testCreateProfileHandler(t)
	})

	t.Run("MyProfileHandler", func(t *testing.T) {
		testMyProfileHandler(t)
	})

	t.Run("GetProfileHandler", func(t *testing.T) {
		testGetProfileHandler(t)
	})

	t.Run("DeleteProfileHandler", func(t *testing.T) {
		testDeleteProfileHandler(t)
	})

	t.Run("ProfilesDispatcher", func(t *testing.T) {
		testProfilesDispatcher(t)
	})
}

func testCreateProfileHandler(t *testing.T) {
	user := createTestUser(t, "create_prof@example.com", "password123")
	existingUser := createTestUser(t, "create_prof_dup@example.com", "password123")
	defer cleanupTestData("create_prof@example.com", "create_prof_dup@example.com")

	createTestProfile(t, existingUser, kindBand, "create_prof existing")

	tests := []struct {
		name           string
		method         string
		body           string
		token          string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Valid Planner Profile",
			method:         http.MethodPost,
			body:           `{"kind": "planner", "title": "Summer festival", "text": "Looking for bands for a July weekend."}`,
			token:          user.Token,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Duplicate Profile",
			method:         http.MethodPost,
			body:           `{"kind": "band", "title": "Second page", "text": "Should not be allowed."}`,
			token:          user.Token,
			expectedStatus: http.StatusConflict,
			expectedError:  "profile_exists",
		},
		{
			name:           "Invalid Kind",
			method:         http.MethodPost,
			body:           `{"kind": "venue", "title": "A venue", "text": "Wrong kind tag."}`,
			token:          existingUser.Token,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid_kind",
		},
		{
			name:           "Missing Title",
			method:         http.MethodPost,
			body:           `{"kind": "band", "title": "  ", "text": "No title."}`,
			token:          existingUser.Token,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "missing_fields",
		},
		{
			name:           "Missing Text",
			method:         http.MethodPost,
			body:           `{"kind": "band", "title": "No text"}`,
			token:          existingUser.Token,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "missing_fields",
		},
		{
			name:           "Invalid JSON",
			method:         http.MethodPost,
			body:           `{"kind": "band",`,
			token:          existingUser.Token,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid_json",
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			body:           "",
			token:          user.Token,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedError:  "invalid_method",
		},
		{
			name:           "Unauthenticated",
			method:         http.MethodPost,
			body:           `{"kind": "band", "title": "x", "text": "y"}`,
			token:          "",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/profiles", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			createProfileHandler(db).ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			if tt.expectedError != "" {
				var resp map[string]string
				json.Unmarshal(w.Body.Bytes(), &resp)
				if resp["error"] != tt.expectedError {
					t.Errorf("Expected error '%s', got '%s'", tt.expectedError, resp["error"])
				}
			}

			if tt.expectedStatus == http.StatusCreated {
				var profile Profile
				if err := json.Unmarshal(w.Body.Bytes(), &profile); err != nil {
					t.Fatalf("Failed to parse profile response: %v", err)
				}
				if profile.ID == uuid.Nil {
					t.Errorf("Expected generated profile id")
				}
				if profile.Kind != kindPlanner {
					t.Errorf("Expected kind '%s', got '%s'", kindPlanner, profile.Kind)
				}
			}
		})
	}
}

func testMyProfileHandler(t *testing.T) {
	plannerUser := createTestUser(t, "mine_prof_planner@example.com", "password123")
	bandUser := createTestUser(t, "mine_prof_band@example.com", "password123")
	bareUser := createTestUser(t, "mine_prof_bare@example.com", "password123")
	defer cleanupTestData("mine_prof_planner@example.com", "mine_prof_band@example.com", "mine_prof_bare@example.com")

	planner := createTestProfile(t, plannerUser, kindPlanner, "mine_prof planner")
	band := createTestProfile(t, bandUser, kindBand, "mine_prof band")

	// Planner has one confirmed match with the band.
	m, _, err := proposeMatch(context.Background(), db, planner.ID, band.ID)
	if err != nil {
		t.Fatalf("setup propose failed: %v", err)
	}
	if _, _, err := confirmMatch(context.Background(), db, band.ID, m.ID); err != nil {
		t.Fatalf("setup confirm failed: %v", err)
	}

	t.Run("Profile With Bookkeeping Lists", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/mine", nil)
		req.Header.Set("Authorization", "Bearer "+plannerUser.Token)
		w := httptest.NewRecorder()

		myProfileHandler(db).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Profile          Profile     `json:"profile"`
			SentProposals    []uuid.UUID `json:"sent_proposals"`
			ConfirmedMatches []uuid.UUID `json:"confirmed_matches"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if resp.Profile.ID != planner.ID {
			t.Errorf("Expected own profile, got %s", resp.Profile.ID)
		}
		if len(resp.SentProposals) != 1 || resp.SentProposals[0] != band.ID {
			t.Errorf("Expected sent_proposals to contain the band, got %v", resp.SentProposals)
		}
		if len(resp.ConfirmedMatches) != 1 || resp.ConfirmedMatches[0] != band.ID {
			t.Errorf("Expected confirmed_matches to contain the band, got %v", resp.ConfirmedMatches)
		}
	})

	t.Run("Band Side Has Empty Sent Proposals", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/mine", nil)
		req.Header.Set("Authorization", "Bearer "+bandUser.Token)
		w := httptest.NewRecorder()

		myProfileHandler(db).ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}

		var resp struct {
			SentProposals    []uuid.UUID `json:"sent_proposals"`
			ConfirmedMatches []uuid.UUID `json:"confirmed_matches"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.SentProposals) != 0 {
			t.Errorf("Band never proposed; expected empty sent_proposals, got %v", resp.SentProposals)
		}
		if len(resp.ConfirmedMatches) != 1 || resp.ConfirmedMatches[0] != planner.ID {
			t.Errorf("Expected confirmed_matches to contain the planner, got %v", resp.ConfirmedMatches)
		}
	})

	t.Run("No Profile Yet", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/mine", nil)
		req.Header.Set("Authorization", "Bearer "+bareUser.Token)
		w := httptest.NewRecorder()

		myProfileHandler(db).ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for user without profile, got %d", w.Code)
		}
	})
}

func testGetProfileHandler(t *testing.T) {
	user := createTestUser(t, "get_prof_owner@example.com", "password123")
	viewer := createTestUser(t, "get_prof_viewer@example.com", "password123")
	defer cleanupTestData("get_prof_owner@example.com", "get_prof_viewer@example.com")

	profile := createTestProfile(t, user, kindBand, "get_prof band")

	tests := []struct {
		name           string
		path           string
		token          string
		expectedStatus int
	}{
		{"Existing Profile", "/profiles/" + profile.ID.String(), viewer.Token, http.StatusOK},
		{"Unknown Profile", "/profiles/" + uuid.NewString(), viewer.Token, http.StatusNotFound},
		{"Malformed ID", "/profiles/not-a-uuid", viewer.Token, http.StatusNotFound},
		{"Unauthenticated", "/profiles/" + profile.ID.String(), "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			getProfileHandler(db).ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus == http.StatusOK {
				var got Profile
				json.Unmarshal(w.Body.Bytes(), &got)
				if got.ID != profile.ID || got.Title != profile.Title {
					t.Errorf("Unexpected profile payload: %+v", got)
				}
			}
		})
	}
}

func testDeleteProfileHandler(t *testing.T) {
	t.Run("Non-Owner Cannot Delete", func(t *testing.T) {
		owner := createTestUser(t, "del_prof_owner@example.com", "password123")
		intruder := createTestUser(t, "del_prof_intruder@example.com", "password123")
		defer cleanupTestData("del_prof_owner@example.com", "del_prof_intruder@example.com")

		profile := createTestProfile(t, owner, kindPlanner, "del_prof planner")

		req := httptest.NewRequest(http.MethodDelete, "/profiles/"+profile.ID.String(), nil)
		req.Header.Set("Authorization", "Bearer "+intruder.Token)
		w := httptest.NewRecorder()

		deleteProfileHandler(db).ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("Expected 403, got %d", w.Code)
		}
		var resp map[string]string
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["error"] != "not_owner" {
			t.Errorf("Expected error 'not_owner', got '%s'", resp["error"])
		}
	})

	t.Run("Unknown Profile", func(t *testing.T) {
		user := createTestUser(t, "del_prof_missing@example.com", "password123")
		defer cleanupTestData("del_prof_missing@example.com")

		req := httptest.NewRequest(http.MethodDelete, "/profiles/"+uuid.NewString(), nil)
		req.Header.Set("Authorization", "Bearer "+user.Token)
		w := httptest.NewRecorder()

		deleteProfileHandler(db).ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", w.Code)
		}
	})

	t.Run("Owner Delete Cascades Matches", func(t *testing.T) {
		plannerUser := createTestUser(t, "del_prof_cascade_p@example.com", "password123")
		bandUser := createTestUser(t, "del_prof_cascade_b@example.com", "password123")
		defer cleanupTestData("del_prof_cascade_p@example.com", "del_prof_cascade_b@example.com")

		planner := createTestProfile(t, plannerUser, kindPlanner, "del_prof cascade planner")
		band := createTestProfile(t, bandUser, kindBand, "del_prof cascade band")

		m, _, err := proposeMatch(context.Background(), db, planner.ID, band.ID)
		if err != nil {
			t.Fatalf("setup propose failed: %v", err)
		}
		if _, _, err := confirmMatch(context.Background(), db, band.ID, m.ID); err != nil {
			t.Fatalf("setup confirm failed: %v", err)
		}

		req := httptest.NewRequest(http.MethodDelete, "/profiles/"+planner.ID.String(), nil)
		req.Header.Set("Authorization", "Bearer "+plannerUser.Token)
		w := httptest.NewRecorder()

		deleteProfileHandler(db).ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
		}

		// Profile gone
		gone, err := fetchProfile(db, planner.ID)
		if err != nil {
			t.Fatalf("fetchProfile failed: %v", err)
		}
		if gone != nil {
			t.Errorf("Expected profile to be deleted")
		}

		// The band's side of the ledger is scrubbed too
		if n := countMatchesForPair(t, planner.ID, band.ID); n != 0 {
			t.Errorf("Expected 0 matches after cascade, got %d", n)
		}
		confirmed, err := confirmedMatchIDs(db, band.ID)
		if err != nil {
			t.Fatalf("confirmedMatchIDs failed: %v", err)
		}
		if len(confirmed) != 0 {
			t.Errorf("Expected band's confirmed_matches to be empty, got %v", confirmed)
		}
	})
}

func testProfilesDispatcher(t *testing.T) {
	user := createTestUser(t, "dispatch_prof@example.com", "password123")
	defer cleanupTestData("dispatch_prof@example.com")
	profile := createTestProfile(t, user, kindBand, "dispatch_prof band")

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"Mine Route", http.MethodGet, "/profiles/mine", http.StatusOK},
		{"Get By ID Route", http.MethodGet, "/profiles/" + profile.ID.String(), http.StatusOK},
		{"Propose Route Reaches Handler", http.MethodPost, fmt.Sprintf("/profiles/%s/propose", profile.ID), http.StatusBadRequest},
		{"Invalid Method", http.MethodPatch, "/profiles/" + profile.ID.String(), http.StatusMethodNotAllowed},
		{"Unknown Subroute", http.MethodPost, "/profiles/" + profile.ID.String() + "/follow", http.StatusNotFound},
		{"Too Many Segments", http.MethodGet, "/profiles/a/b/c", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+user.Token)
			w := httptest.NewRecorder()

			profilesDispatcher(db).ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d for %s %s. Body: %s",
					tt.expectedStatus, w.Code, tt.method, tt.path, w.Body.String())
			}
		})
	}
}
