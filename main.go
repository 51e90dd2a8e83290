package main

import (
	"log"
	"net/http"
	"os"
)

// JWT secret from environment variable or fallback
func getJWTSecret() []byte {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("your_secret_key_please_change_in_production")
}

var jwtSecret = getJWTSecret()

func main() {
	initDB()

	mux := http.NewServeMux()

	// Core auth endpoints
	mux.Handle("/register", registerHandler(db))
	mux.Handle("/login", loginHandler(db))

	// Profile directory
	mux.Handle("/profiles", createProfileHandler(db)) // POST /profiles
	mux.Handle("/profiles/", profilesDispatcher(db))  // GET/DELETE /profiles/{id}, POST /profiles/{id}/propose

	// Match protocol
	mux.Handle("/matches/", matchesActionsRouter(db)) // pending/confirmed/show/confirm/withdraw

	// Discovery
	mux.Handle("/candidates", candidatesHandler(db)) // GET /candidates

	// WebSocket event feed (proposals, mutual matches, withdrawals)
	mux.Handle("/ws/events", wsEventsHandler(db))

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Default().Println("Starting Stagelink backend on port " + port + "...")
	http.ListenAndServe(":"+port, withCORS(mux))
}
