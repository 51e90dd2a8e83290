package main

import (
	"net/http"
	"os"
)

// withCORS sets the headers browsers need to call the backend from the
// frontend origin. The Vite dev server and the Docker frontend are allowed by
// default; FRONTEND_ORIGIN adds a deployment-specific origin on top.
func withCORS(next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://127.0.0.1:5173": true,
		"http://localhost:3001": true,
		"http://127.0.0.1:3001": true,
	}
	if extra := os.Getenv("FRONTEND_ORIGIN"); extra != "" {
		allowed[extra] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:3001")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Preflight requests stop here
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
