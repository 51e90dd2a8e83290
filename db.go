package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver
)

var db *sql.DB

func initDB() {
	// Get database URL from environment variable, fallback to default for development
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = "user=admin password=password dbname=stagelinkdb sslmode=disable"
		log.Default().Println("Warning: DATABASE_URL not set, using default connection string")
	}

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Error connecting to the database:", err)
	}
	err = db.Ping()
	if err != nil {
		log.Fatal("Cannot reach the database:", err)
	}
	log.Default().Println("Database connection established successfully")

	if err := ensureSchema(db); err != nil {
		log.Fatal("Error initializing database schema:", err)
	}
}

// ensureSchema creates the tables and indexes on an empty database. Every
// statement is idempotent, so restarting against an existing database is safe.
//
// The unique index over (LEAST, GREATEST) of the two profile ids is what makes
// a match pair unique regardless of which side proposed first; insertMatch
// relies on it to lose create races cleanly.
func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			user_id INT UNIQUE NOT NULL REFERENCES users(id),
			kind TEXT NOT NULL CHECK (kind IN ('planner', 'band')),
			title TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			side_a_profile_id UUID NOT NULL REFERENCES profiles(id),
			side_a_accepted BOOLEAN NOT NULL,
			side_b_profile_id UUID NOT NULL REFERENCES profiles(id),
			side_b_accepted BOOLEAN NOT NULL,
			is_mutual BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (side_a_profile_id <> side_b_profile_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS matches_pair_idx ON matches (
			LEAST(side_a_profile_id, side_b_profile_id),
			GREATEST(side_a_profile_id, side_b_profile_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sent_proposals (
			profile_id UUID NOT NULL REFERENCES profiles(id),
			target_profile_id UUID NOT NULL REFERENCES profiles(id),
			PRIMARY KEY (profile_id, target_profile_id)
		)`,
		`CREATE TABLE IF NOT EXISTS confirmed_matches (
			profile_id UUID NOT NULL REFERENCES profiles(id),
			peer_profile_id UUID NOT NULL REFERENCES profiles(id),
			PRIMARY KEY (profile_id, peer_profile_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
