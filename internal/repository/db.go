package repository

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver registration
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 25
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 5 * time.Minute

	// Postgres unique_violation, raised when a duplicate (case_id, sha256)
	// or duplicate username slips past the application-level check.
	pgUniqueViolationCode = "23505"
)

// NewPostgresDB opens and verifies a PostgreSQL connection pool.
func NewPostgresDB(dsn string) (*sqlx.DB, error) {
	log.Printf("[DB] Connecting to PostgreSQL...")

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err = db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("[DB] Closing connection after failed ping: %v", closeErr)
		}
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	log.Println("[DB] PostgreSQL connection established.")
	return db, nil
}
