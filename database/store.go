package database

import (
	"database/sql"

	"promptarena/types"
)

// Store binds the package functions to one connection so it can be handed to
// the game controllers as their recorder.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordAttempt stores a match-game attempt
func (s *Store) RecordAttempt(a *types.Attempt) error {
	return StoreAttempt(s.db, a)
}

// RecordAttack stores an attack round
func (s *Store) RecordAttack(r *types.AttackRecord) error {
	return StoreAttack(s.db, r)
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}
