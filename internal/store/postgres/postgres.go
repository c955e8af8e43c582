// Package postgres implements the store ports on PostgreSQL via pgx.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
)

// New returns all repositories backed by pool.
func New(pool *pgxpool.Pool) store.Store {
	return store.Store{
		Rooms:    NewRoomRepository(pool),
		Messages: NewMessageRepository(pool),
		Sessions: NewSessionRepository(pool),
		Users:    NewUserRepository(pool),
	}
}

// wrap maps pgx.ErrNoRows to a NotFound error and everything else to Storage.
func wrap(op, notFound string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(notFound)
	}
	return apperr.Storage(op, err)
}
