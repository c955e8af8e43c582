package models

import (
	"github.com/google/uuid"
)

// Identity is the verified claim set attached to a connection or request.
// It is owned by the external user store; the core only reads it.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// UserPublic is the minimal public projection of a user used when populating
// senders, hosts, participants and members.
type UserPublic struct {
	ID    uuid.UUID `json:"_id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Public converts an Identity to its public projection.
func (i Identity) Public() UserPublic {
	return UserPublic{ID: i.ID, Name: i.Name, Email: i.Email}
}

// UserDirectory maps user IDs to their public fields.
type UserDirectory map[uuid.UUID]UserPublic

// Lookup returns the public fields for id, falling back to an ID-only entry
// when the user is unknown to the store.
func (d UserDirectory) Lookup(id uuid.UUID) UserPublic {
	if u, ok := d[id]; ok {
		return u
	}
	return UserPublic{ID: id}
}
