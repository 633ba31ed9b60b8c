package models

import "github.com/google/uuid"

// assignID gives rows a client-side id so inserts behave the same on every dialect.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
