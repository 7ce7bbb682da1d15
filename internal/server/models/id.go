// Package models defines the server-side data models persisted in the database.
package models

import (
	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

// NewID returns a random UUID rendered in base58.
func NewID() string {
	id := uuid.New()
	return base58.Encode(id[:])
}
