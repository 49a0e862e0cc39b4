package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency is a tradable asset used in experiments.
// Corresponds to the currencies table in PostgreSQL.
type Currency struct {
	ID        uuid.UUID
	Symbol    string // unique, uppercase ticker
	NameEN    string
	NameHE    string
	ImageURL  string
	CreatedAt time.Time
}
