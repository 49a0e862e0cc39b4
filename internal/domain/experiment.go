package domain

import (
	"time"

	"github.com/google/uuid"
)

// Experiment defines one complete multi-round trading session.
// Configuration fields are immutable after creation; only StartedAt
// and EndedAt are stamped later.
type Experiment struct {
	ID                  uuid.UUID
	Name                string
	NumRounds           int
	NumTrainingRounds   int
	NumRoundsForPayment int
	NumPlayers          int
	NumGroups           int
	CreatedAt           time.Time
	StartedAt           *time.Time
	EndedAt             *time.Time
}

// Group is a fixed partition of players within one experiment.
type Group struct {
	ID           uuid.UUID
	ExperimentID uuid.UUID
	GroupNumber  int // 1..NumGroups
	CreatedAt    time.Time
}

// Player is a participant bound to exactly one group for the
// duration of the experiment.
type Player struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Name      string
	CreatedAt time.Time
}
