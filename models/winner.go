package models

import (
	"time"

	"github.com/google/uuid"
)

// Winner marks a participant as drawn in a draw. The database enforces at
// most one winner row per (draw_id, participant_id) pair.
type Winner struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DrawID        uuid.UUID `json:"draw_id" gorm:"type:uuid;not null;index"`
	ParticipantID uuid.UUID `json:"participant_id" gorm:"type:uuid;not null"`
	WonAt         time.Time `json:"won_at" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`

	// Joined participant data, populated by winner listing queries
	Participant *Participant `json:"participant,omitempty" gorm:"-"`
}
