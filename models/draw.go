package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Draw statuses as stored in the database
const (
	DrawStatusActive   = "active"
	DrawStatusFinished = "finished"
)

// StringList is a JSONB-backed ordered list of field keys
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for StringList: %T", src)
	}
}

// DisplayTemplate configures how a participant's display value is built.
// Exactly one form is used: Fields (ordered field keys joined by spaces) or
// Format (a literal string containing {field} placeholders).
type DisplayTemplate struct {
	Fields []string `json:"fields,omitempty"`
	Format string   `json:"format,omitempty"`
}

// IsZero reports whether no template form has been configured
func (t DisplayTemplate) IsZero() bool {
	return len(t.Fields) == 0 && t.Format == ""
}

func (t DisplayTemplate) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *DisplayTemplate) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = DisplayTemplate{}
		return nil
	default:
		return fmt.Errorf("unsupported type for DisplayTemplate: %T", src)
	}
}

type Draw struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string          `json:"name" gorm:"type:varchar(255);not null"`
	BackgroundImage *string         `json:"background_image" gorm:"type:varchar(500)"`
	AvailableFields StringList      `json:"available_fields" gorm:"type:jsonb;default:'[]'"`
	DisplayTemplate DisplayTemplate `json:"display_template" gorm:"type:jsonb;default:'{}'"`
	Status          string          `json:"status" gorm:"type:varchar(50);not null;default:'active'"`

	// Audit fields
	CreatedAt time.Time  `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Counts populated by listing queries, not stored
	ParticipantCount int `json:"participant_count" gorm:"-"`
	WinnerCount      int `json:"winner_count" gorm:"-"`
}

// IsActive reports whether winners may still be drawn
func (d *Draw) IsActive() bool {
	return d.Status == DrawStatusActive
}
