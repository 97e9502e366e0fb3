package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ParticipantData holds one imported row as a mapping from normalized field
// key to raw cell value. Keys absent from the map are treated as empty.
type ParticipantData map[string]string

// Get returns the value for a field key, or empty string when absent
func (d ParticipantData) Get(field string) string {
	if d == nil {
		return ""
	}
	return d[field]
}

func (d ParticipantData) Value() (driver.Value, error) {
	if d == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(d)
}

func (d *ParticipantData) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		*d = nil
		return nil
	default:
		return fmt.Errorf("unsupported type for ParticipantData: %T", src)
	}
}

type Participant struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DrawID       uuid.UUID       `json:"draw_id" gorm:"type:uuid;not null;index"`
	Data         ParticipantData `json:"data" gorm:"type:jsonb;default:'{}'"`
	DisplayValue string          `json:"display_value" gorm:"type:text;not null"`
	CreatedAt    time.Time       `json:"created_at" gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"default:CURRENT_TIMESTAMP"`
}
