package models

import (
	"encoding/json"
	"time"
)

// CartSnapshot stores one serialized cart per session; rows are replaced whole.
type CartSnapshot struct {
	SessionID string          `gorm:"column:session_id;primaryKey"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ExpiresAt *time.Time      `gorm:"column:expires_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (CartSnapshot) TableName() string { return "cart_snapshots" }
