package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentAttempt is an append-only record of one capture or confirmation outcome.
type PaymentAttempt struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	Method       enums.PaymentMethod        `gorm:"column:method;type:text;not null"`
	Processor    string                     `gorm:"column:processor;not null"`
	Amount       decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Status       enums.PaymentAttemptStatus `gorm:"column:status;type:text;not null"`
	Reference    *string                    `gorm:"column:reference"`
	ErrorMessage *string                    `gorm:"column:error_message"`
	Detail       json.RawMessage            `gorm:"column:detail;type:jsonb"`
	CreatedAt    time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
