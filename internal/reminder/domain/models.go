package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Reminder is the log of every payment-reminder attempt. The dispatcher
// consults the latest row per invoice to avoid nagging a customer more
// than once per cooldown window.
type Reminder struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ShopID    snowflake.ID `gorm:"not null;index" json:"shop_id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Channel   string       `gorm:"not null;default:'email'" json:"channel"`
	SentTo    string       `json:"sent_to,omitempty"`
	Outcome   Outcome      `gorm:"not null" json:"outcome"`
	Detail    string       `json:"detail,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Reminder) TableName() string {
	return "reminders"
}
