package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketStatusLog records one status change of one ticket. Rows are only
// ever appended.
type TicketStatusLog struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"ticket_id"`
	FromStatus TicketStatus `gorm:"type:varchar(10);not null" json:"from_status"`
	ToStatus   TicketStatus `gorm:"type:varchar(10);not null" json:"to_status"`
	Actor      string       `gorm:"type:varchar(100)" json:"actor"`
	ChangedAt  time.Time    `gorm:"not null;index" json:"changed_at"`
}

func (TicketStatusLog) TableName() string {
	return "as_ticket_status_logs"
}

func (l *TicketStatusLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
