package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InboundBatch groups the tickets registered in one intake session. Its
// date, company and manager are copied onto every ticket it creates.
type InboundBatch struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	InboundDate datatypes.Date `gorm:"not null;index" json:"inbound_date"`
	CompanyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"company_id"`
	Manager     string         `gorm:"type:varchar(100)" json:"manager"`
	Memo        string         `gorm:"type:text" json:"memo"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Tickets []Ticket `gorm:"foreignKey:InboundBatchID" json:"tickets,omitempty"`
}

func (InboundBatch) TableName() string {
	return "inbound_batches"
}

func (b *InboundBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// InboundBatchSummary is the list row for a batch.
type InboundBatchSummary struct {
	InboundBatch
	TicketCount  int64  `json:"ticket_count"`
	ToolsSummary string `json:"tools_summary"`
}
