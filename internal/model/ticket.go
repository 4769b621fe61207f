package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TicketStatus string

const (
	TicketStatusInbound    TicketStatus = "inbound"
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusRepaired   TicketStatus = "repaired"
	TicketStatusOutsourced TicketStatus = "outsourced"
	TicketStatusDisposed   TicketStatus = "disposed"
	TicketStatusShipped    TicketStatus = "shipped"
)

// ActiveStatuses are the states in which a unit is considered in the shop.
// A (tool, serial) pair may hold at most one ticket in any of them.
var ActiveStatuses = []TicketStatus{
	TicketStatusInbound,
	TicketStatusWaiting,
	TicketStatusRepaired,
}

var AllStatuses = []TicketStatus{
	TicketStatusInbound,
	TicketStatusWaiting,
	TicketStatusRepaired,
	TicketStatusOutsourced,
	TicketStatusDisposed,
	TicketStatusShipped,
}

var statusLabels = map[TicketStatus]string{
	TicketStatusInbound:    "Inbound",
	TicketStatusWaiting:    "Waiting for repair",
	TicketStatusRepaired:   "Repaired",
	TicketStatusOutsourced: "Outsourced",
	TicketStatusDisposed:   "Disposed",
	TicketStatusShipped:    "Shipped",
}

func (s TicketStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s TicketStatus) IsActive() bool {
	switch s {
	case TicketStatusInbound, TicketStatusWaiting, TicketStatusRepaired:
		return true
	default:
		return false
	}
}

func (s TicketStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

type Ticket struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InboundBatchID     *uuid.UUID      `gorm:"type:uuid;index" json:"inbound_batch_id"`
	InboundDate        datatypes.Date  `gorm:"not null;index" json:"inbound_date"`
	CompanyID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	Manager            string          `gorm:"type:varchar(100)" json:"manager"`
	ToolID             uuid.UUID       `gorm:"type:uuid;not null;index:idx_as_tickets_unit" json:"tool_id"`
	SerialNumber       string          `gorm:"type:varchar(200);not null;index:idx_as_tickets_unit" json:"serial_number"`
	Symptom            string          `gorm:"type:text" json:"symptom"`
	RepairContent      string          `gorm:"type:text" json:"repair_content"`
	RepairCost         int64           `gorm:"not null" json:"repair_cost"`
	Status             TicketStatus    `gorm:"type:varchar(10);not null;index" json:"status"`
	OutsourceCompanyID *uuid.UUID      `gorm:"type:uuid;index" json:"outsource_company_id"`
	OutboundDate       *datatypes.Date `json:"outbound_date"`
	EstimateStatus     bool            `gorm:"not null" json:"estimate_status"`
	TaxInvoice         bool            `gorm:"not null" json:"tax_invoice"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Company          *Company          `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
	Tool             *Tool             `gorm:"foreignKey:ToolID" json:"tool,omitempty"`
	OutsourceCompany *OutsourceCompany `gorm:"foreignKey:OutsourceCompanyID" json:"outsource_company,omitempty"`
	UsedParts        []Part            `gorm:"many2many:as_ticket_parts;joinForeignKey:TicketID;joinReferences:PartID" json:"used_parts,omitempty"`
}

func (Ticket) TableName() string {
	return "as_tickets"
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Ticket) UnitKey() UnitKey {
	return UnitKey{ToolID: t.ToolID, SerialNumber: t.SerialNumber}
}

// Label renders "[status] company - tool (S/N: serial)". Company and Tool
// must be preloaded for the full form.
func (t *Ticket) Label() string {
	company := t.CompanyID.String()
	if t.Company != nil {
		company = t.Company.Name
	}
	tool := t.ToolID.String()
	if t.Tool != nil {
		tool = t.Tool.Label()
	}
	return fmt.Sprintf("[%s] %s - %s (S/N: %s)", t.Status.Label(), company, tool, t.SerialNumber)
}

// UnitKey identifies one physical unit: a tool model plus its serial number.
type UnitKey struct {
	ToolID       uuid.UUID `json:"tool_id"`
	SerialNumber string    `json:"serial_number"`
}
