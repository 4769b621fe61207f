package model

// ViewName selects one workflow-stage projection of the ticket table.
type ViewName string

const (
	ViewInbound  ViewName = "inbound"
	ViewRepair   ViewName = "repair"
	ViewOutbound ViewName = "outbound"
	ViewHistory  ViewName = "history"
)

// Editable ticket fields. Names match the JSON keys of patch requests.
const (
	FieldRepairContent      = "repair_content"
	FieldUsedParts          = "used_parts"
	FieldStatus             = "status"
	FieldOutsourceCompanyID = "outsource_company_id"
	FieldOutboundDate       = "outbound_date"
	FieldEstimateStatus     = "estimate_status"
	FieldTaxInvoice         = "tax_invoice"
)

// View is a status filter plus the set of fields writable through it.
// Every view reads the same as_tickets rows.
type View struct {
	Name     ViewName
	Statuses []TicketStatus
	Editable map[string]bool
}

var views = map[ViewName]View{
	ViewInbound: {
		Name:     ViewInbound,
		Statuses: []TicketStatus{TicketStatusInbound},
	},
	ViewRepair: {
		Name:     ViewRepair,
		Statuses: []TicketStatus{TicketStatusInbound, TicketStatusWaiting},
		Editable: map[string]bool{
			FieldRepairContent:      true,
			FieldUsedParts:          true,
			FieldStatus:             true,
			FieldOutsourceCompanyID: true,
		},
	},
	ViewOutbound: {
		Name:     ViewOutbound,
		Statuses: []TicketStatus{TicketStatusRepaired},
		Editable: map[string]bool{
			FieldOutboundDate:   true,
			FieldEstimateStatus: true,
			FieldTaxInvoice:     true,
		},
	},
	ViewHistory: {
		Name:     ViewHistory,
		Statuses: AllStatuses,
	},
}

func LookupView(name ViewName) (View, bool) {
	v, ok := views[name]
	return v, ok
}

func (v View) Includes(status TicketStatus) bool {
	for _, s := range v.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (v View) CanEdit(field string) bool {
	return v.Editable[field]
}

func (v View) ReadOnly() bool {
	return len(v.Editable) == 0
}
