package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"as-service/internal/cache"
	"as-service/internal/model"
	"as-service/internal/repository"
	"as-service/internal/utils"
)

const (
	partsSummaryLen  = 50
	repairSummaryLen = 25

	defaultPageSize = 50
	maxPageSize     = 200
)

// ProjectionService serves the per-stage views of the ticket table and the
// field-level edits each of them allows.
type ProjectionService struct {
	repos       *repository.Repositories
	transitions *TransitionService
	costs       *CostService
	cache       *cache.DashboardCache
	log         zerolog.Logger
}

func NewProjectionService(repos *repository.Repositories, transitions *TransitionService, costs *CostService, dashboardCache *cache.DashboardCache, log zerolog.Logger) *ProjectionService {
	return &ProjectionService{
		repos:       repos,
		transitions: transitions,
		costs:       costs,
		cache:       dashboardCache,
		log:         log,
	}
}

type ListFilter struct {
	Statuses       []model.TicketStatus
	CompanyID      *uuid.UUID
	BrandID        *uuid.UUID
	ToolID         *uuid.UUID
	BatchID        *uuid.UUID
	InboundFrom    *datatypes.Date
	InboundTo      *datatypes.Date
	EstimateStatus *bool
	TaxInvoice     *bool
	Search         *string
	Page           int
	Limit          int
}

// TicketRow is a ticket plus the derived display columns of the views.
type TicketRow struct {
	model.Ticket
	Label         string `json:"label"`
	StatusLabel   string `json:"status_label"`
	PartsSummary  string `json:"parts_summary"`
	RepairSummary string `json:"repair_summary"`
}

func NewTicketRow(t model.Ticket) TicketRow {
	names := make([]string, 0, len(t.UsedParts))
	for _, p := range t.UsedParts {
		names = append(names, p.Name)
	}
	return TicketRow{
		Ticket:        t,
		Label:         t.Label(),
		StatusLabel:   t.Status.Label(),
		PartsSummary:  utils.Truncate(strings.Join(names, ", "), partsSummaryLen),
		RepairSummary: utils.Truncate(t.RepairContent, repairSummaryLen),
	}
}

func (s *ProjectionService) view(name model.ViewName) (model.View, error) {
	v, ok := model.LookupView(name)
	if !ok {
		return model.View{}, fmt.Errorf("%w: view %q", ErrNotFound, name)
	}
	return v, nil
}

// ListByStatus returns the tickets whose status is in statuses, newest
// intake first.
func (s *ProjectionService) ListByStatus(ctx context.Context, statuses []model.TicketStatus, filter ListFilter) ([]model.Ticket, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	return s.repos.Ticket.List(ctx, repository.TicketListFilter{
		Statuses:       statuses,
		CompanyID:      filter.CompanyID,
		BrandID:        filter.BrandID,
		ToolID:         filter.ToolID,
		BatchID:        filter.BatchID,
		InboundFrom:    filter.InboundFrom,
		InboundTo:      filter.InboundTo,
		EstimateStatus: filter.EstimateStatus,
		TaxInvoice:     filter.TaxInvoice,
		Search:         filter.Search,
		Limit:          limit,
		Offset:         (page - 1) * limit,
	})
}

func (s *ProjectionService) List(ctx context.Context, name model.ViewName, filter ListFilter) ([]TicketRow, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}

	statuses := v.Statuses
	if len(filter.Statuses) > 0 {
		statuses = make([]model.TicketStatus, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			if v.Includes(st) {
				statuses = append(statuses, st)
			}
		}
		if len(statuses) == 0 {
			return []TicketRow{}, nil
		}
	}

	tickets, err := s.ListByStatus(ctx, statuses, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]TicketRow, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, NewTicketRow(t))
	}
	return rows, nil
}

// Get returns the ticket only while its status belongs to the view.
func (s *ProjectionService) Get(ctx context.Context, name model.ViewName, id uuid.UUID) (*TicketRow, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}
	ticket, err := s.repos.Ticket.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !v.Includes(ticket.Status) {
		return nil, ErrNotFound
	}
	row := NewTicketRow(*ticket)
	return &row, nil
}

// TicketPatch holds the fields of a view edit. Nil fields are left alone.
type TicketPatch struct {
	RepairContent      *string
	UsedParts          *[]uuid.UUID
	Status             *model.TicketStatus
	OutsourceCompanyID *uuid.UUID
	OutboundDate       *datatypes.Date
	EstimateStatus     *bool
	TaxInvoice         *bool
}

func (p TicketPatch) Fields() []string {
	var fields []string
	if p.RepairContent != nil {
		fields = append(fields, model.FieldRepairContent)
	}
	if p.UsedParts != nil {
		fields = append(fields, model.FieldUsedParts)
	}
	if p.Status != nil {
		fields = append(fields, model.FieldStatus)
	}
	if p.OutsourceCompanyID != nil {
		fields = append(fields, model.FieldOutsourceCompanyID)
	}
	if p.OutboundDate != nil {
		fields = append(fields, model.FieldOutboundDate)
	}
	if p.EstimateStatus != nil {
		fields = append(fields, model.FieldEstimateStatus)
	}
	if p.TaxInvoice != nil {
		fields = append(fields, model.FieldTaxInvoice)
	}
	return fields
}

// Update applies a patch through a view. Fields the view does not expose
// for writing are rejected before anything is written. Part edits recompute
// the cost and status edits follow the transition rules, all in one
// transaction.
func (s *ProjectionService) Update(ctx context.Context, principal model.Principal, name model.ViewName, id uuid.UUID, patch TicketPatch) (*TicketRow, error) {
	v, err := s.view(name)
	if err != nil {
		return nil, err
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	var denied []string
	for _, f := range fields {
		if !v.CanEdit(f) {
			denied = append(denied, f)
		}
	}
	if len(denied) > 0 {
		return nil, fmt.Errorf("%w: %s view cannot edit %s", ErrPermissionDenied, v.Name, strings.Join(denied, ", "))
	}

	var (
		cost       *CostResult
		transition *TransitionResult
	)
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		ticket, err := tx.Ticket.GetByID(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if !v.Includes(ticket.Status) {
			return ErrNotFound
		}

		updates := map[string]interface{}{}
		if patch.RepairContent != nil {
			updates["repair_content"] = *patch.RepairContent
		}
		if patch.OutboundDate != nil {
			updates["outbound_date"] = *patch.OutboundDate
		}
		if patch.EstimateStatus != nil {
			updates["estimate_status"] = *patch.EstimateStatus
		}
		if patch.TaxInvoice != nil {
			updates["tax_invoice"] = *patch.TaxInvoice
		}
		// An outsource company rides on the transition when the ticket is
		// being outsourced, otherwise it is stored directly.
		viaTransition := patch.Status != nil && *patch.Status == model.TicketStatusOutsourced
		if patch.OutsourceCompanyID != nil && !viaTransition {
			if _, err := tx.OutsourceCompany.GetByID(ctx, *patch.OutsourceCompanyID); err != nil {
				return notFound(err)
			}
			updates["outsource_company_id"] = *patch.OutsourceCompanyID
		}
		if err := tx.Ticket.UpdateFields(ctx, id, updates); err != nil {
			return err
		}

		if patch.UsedParts != nil {
			if cost, err = s.costs.setParts(ctx, tx, id, *patch.UsedParts); err != nil {
				return err
			}
		}

		if patch.Status != nil {
			input := TransitionInput{TicketIDs: []uuid.UUID{id}, Target: *patch.Status}
			if viaTransition {
				input.OutsourceCompanyID = patch.OutsourceCompanyID
			}
			if transition, err = s.transitions.apply(ctx, tx, principal.Actor(), input); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.costs.committed(ctx, cost)
	s.transitions.committed(ctx, principal, transition)
	s.log.Info().
		Str("ticket_id", id.String()).
		Str("view", string(v.Name)).
		Strs("fields", fields).
		Str("actor", principal.Actor()).
		Msg("ticket updated")

	ticket, err := s.repos.Ticket.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	row := NewTicketRow(*ticket)
	return &row, nil
}
