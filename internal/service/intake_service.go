package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"as-service/internal/cache"
	"as-service/internal/events"
	"as-service/internal/model"
	"as-service/internal/repository"
	"as-service/internal/utils"
)

type IntakeService struct {
	repos     *repository.Repositories
	cache     *cache.DashboardCache
	publisher events.Publisher
	log       zerolog.Logger
}

func NewIntakeService(repos *repository.Repositories, dashboardCache *cache.DashboardCache, publisher events.Publisher, log zerolog.Logger) *IntakeService {
	return &IntakeService{
		repos:     repos,
		cache:     dashboardCache,
		publisher: orNop(publisher),
		log:       log,
	}
}

type IntakeBatchInput struct {
	// BatchID is set when rows are added to or edited in an existing batch.
	BatchID     *uuid.UUID
	InboundDate datatypes.Date
	CompanyID   uuid.UUID
	Manager     string
	Memo        string
	Rows        []IntakeRowInput
}

type IntakeResult struct {
	BatchID   uuid.UUID      `json:"batch_id"`
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Deleted   int            `json:"deleted"`
	Submitted int            `json:"submitted"`
	Expanded  bool           `json:"expanded"`
	Tickets   []model.Ticket `json:"tickets"`
}

// SubmitBatch registers a batch of intake rows. Every row is checked
// against the rest of the batch and against tickets already in the shop;
// any failure rolls the whole batch back.
func (s *IntakeService) SubmitBatch(ctx context.Context, principal model.Principal, input IntakeBatchInput) (*IntakeResult, error) {
	if err := validateIntakeHeader(input.InboundDate, input.CompanyID); err != nil {
		return nil, err
	}

	candidates, submitted, expanded := ExpandRows(input.Rows)
	deleted := DeletedTicketIDs(input.Rows)
	if input.BatchID == nil {
		if len(deleted) > 0 || hasTicketRefs(candidates) {
			return nil, fmt.Errorf("%w: existing tickets can only be edited through their batch", ErrInvalidInput)
		}
		if len(candidates) == 0 {
			return nil, missingFields("rows")
		}
	}

	tools, err := s.loadTools(ctx, candidates)
	if err != nil {
		return nil, err
	}

	if dups := FindDuplicates(candidates); len(dups) > 0 {
		return nil, &ValidationError{
			Kind:    KindDuplicateInBatch,
			Message: "duplicate serial numbers in batch",
			Pairs:   labelUnits(dups, tools),
		}
	}

	result := &IntakeResult{Submitted: submitted, Expanded: expanded}
	var created []*model.Ticket

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Company.GetByID(ctx, input.CompanyID); err != nil {
			return notFound(err)
		}

		batch := &model.InboundBatch{
			InboundDate: input.InboundDate,
			CompanyID:   input.CompanyID,
			Manager:     input.Manager,
			Memo:        input.Memo,
		}
		owned := make(map[uuid.UUID]bool)
		if input.BatchID != nil {
			current, err := tx.Batch.GetByID(ctx, *input.BatchID)
			if err != nil {
				return notFound(err)
			}
			for _, t := range current.Tickets {
				owned[t.ID] = true
			}
			batch.ID = current.ID
			batch.CreatedAt = current.CreatedAt
			if err := tx.Batch.UpdateHeader(ctx, batch); err != nil {
				return notFound(err)
			}
		} else if err := tx.Batch.Create(ctx, batch); err != nil {
			return err
		}
		result.BatchID = batch.ID

		for _, id := range deleted {
			if !owned[id] {
				return fmt.Errorf("%w: ticket %s is not part of batch", ErrNotFound, id)
			}
		}
		n, err := tx.Ticket.DeleteFromBatch(ctx, batch.ID, deleted)
		if err != nil {
			return err
		}
		result.Deleted = int(n)

		var editing []uuid.UUID
		keys := make([]model.UnitKey, 0, len(candidates))
		for _, c := range candidates {
			if c.TicketID != nil {
				if !owned[*c.TicketID] {
					return fmt.Errorf("%w: ticket %s is not part of batch", ErrNotFound, *c.TicketID)
				}
				editing = append(editing, *c.TicketID)
			}
			keys = append(keys, c.Key())
		}

		conflicts, err := tx.Ticket.FindActiveUnits(ctx, keys, editing)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ValidationError{
				Kind:    KindActiveConflict,
				Message: "units already have an open ticket",
				Pairs:   labelTickets(conflicts),
			}
		}

		// Edited rows may trade serials with each other, so they first move
		// off their current unit key.
		if len(editing) > 1 {
			for _, id := range editing {
				if err := tx.Ticket.UpdateFields(ctx, id, map[string]interface{}{
					"serial_number": parkedSerial(id),
				}); err != nil {
					return err
				}
			}
		}

		for _, c := range candidates {
			if c.TicketID != nil {
				if err := tx.Ticket.UpdateFields(ctx, *c.TicketID, map[string]interface{}{
					"tool_id":       c.ToolID,
					"serial_number": c.SerialNumber,
					"symptom":       c.Symptom,
				}); err != nil {
					return err
				}
				result.Updated++
				continue
			}
			created = append(created, &model.Ticket{
				InboundBatchID: &batch.ID,
				InboundDate:    input.InboundDate,
				CompanyID:      input.CompanyID,
				Manager:        input.Manager,
				ToolID:         c.ToolID,
				SerialNumber:   c.SerialNumber,
				Symptom:        c.Symptom,
				Status:         model.TicketStatusInbound,
			})
		}
		return tx.Ticket.CreateMany(ctx, created)
	})
	if err != nil {
		return nil, storeError(err)
	}

	result.Created = len(created)
	result.Tickets = make([]model.Ticket, 0, len(created))
	ticketIDs := make([]uuid.UUID, 0, len(created))
	for _, t := range created {
		if tool, ok := tools[t.ToolID]; ok {
			tool := tool
			t.Tool = &tool
		}
		result.Tickets = append(result.Tickets, *t)
		ticketIDs = append(ticketIDs, t.ID)
	}

	s.cache.Invalidate(ctx)
	publish(ctx, s.log, s.publisher, events.New(events.TypeBatchReceived, principal.Actor(), events.BatchReceived{
		BatchID:   result.BatchID,
		CompanyID: input.CompanyID,
		Created:   result.Created,
		Updated:   result.Updated,
		Deleted:   result.Deleted,
		Submitted: result.Submitted,
		TicketIDs: ticketIDs,
	}))
	s.log.Info().
		Str("batch_id", result.BatchID.String()).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Int("submitted", result.Submitted).
		Str("actor", principal.Actor()).
		Msg("intake batch committed")

	return result, nil
}

type CreateTicketInput struct {
	InboundDate  datatypes.Date
	CompanyID    uuid.UUID
	Manager      string
	ToolID       uuid.UUID
	SerialNumber string
	Symptom      string
}

// CreateTicket registers one unit without a batch. The active-unit check is
// the same as for batch intake.
func (s *IntakeService) CreateTicket(ctx context.Context, principal model.Principal, input CreateTicketInput) (*model.Ticket, error) {
	if err := validateIntakeHeader(input.InboundDate, input.CompanyID); err != nil {
		return nil, err
	}
	serial := utils.NormalizeSerial(input.SerialNumber)
	var missing []string
	if input.ToolID == uuid.Nil {
		missing = append(missing, "tool_id")
	}
	if serial == "" {
		missing = append(missing, "serial_number")
	}
	if len(missing) > 0 {
		return nil, missingFields(missing...)
	}

	ticket := &model.Ticket{
		InboundDate:  input.InboundDate,
		CompanyID:    input.CompanyID,
		Manager:      input.Manager,
		ToolID:       input.ToolID,
		SerialNumber: serial,
		Symptom:      input.Symptom,
		Status:       model.TicketStatusInbound,
	}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := tx.Company.GetByID(ctx, input.CompanyID); err != nil {
			return notFound(err)
		}
		tool, err := tx.Tool.GetByID(ctx, input.ToolID)
		if err != nil {
			return notFound(err)
		}
		conflicts, err := tx.Ticket.FindActiveUnits(ctx, []model.UnitKey{ticket.UnitKey()}, nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ValidationError{
				Kind:    KindActiveConflict,
				Message: "unit already has an open ticket",
				Pairs:   labelTickets(conflicts),
			}
		}
		if err := tx.Ticket.Create(ctx, ticket); err != nil {
			return err
		}
		ticket.Tool = tool
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.cache.Invalidate(ctx)
	s.log.Info().
		Str("ticket_id", ticket.ID.String()).
		Str("actor", principal.Actor()).
		Msg("ticket registered")
	return ticket, nil
}

func validateIntakeHeader(inboundDate datatypes.Date, companyID uuid.UUID) error {
	var missing []string
	if time.Time(inboundDate).IsZero() {
		missing = append(missing, "inbound_date")
	}
	if companyID == uuid.Nil {
		missing = append(missing, "company_id")
	}
	if len(missing) > 0 {
		return missingFields(missing...)
	}
	return nil
}

func parkedSerial(id uuid.UUID) string {
	return "~" + id.String()
}

func hasTicketRefs(candidates []CandidateRow) bool {
	for _, c := range candidates {
		if c.TicketID != nil {
			return true
		}
	}
	return false
}

func (s *IntakeService) loadTools(ctx context.Context, candidates []CandidateRow) (map[uuid.UUID]model.Tool, error) {
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ToolID)
	}
	ids = uniqueIDs(ids)

	tools, err := s.repos.Tool.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Tool, len(tools))
	for _, t := range tools {
		byID[t.ID] = t
	}

	var unknown []UnitError
	seen := make(map[uuid.UUID]bool)
	for _, c := range candidates {
		if _, ok := byID[c.ToolID]; ok || seen[c.ToolID] {
			continue
		}
		seen[c.ToolID] = true
		unknown = append(unknown, UnitError{ToolID: c.ToolID, ToolLabel: c.ToolID.String(), SerialNumber: c.SerialNumber})
	}
	if len(unknown) > 0 {
		return nil, &ValidationError{
			Kind:    KindUnknownTool,
			Message: "unknown tool",
			Pairs:   unknown,
		}
	}
	return byID, nil
}

func labelUnits(keys []model.UnitKey, tools map[uuid.UUID]model.Tool) []UnitError {
	out := make([]UnitError, 0, len(keys))
	for _, k := range keys {
		label := k.ToolID.String()
		if tool, ok := tools[k.ToolID]; ok {
			label = tool.Label()
		}
		out = append(out, UnitError{ToolID: k.ToolID, ToolLabel: label, SerialNumber: k.SerialNumber})
	}
	return out
}

func labelTickets(tickets []model.Ticket) []UnitError {
	out := make([]UnitError, 0, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		label := t.ToolID.String()
		if t.Tool != nil {
			label = t.Tool.Label()
		}
		out = append(out, UnitError{ToolID: t.ToolID, ToolLabel: label, SerialNumber: t.SerialNumber})
	}
	return out
}

type BatchFilter struct {
	CompanyID *uuid.UUID
	Page      int
	Limit     int
}

func (s *IntakeService) ListBatches(ctx context.Context, filter BatchFilter) ([]model.InboundBatchSummary, error) {
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
	return s.repos.Batch.List(ctx, repository.BatchListFilter{
		CompanyID: filter.CompanyID,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
}

func (s *IntakeService) GetBatch(ctx context.Context, id uuid.UUID) (*model.InboundBatch, error) {
	batch, err := s.repos.Batch.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return batch, nil
}
