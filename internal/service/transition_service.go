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

// allowedTransitions is enforced only in strict mode. Nothing moves back
// to inbound in either mode.
var allowedTransitions = map[model.TicketStatus]map[model.TicketStatus]bool{
	model.TicketStatusInbound: {
		model.TicketStatusWaiting:    true,
		model.TicketStatusRepaired:   true,
		model.TicketStatusOutsourced: true,
		model.TicketStatusDisposed:   true,
	},
	model.TicketStatusWaiting: {
		model.TicketStatusRepaired:   true,
		model.TicketStatusOutsourced: true,
		model.TicketStatusDisposed:   true,
	},
	model.TicketStatusRepaired: {
		model.TicketStatusShipped:    true,
		model.TicketStatusWaiting:    true,
		model.TicketStatusOutsourced: true,
		model.TicketStatusDisposed:   true,
	},
	model.TicketStatusOutsourced: {
		model.TicketStatusRepaired: true,
		model.TicketStatusShipped:  true,
		model.TicketStatusDisposed: true,
	},
}

func CanTransition(from, to model.TicketStatus) bool {
	return allowedTransitions[from][to]
}

type TransitionOptions struct {
	Strict   bool
	Location *time.Location
	Now      func() time.Time
}

type TransitionService struct {
	repos     *repository.Repositories
	cache     *cache.DashboardCache
	publisher events.Publisher
	log       zerolog.Logger
	strict    bool
	loc       *time.Location
	now       func() time.Time
}

func NewTransitionService(repos *repository.Repositories, dashboardCache *cache.DashboardCache, publisher events.Publisher, log zerolog.Logger, opts TransitionOptions) *TransitionService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TransitionService{
		repos:     repos,
		cache:     dashboardCache,
		publisher: orNop(publisher),
		log:       log,
		strict:    opts.Strict,
		loc:       opts.Location,
		now:       opts.Now,
	}
}

type TransitionInput struct {
	TicketIDs          []uuid.UUID
	Target             model.TicketStatus
	OutsourceCompanyID *uuid.UUID
}

type TransitionResult struct {
	Status       model.TicketStatus `json:"status"`
	Updated      int64              `json:"updated"`
	OutboundDate *datatypes.Date    `json:"outbound_date,omitempty"`
	TicketIDs    []uuid.UUID        `json:"-"`
}

// Apply moves every listed ticket to the target status in one statement.
// Moving to shipped stamps today's date as the outbound date.
func (s *TransitionService) Apply(ctx context.Context, principal model.Principal, input TransitionInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		result, err = s.apply(ctx, tx, principal.Actor(), input)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	s.committed(ctx, principal, result)
	return result, nil
}

func (s *TransitionService) MarkWaiting(ctx context.Context, principal model.Principal, ids []uuid.UUID) (*TransitionResult, error) {
	return s.Apply(ctx, principal, TransitionInput{TicketIDs: ids, Target: model.TicketStatusWaiting})
}

func (s *TransitionService) MarkRepaired(ctx context.Context, principal model.Principal, ids []uuid.UUID) (*TransitionResult, error) {
	return s.Apply(ctx, principal, TransitionInput{TicketIDs: ids, Target: model.TicketStatusRepaired})
}

func (s *TransitionService) MarkOutsourced(ctx context.Context, principal model.Principal, ids []uuid.UUID, outsourceCompanyID *uuid.UUID) (*TransitionResult, error) {
	return s.Apply(ctx, principal, TransitionInput{
		TicketIDs:          ids,
		Target:             model.TicketStatusOutsourced,
		OutsourceCompanyID: outsourceCompanyID,
	})
}

func (s *TransitionService) MarkDisposed(ctx context.Context, principal model.Principal, ids []uuid.UUID) (*TransitionResult, error) {
	return s.Apply(ctx, principal, TransitionInput{TicketIDs: ids, Target: model.TicketStatusDisposed})
}

func (s *TransitionService) MarkShipped(ctx context.Context, principal model.Principal, ids []uuid.UUID) (*TransitionResult, error) {
	return s.Apply(ctx, principal, TransitionInput{TicketIDs: ids, Target: model.TicketStatusShipped})
}

func (s *TransitionService) apply(ctx context.Context, tx *repository.Repositories, actor string, input TransitionInput) (*TransitionResult, error) {
	target := input.Target
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}
	if target == model.TicketStatusInbound {
		return nil, &TransitionError{Target: target}
	}
	if input.OutsourceCompanyID != nil && target != model.TicketStatusOutsourced {
		return nil, fmt.Errorf("%w: outsource company only applies to outsourced tickets", ErrInvalidInput)
	}

	ids := uniqueIDs(input.TicketIDs)
	result := &TransitionResult{Status: target, TicketIDs: ids}
	if len(ids) == 0 {
		return result, nil
	}

	if input.OutsourceCompanyID != nil {
		if _, err := tx.OutsourceCompany.GetByID(ctx, *input.OutsourceCompanyID); err != nil {
			return nil, notFound(err)
		}
	}

	current, err := tx.Ticket.StatusesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if s.strict {
		var rejected []uuid.UUID
		for _, id := range ids {
			from, ok := current[id]
			if ok && !CanTransition(from, target) {
				rejected = append(rejected, id)
			}
		}
		if len(rejected) > 0 {
			return nil, &TransitionError{Target: target, TicketIDs: rejected}
		}
	}

	update := repository.StatusUpdate{
		Status:             target,
		OutsourceCompanyID: input.OutsourceCompanyID,
	}
	if target == model.TicketStatusShipped {
		today := utils.DateOf(s.now(), s.loc)
		update.OutboundDate = &today
		result.OutboundDate = &today
	}

	updated, err := tx.Ticket.UpdateStatus(ctx, ids, update)
	if err != nil {
		return nil, err
	}
	result.Updated = updated

	changedAt := s.now().UTC()
	logs := make([]model.TicketStatusLog, 0, len(current))
	for _, id := range ids {
		from, ok := current[id]
		if !ok {
			continue
		}
		logs = append(logs, model.TicketStatusLog{
			TicketID:   id,
			FromStatus: from,
			ToStatus:   target,
			Actor:      actor,
			ChangedAt:  changedAt,
		})
	}
	if err := tx.StatusLog.CreateMany(ctx, logs); err != nil {
		return nil, err
	}
	return result, nil
}

// History lists the recorded status changes of a ticket, oldest first.
func (s *TransitionService) History(ctx context.Context, ticketID uuid.UUID) ([]model.TicketStatusLog, error) {
	if _, err := s.repos.Ticket.GetByID(ctx, ticketID); err != nil {
		return nil, notFound(err)
	}
	return s.repos.StatusLog.ListByTicket(ctx, ticketID)
}

func (s *TransitionService) committed(ctx context.Context, principal model.Principal, result *TransitionResult) {
	if result == nil || result.Updated == 0 {
		return
	}
	s.cache.Invalidate(ctx)
	publish(ctx, s.log, s.publisher, events.New(events.TypeTicketStatusChanged, principal.Actor(), events.TicketStatusChanged{
		TicketIDs: result.TicketIDs,
		Status:    string(result.Status),
		Updated:   result.Updated,
	}))
	s.log.Info().
		Str("status", string(result.Status)).
		Int64("updated", result.Updated).
		Str("actor", principal.Actor()).
		Msg("ticket status changed")
}
