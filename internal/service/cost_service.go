package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"as-service/internal/events"
	"as-service/internal/repository"
)

type CostService struct {
	repos     *repository.Repositories
	publisher events.Publisher
	log       zerolog.Logger
}

func NewCostService(repos *repository.Repositories, publisher events.Publisher, log zerolog.Logger) *CostService {
	return &CostService{
		repos:     repos,
		publisher: orNop(publisher),
		log:       log,
	}
}

type CostResult struct {
	TicketID uuid.UUID `json:"ticket_id"`
	Cost     int64     `json:"cost"`
	Changed  bool      `json:"changed"`
}

// Recompute sets repair_cost to the sum of the ticket's part prices. The
// column is written only when the sum differs from the stored value.
func (s *CostService) Recompute(ctx context.Context, ticketID uuid.UUID) (*CostResult, error) {
	var result *CostResult
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		result, err = s.recompute(ctx, tx, ticketID)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	s.committed(ctx, result)
	return result, nil
}

// SetParts replaces the ticket's used parts and recomputes its cost in the
// same transaction.
func (s *CostService) SetParts(ctx context.Context, ticketID uuid.UUID, partIDs []uuid.UUID) (*CostResult, error) {
	var result *CostResult
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		result, err = s.setParts(ctx, tx, ticketID, partIDs)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	s.committed(ctx, result)
	return result, nil
}

func (s *CostService) setParts(ctx context.Context, tx *repository.Repositories, ticketID uuid.UUID, partIDs []uuid.UUID) (*CostResult, error) {
	if _, err := tx.Ticket.RepairCost(ctx, ticketID); err != nil {
		return nil, notFound(err)
	}
	ids := uniqueIDs(partIDs)
	parts, err := tx.Part.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(parts) != len(ids) {
		return nil, fmt.Errorf("%w: unknown part", ErrNotFound)
	}
	if err := tx.Ticket.ReplaceParts(ctx, ticketID, ids); err != nil {
		return nil, err
	}
	return s.recompute(ctx, tx, ticketID)
}

func (s *CostService) recompute(ctx context.Context, tx *repository.Repositories, ticketID uuid.UUID) (*CostResult, error) {
	stored, err := tx.Ticket.RepairCost(ctx, ticketID)
	if err != nil {
		return nil, notFound(err)
	}
	total, err := tx.Ticket.SumPartPrices(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	result := &CostResult{TicketID: ticketID, Cost: total}
	if total == stored {
		return result, nil
	}
	if err := tx.Ticket.UpdateRepairCost(ctx, ticketID, total); err != nil {
		return nil, err
	}
	result.Changed = true
	return result, nil
}

func (s *CostService) committed(ctx context.Context, result *CostResult) {
	if result == nil || !result.Changed {
		return
	}
	publish(ctx, s.log, s.publisher, events.New(events.TypeTicketCostChanged, "", events.TicketCostChanged{
		TicketID: result.TicketID,
		Cost:     result.Cost,
	}))
	s.log.Info().
		Str("ticket_id", result.TicketID.String()).
		Int64("cost", result.Cost).
		Msg("repair cost updated")
}
