package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"as-service/internal/cache"
	"as-service/internal/model"
	"as-service/internal/repository"
	"as-service/internal/utils"
)

type DashboardService struct {
	tickets *repository.TicketRepository
	cache   *cache.DashboardCache
	log     zerolog.Logger
	loc     *time.Location
	now     func() time.Time
}

func NewDashboardService(tickets *repository.TicketRepository, dashboardCache *cache.DashboardCache, log zerolog.Logger, loc *time.Location, now func() time.Time) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DashboardService{tickets: tickets, cache: dashboardCache, log: log, loc: loc, now: now}
}

// KPIs reports tickets waiting for repair, tickets received today that are
// still inbound, and every ticket received this month.
func (s *DashboardService) KPIs(ctx context.Context) (*model.DashboardKPIs, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}

	now := s.now()
	today := utils.DateOf(now, s.loc)
	tomorrow := utils.DateOf(time.Time(today).AddDate(0, 0, 1), time.UTC)
	monthStart, monthEnd := utils.MonthRange(today)

	waiting, err := s.tickets.Count(ctx, repository.TicketCountFilter{
		Statuses: []model.TicketStatus{model.TicketStatusWaiting},
	})
	if err != nil {
		return nil, err
	}
	inboundToday, err := s.tickets.Count(ctx, repository.TicketCountFilter{
		Statuses:    []model.TicketStatus{model.TicketStatusInbound},
		InboundFrom: &today,
		InboundTo:   &tomorrow,
	})
	if err != nil {
		return nil, err
	}
	inboundMonth, err := s.tickets.Count(ctx, repository.TicketCountFilter{
		InboundFrom: &monthStart,
		InboundTo:   &monthEnd,
	})
	if err != nil {
		return nil, err
	}

	kpis := &model.DashboardKPIs{
		WaitingCount:      waiting,
		InboundTodayCount: inboundToday,
		InboundMonthCount: inboundMonth,
		Month:             int(time.Time(today).Month()),
		GeneratedAt:       now.UTC(),
	}
	s.cache.Set(ctx, kpis)
	return kpis, nil
}
