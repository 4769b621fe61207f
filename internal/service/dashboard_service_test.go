package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"as-service/internal/cache"
	"as-service/internal/config"
	"as-service/internal/model"
	"as-service/internal/testutil"
)

func TestDashboardKPIs(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	// fixedNow falls on 2024-03-16 in the configured zone.
	testutil.SeedTicket(t, env.db, env.company, env.tool, "K-1", model.TicketStatusInbound, testutil.Date(2024, 3, 16))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "K-2", model.TicketStatusInbound, testutil.Date(2024, 3, 16))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "K-3", model.TicketStatusWaiting, testutil.Date(2024, 3, 16))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "K-4", model.TicketStatusInbound, testutil.Date(2024, 3, 15))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "K-5", model.TicketStatusWaiting, testutil.Date(2024, 2, 28))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "K-6", model.TicketStatusShipped, testutil.Date(2024, 3, 1))

	kpis, err := env.dashboard.KPIs(ctx)
	if err != nil {
		t.Fatalf("kpis: %v", err)
	}
	if kpis.WaitingCount != 2 {
		t.Errorf("waiting: expected 2, got %d", kpis.WaitingCount)
	}
	if kpis.InboundTodayCount != 2 {
		t.Errorf("inbound today: expected 2, got %d", kpis.InboundTodayCount)
	}
	if kpis.InboundMonthCount != 5 {
		t.Errorf("inbound month: expected 5, got %d", kpis.InboundMonthCount)
	}
	if kpis.Month != 3 {
		t.Errorf("month: expected 3, got %d", kpis.Month)
	}
}

func TestDashboardUsesCacheUntilInvalidated(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	srv := miniredis.RunT(t)
	client := cache.NewRedisClient(config.RedisConfig{Addr: srv.Addr()}, zerolog.Nop())
	t.Cleanup(func() { _ = client.Close() })
	dashboardCache := cache.NewDashboardCache(client, time.Minute, zerolog.Nop())

	now := func() time.Time { return fixedNow }
	dashboard := NewDashboardService(env.repos.Ticket, dashboardCache, zerolog.Nop(), time.UTC, now)
	intake := NewIntakeService(env.repos, dashboardCache, env.publisher, zerolog.Nop())

	first, err := dashboard.KPIs(ctx)
	if err != nil {
		t.Fatalf("kpis: %v", err)
	}
	if first.InboundMonthCount != 0 {
		t.Fatalf("expected empty month, got %d", first.InboundMonthCount)
	}

	// A direct write bypasses invalidation, so the cached value is served.
	testutil.SeedTicket(t, env.db, env.company, env.tool, "CACHE-1", model.TicketStatusInbound, testutil.Date(2024, 3, 15))
	cached, _ := dashboard.KPIs(ctx)
	if cached.InboundMonthCount != 0 {
		t.Fatalf("expected cached value, got %d", cached.InboundMonthCount)
	}

	// Intake invalidates the cache.
	if _, err := intake.SubmitBatch(ctx, testPrincipal, IntakeBatchInput{
		InboundDate: testutil.Date(2024, 3, 15),
		CompanyID:   env.company.ID,
		Rows:        []IntakeRowInput{{ToolID: env.tool.ID, SerialText: "CACHE-2"}},
	}); err != nil {
		t.Fatalf("intake: %v", err)
	}
	fresh, _ := dashboard.KPIs(ctx)
	if fresh.InboundMonthCount != 2 || fresh.InboundTodayCount != 2 {
		t.Fatalf("expected fresh counts, got month=%d today=%d", fresh.InboundMonthCount, fresh.InboundTodayCount)
	}
}
