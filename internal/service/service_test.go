package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"as-service/internal/events"
	"as-service/internal/model"
	"as-service/internal/repository"
	"as-service/internal/testutil"
)

var testPrincipal = model.Principal{UserID: "u-1", Name: "Tester"}

// fixedNow is 2024-03-15 23:30 UTC, which is already the 16th in Seoul.
var fixedNow = time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)

type testEnv struct {
	db          *gorm.DB
	repos       *repository.Repositories
	publisher   *events.MemoryPublisher
	intake      *IntakeService
	transitions *TransitionService
	costs       *CostService
	projections *ProjectionService
	master      *MasterService
	dashboard   *DashboardService
	company     *model.Company
	tool        *model.Tool
	otherTool   *model.Tool
}

func newTestEnv(t *testing.T, strict bool) *testEnv {
	t.Helper()
	gdb := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(gdb)
	publisher := &events.MemoryPublisher{}
	log := zerolog.Nop()

	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := func() time.Time { return fixedNow }

	transitions := NewTransitionService(repos, nil, publisher, log, TransitionOptions{
		Strict:   strict,
		Location: seoul,
		Now:      now,
	})
	costs := NewCostService(repos, publisher, log)

	return &testEnv{
		db:          gdb,
		repos:       repos,
		publisher:   publisher,
		intake:      NewIntakeService(repos, nil, publisher, log),
		transitions: transitions,
		costs:       costs,
		projections: NewProjectionService(repos, transitions, costs, nil, log),
		master:      NewMasterService(repos, log),
		dashboard:   NewDashboardService(repos.Ticket, nil, log, seoul, now),
		company:     testutil.SeedCompany(t, gdb, "Acme Construction"),
		tool:        testutil.SeedTool(t, gdb, "Makita", "DHP481"),
		otherTool:   testutil.SeedTool(t, gdb, "Bosch", "GSR 18V"),
	}
}

// assertSingleActive fails when any unit has more than one active ticket.
func assertSingleActive(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	var rows []struct {
		ToolID       string
		SerialNumber string
		N            int64
	}
	err := gdb.Model(&model.Ticket{}).
		Select("tool_id, serial_number, COUNT(*) AS n").
		Where("status IN ?", []string{"inbound", "waiting", "repaired"}).
		Group("tool_id, serial_number").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		t.Fatalf("query active units: %v", err)
	}
	if len(rows) > 0 {
		t.Fatalf("units with more than one active ticket: %+v", rows)
	}
}

func repositoryFilterForBatch(id uuid.UUID) repository.TicketListFilter {
	return repository.TicketListFilter{BatchID: &id}
}
