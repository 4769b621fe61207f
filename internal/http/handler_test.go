package http

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"as-service/internal/auth"
	"as-service/internal/events"
	"as-service/internal/http/middleware"
	"as-service/internal/model"
	"as-service/internal/repository"
	"as-service/internal/service"
	"as-service/internal/testutil"
)

var handlerNow = time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)

type handlerEnv struct {
	db        *gorm.DB
	router    *gin.Engine
	publisher *events.MemoryPublisher
	token     string
	company   *model.Company
	tool      *model.Tool
}

func setupHandlerTest(t *testing.T) *handlerEnv {
	t.Helper()
	gdb := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(gdb)
	publisher := &events.MemoryPublisher{}
	log := zerolog.Nop()

	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := func() time.Time { return handlerNow }

	transitions := service.NewTransitionService(repos, nil, publisher, log, service.TransitionOptions{
		Location: seoul,
		Now:      now,
	})
	costs := service.NewCostService(repos, publisher, log)
	handler := NewHandler(
		service.NewIntakeService(repos, nil, publisher, log),
		transitions,
		costs,
		service.NewProjectionService(repos, transitions, costs, nil, log),
		service.NewMasterService(repos, log),
		service.NewDashboardService(repos.Ticket, nil, log, seoul, now),
		log,
	)

	gin.SetMode(gin.TestMode)
	router := NewRouter(handler, middleware.Auth(auth.NewParser(testutil.JWTSecret)), "test", log)

	return &handlerEnv{
		db:        gdb,
		router:    router,
		publisher: publisher,
		token:     testutil.DefaultTestToken(),
		company:   testutil.SeedCompany(t, gdb, "Acme Construction"),
		tool:      testutil.SeedTool(t, gdb, "Makita", "DHP481"),
	}
}

func (e *handlerEnv) do(method, path string, body interface{}) (int, map[string]interface{}) {
	w := testutil.DoRequest(e.router, method, path, body, e.token)
	return w.Code, testutil.ParseResponse(w)
}

func (e *handlerEnv) batchBody(rows ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"inbound_date": "2024-03-10",
		"company_id":   e.company.ID.String(),
		"manager":      "Service desk",
		"rows":         rows,
	}
}

func TestHealthzIsPublic(t *testing.T) {
	env := setupHandlerTest(t)
	w := testutil.DoRequest(env.router, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, http.MethodGet, "/api/v1/dashboard", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/dashboard", nil, "not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", w.Code)
	}
}

func TestSubmitBatchEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	row := map[string]interface{}{
		"tool_id":       env.tool.ID.String(),
		"serial_number": "A1, A2",
		"symptom":       "no power",
	}

	code, resp := env.do(http.MethodPost, "/api/v1/intake/batches", env.batchBody(row))
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", code, resp)
	}
	data := resp["data"].(map[string]interface{})
	if data["created"].(float64) != 2 || data["expanded"] != true {
		t.Fatalf("unexpected result: %v", data)
	}
	if n := testutil.CountTickets(t, env.db); n != 2 {
		t.Fatalf("expected 2 tickets, got %d", n)
	}

	code, resp = env.do(http.MethodPost, "/api/v1/intake/batches", env.batchBody(row))
	if code != http.StatusBadRequest {
		t.Fatalf("resubmit: expected 400, got %d", code)
	}
	if resp["kind"] != string(service.KindActiveConflict) {
		t.Fatalf("expected active_conflict, got %v", resp["kind"])
	}
	pairs, _ := resp["pairs"].([]interface{})
	if len(pairs) != 2 {
		t.Fatalf("expected 2 conflicting pairs, got %v", resp["pairs"])
	}
	first := pairs[0].(map[string]interface{})
	if first["tool"] != "Makita > DHP481" {
		t.Errorf("expected tool label, got %v", first["tool"])
	}
	if n := testutil.CountTickets(t, env.db); n != 2 {
		t.Fatalf("rejected batch wrote tickets: %d", n)
	}
}

func TestSubmitBatchEndpointValidation(t *testing.T) {
	env := setupHandlerTest(t)

	code, resp := env.do(http.MethodPost, "/api/v1/intake/batches", env.batchBody(
		map[string]interface{}{"tool_id": env.tool.ID.String(), "serial_number": "B1"},
		map[string]interface{}{"tool_id": env.tool.ID.String(), "serial_number": "B2, B1"},
	))
	if code != http.StatusBadRequest || resp["kind"] != string(service.KindDuplicateInBatch) {
		t.Fatalf("expected duplicate_in_batch, got %d %v", code, resp)
	}

	code, resp = env.do(http.MethodPost, "/api/v1/intake/batches", map[string]interface{}{
		"rows": []map[string]interface{}{{"tool_id": env.tool.ID.String(), "serial_number": "B1"}},
	})
	if code != http.StatusBadRequest || resp["kind"] != string(service.KindMissingField) {
		t.Fatalf("expected missing_field, got %d %v", code, resp)
	}
	fields, _ := resp["fields"].([]interface{})
	if len(fields) != 2 {
		t.Fatalf("expected inbound_date and company_id, got %v", resp["fields"])
	}

	code, _ = env.do(http.MethodPost, "/api/v1/intake/batches", map[string]interface{}{
		"inbound_date": "10/03/2024",
		"company_id":   env.company.ID.String(),
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", code)
	}
	if n := testutil.CountTickets(t, env.db); n != 0 {
		t.Fatalf("expected no tickets, got %d", n)
	}
}

func TestBatchListAndDetail(t *testing.T) {
	env := setupHandlerTest(t)
	code, resp := env.do(http.MethodPost, "/api/v1/intake/batches", env.batchBody(
		map[string]interface{}{"tool_id": env.tool.ID.String(), "serial_number": "C1, C2, C3"},
	))
	if code != http.StatusCreated {
		t.Fatalf("submit: %d %v", code, resp)
	}
	batchID := resp["data"].(map[string]interface{})["batch_id"].(string)

	code, resp = env.do(http.MethodGet, "/api/v1/intake/batches", nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	list := resp["data"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(list))
	}
	summary := list[0].(map[string]interface{})
	if summary["ticket_count"].(float64) != 3 || summary["tools_summary"] != "Makita > DHP481" {
		t.Fatalf("unexpected summary: %v", summary)
	}

	code, resp = env.do(http.MethodGet, "/api/v1/intake/batches/"+batchID, nil)
	if code != http.StatusOK {
		t.Fatalf("detail: %d", code)
	}
	tickets := resp["data"].(map[string]interface{})["tickets"].([]interface{})
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets in batch, got %d", len(tickets))
	}

	code, _ = env.do(http.MethodGet, "/api/v1/intake/batches/not-a-uuid", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", code)
	}
}

func TestChangeStatusEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	ticket := testutil.SeedTicket(t, env.db, env.company, env.tool, "D1", model.TicketStatusRepaired, testutil.Date(2024, 3, 1))

	code, resp := env.do(http.MethodPost, "/api/v1/tickets/status", map[string]interface{}{
		"ids":    []string{ticket.ID.String()},
		"status": "shipped",
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", code, resp)
	}
	data := resp["data"].(map[string]interface{})
	if data["updated"].(float64) != 1 {
		t.Fatalf("expected 1 updated, got %v", data["updated"])
	}
	if data["outbound_date"] != "2024-03-16T00:00:00Z" {
		t.Fatalf("expected shipping date in Seoul, got %v", data["outbound_date"])
	}
	if len(env.publisher.OfType(events.TypeTicketStatusChanged)) != 1 {
		t.Fatal("expected status event")
	}

	code, resp = env.do(http.MethodGet, fmt.Sprintf("/api/v1/tickets/%s/history", ticket.ID), nil)
	if code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	history := resp["data"].([]interface{})
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	entry := history[0].(map[string]interface{})
	if entry["from_status"] != "repaired" || entry["to_status"] != "shipped" || entry["actor"] != "Test Staff" {
		t.Fatalf("unexpected history entry: %v", entry)
	}

	code, _ = env.do(http.MethodPost, "/api/v1/tickets/status", map[string]interface{}{
		"ids":    []string{ticket.ID.String()},
		"status": "inbound",
	})
	if code != http.StatusConflict {
		t.Fatalf("inbound target: expected 409, got %d", code)
	}

	code, _ = env.do(http.MethodPost, "/api/v1/tickets/status", map[string]interface{}{
		"ids":    []string{ticket.ID.String()},
		"status": "lost",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", code)
	}
}

func TestTicketPartsEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	ticket := testutil.SeedTicket(t, env.db, env.company, env.tool, "E1", model.TicketStatusWaiting, testutil.Date(2024, 3, 1))
	brush := testutil.SeedPart(t, env.db, "Carbon brush", 500)
	switchPart := testutil.SeedPart(t, env.db, "Trigger switch", 1200)

	path := fmt.Sprintf("/api/v1/tickets/%s/parts", ticket.ID)
	code, resp := env.do(http.MethodPut, path, map[string]interface{}{
		"part_ids": []string{brush.ID.String(), switchPart.ID.String()},
	})
	if code != http.StatusOK {
		t.Fatalf("set parts: %d %v", code, resp)
	}
	if cost := resp["data"].(map[string]interface{})["cost"].(float64); cost != 1700 {
		t.Fatalf("expected cost 1700, got %v", cost)
	}

	code, resp = env.do(http.MethodPost, fmt.Sprintf("/api/v1/tickets/%s/recompute-cost", ticket.ID), nil)
	if code != http.StatusOK {
		t.Fatalf("recompute: %d", code)
	}
	if resp["data"].(map[string]interface{})["changed"] != false {
		t.Fatalf("recompute should be a no-op: %v", resp["data"])
	}
}

func TestViewEndpoints(t *testing.T) {
	env := setupHandlerTest(t)
	waiting := testutil.SeedTicket(t, env.db, env.company, env.tool, "F1", model.TicketStatusWaiting, testutil.Date(2024, 3, 1))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "F2", model.TicketStatusRepaired, testutil.Date(2024, 3, 2))
	part := testutil.SeedPart(t, env.db, "Chuck", 800)

	code, resp := env.do(http.MethodGet, "/api/v1/views/repair/tickets", nil)
	if code != http.StatusOK {
		t.Fatalf("list repair view: %d", code)
	}
	if rows := resp["data"].([]interface{}); len(rows) != 1 {
		t.Fatalf("expected 1 repair row, got %d", len(rows))
	}

	code, resp = env.do(http.MethodGet, "/api/v1/views/history/tickets?search=f2", nil)
	if code != http.StatusOK {
		t.Fatalf("search history: %d", code)
	}
	if rows := resp["data"].([]interface{}); len(rows) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(rows))
	}

	code, _ = env.do(http.MethodGet, "/api/v1/views/archive/tickets", nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown view: expected 404, got %d", code)
	}
	code, _ = env.do(http.MethodGet, "/api/v1/views/repair/tickets?inbound_from=yesterday", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad date filter: expected 400, got %d", code)
	}

	path := fmt.Sprintf("/api/v1/views/repair/tickets/%s", waiting.ID)
	code, _ = env.do(http.MethodPatch, path, map[string]interface{}{"tax_invoice": true})
	if code != http.StatusForbidden {
		t.Fatalf("field outside view: expected 403, got %d", code)
	}

	code, resp = env.do(http.MethodPatch, path, map[string]interface{}{
		"repair_content": "Replaced chuck",
		"used_parts":     []string{part.ID.String()},
		"status":         "repaired",
	})
	if code != http.StatusOK {
		t.Fatalf("update: %d %v", code, resp)
	}
	row := resp["data"].(map[string]interface{})
	if row["status"] != "repaired" || row["repair_cost"].(float64) != 800 || row["parts_summary"] != "Chuck" {
		t.Fatalf("unexpected row: %v", row)
	}

	code, _ = env.do(http.MethodGet, path, nil)
	if code != http.StatusNotFound {
		t.Fatalf("repaired ticket left the repair view: expected 404, got %d", code)
	}
	code, _ = env.do(http.MethodGet, fmt.Sprintf("/api/v1/views/outbound/tickets/%s", waiting.ID), nil)
	if code != http.StatusOK {
		t.Fatalf("outbound view: expected 200, got %d", code)
	}
}

func TestMasterEndpoints(t *testing.T) {
	env := setupHandlerTest(t)

	code, resp := env.do(http.MethodPost, "/api/v1/brands", map[string]interface{}{"name": "Hilti"})
	if code != http.StatusCreated {
		t.Fatalf("create brand: %d %v", code, resp)
	}
	brandID := resp["data"].(map[string]interface{})["id"].(string)

	code, _ = env.do(http.MethodPost, "/api/v1/brands", map[string]interface{}{"name": "Hilti"})
	if code != http.StatusConflict {
		t.Fatalf("duplicate brand: expected 409, got %d", code)
	}

	code, resp = env.do(http.MethodPost, "/api/v1/tools", map[string]interface{}{
		"brand_id":   brandID,
		"model_name": "TE 30",
	})
	if code != http.StatusCreated {
		t.Fatalf("create tool: %d %v", code, resp)
	}
	toolID := resp["data"].(map[string]interface{})["id"].(string)

	code, _ = env.do(http.MethodDelete, "/api/v1/brands/"+brandID, nil)
	if code != http.StatusConflict {
		t.Fatalf("brand with tools: expected 409, got %d", code)
	}
	code, _ = env.do(http.MethodDelete, "/api/v1/tools/"+toolID, nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete tool: expected 204, got %d", code)
	}
	code, _ = env.do(http.MethodDelete, "/api/v1/brands/"+brandID, nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete brand: expected 204, got %d", code)
	}

	code, resp = env.do(http.MethodPost, "/api/v1/parts", map[string]interface{}{
		"name":      "Trigger switch",
		"price":     1200,
		"part_type": "dedicated",
		"tool_ids":  []string{env.tool.ID.String()},
	})
	if code != http.StatusCreated {
		t.Fatalf("create part: %d %v", code, resp)
	}
	code, resp = env.do(http.MethodGet, "/api/v1/parts?tool_id="+env.tool.ID.String(), nil)
	if code != http.StatusOK || len(resp["data"].([]interface{})) != 1 {
		t.Fatalf("parts for tool: %d %v", code, resp)
	}

	code, _ = env.do(http.MethodDelete, "/api/v1/companies/"+env.company.ID.String(), nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete unused company: expected 204, got %d", code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	env := setupHandlerTest(t)
	testutil.SeedTicket(t, env.db, env.company, env.tool, "G1", model.TicketStatusWaiting, testutil.Date(2024, 3, 2))
	testutil.SeedTicket(t, env.db, env.company, env.tool, "G2", model.TicketStatusInbound, testutil.Date(2024, 3, 16))

	code, resp := env.do(http.MethodGet, "/api/v1/dashboard", nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: %d", code)
	}
	kpis := resp["data"].(map[string]interface{})
	if kpis["waiting_count"].(float64) != 1 || kpis["inbound_today_count"].(float64) != 1 ||
		kpis["inbound_month_count"].(float64) != 2 || kpis["month"].(float64) != 3 {
		t.Fatalf("unexpected kpis: %v", kpis)
	}
}
