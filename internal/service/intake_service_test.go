package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"as-service/internal/events"
	"as-service/internal/model"
	"as-service/internal/testutil"
)

func (e *testEnv) batch(rows ...IntakeRowInput) IntakeBatchInput {
	return IntakeBatchInput{
		InboundDate: testutil.Date(2024, 3, 10),
		CompanyID:   e.company.ID,
		Manager:     "Service desk",
		Rows:        rows,
	}
}

func TestSubmitBatchExpandsCommaSerials(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	result, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "A1, A2, A3", Symptom: "grinding noise"},
	))
	if err != nil {
		t.Fatalf("submit batch: %v", err)
	}

	if result.Created != 3 || result.Submitted != 1 || !result.Expanded {
		t.Fatalf("unexpected result: created=%d submitted=%d expanded=%v", result.Created, result.Submitted, result.Expanded)
	}
	if result.BatchID == uuid.Nil {
		t.Fatal("expected batch id")
	}

	tickets, err := env.repos.Ticket.List(ctx, repositoryFilterForBatch(result.BatchID))
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	serials := map[string]bool{}
	for _, tk := range tickets {
		serials[tk.SerialNumber] = true
		if tk.Status != model.TicketStatusInbound {
			t.Errorf("ticket %s: expected inbound, got %s", tk.SerialNumber, tk.Status)
		}
		if tk.CompanyID != env.company.ID || tk.Manager != "Service desk" || tk.Symptom != "grinding noise" {
			t.Errorf("ticket %s: batch context not copied", tk.SerialNumber)
		}
		if tk.InboundBatchID == nil || *tk.InboundBatchID != result.BatchID {
			t.Errorf("ticket %s: batch reference missing", tk.SerialNumber)
		}
	}
	for _, sn := range []string{"A1", "A2", "A3"} {
		if !serials[sn] {
			t.Errorf("missing ticket for serial %s", sn)
		}
	}

	received := env.publisher.OfType(events.TypeBatchReceived)
	if len(received) != 1 {
		t.Fatalf("expected one batch event, got %d", len(received))
	}
	payload := received[0].Payload.(events.BatchReceived)
	if payload.Created != 3 || len(payload.TicketIDs) != 3 {
		t.Fatalf("unexpected event payload: %+v", payload)
	}
}

func TestSubmitBatchRejectsDuplicateWithinBatch(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "D1"},
		IntakeRowInput{ToolID: env.otherTool.ID, SerialText: "D1"},
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "D2, D1"},
	))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatal("validation error must match ErrInvalidInput")
	}
	if verr.Kind != KindDuplicateInBatch {
		t.Fatalf("expected duplicate kind, got %s", verr.Kind)
	}
	if len(verr.Pairs) != 1 || verr.Pairs[0].ToolID != env.tool.ID || verr.Pairs[0].SerialNumber != "D1" {
		t.Fatalf("unexpected pairs: %+v", verr.Pairs)
	}
	if verr.Pairs[0].ToolLabel != "Makita > DHP481" {
		t.Fatalf("unexpected tool label %q", verr.Pairs[0].ToolLabel)
	}
	if n := testutil.CountTickets(t, env.db); n != 0 {
		t.Fatalf("expected no tickets, got %d", n)
	}
	var batches int64
	env.db.Model(&model.InboundBatch{}).Count(&batches)
	if batches != 0 {
		t.Fatalf("expected no batch, got %d", batches)
	}
}

func TestSubmitBatchRejectsActiveConflictUntilShipped(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	first, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "C1"},
	))
	if err != nil {
		t.Fatalf("first intake: %v", err)
	}

	_, err = env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "C9"},
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "C1"},
	))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindActiveConflict {
		t.Fatalf("expected active conflict, got %v", err)
	}
	if len(verr.Pairs) != 1 || verr.Pairs[0].SerialNumber != "C1" {
		t.Fatalf("unexpected pairs: %+v", verr.Pairs)
	}
	if n := testutil.CountTickets(t, env.db); n != 1 {
		t.Fatalf("expected the failed batch to leave 1 ticket, got %d", n)
	}

	if _, err := env.transitions.MarkShipped(ctx, testPrincipal, []uuid.UUID{first.Tickets[0].ID}); err != nil {
		t.Fatalf("ship: %v", err)
	}

	second, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "C1"},
	))
	if err != nil {
		t.Fatalf("re-intake after shipping: %v", err)
	}
	if second.Created != 1 {
		t.Fatalf("expected 1 ticket, got %d", second.Created)
	}
	assertSingleActive(t, env.db)
}

func TestSubmitBatchSameSerialDifferentToolIsAllowed(t *testing.T) {
	env := newTestEnv(t, false)

	result, err := env.intake.SubmitBatch(context.Background(), testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "S1"},
		IntakeRowInput{ToolID: env.otherTool.ID, SerialText: "S1"},
	))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Created != 2 || result.Expanded {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSubmitBatchIgnoresIncompleteRows(t *testing.T) {
	env := newTestEnv(t, false)

	result, err := env.intake.SubmitBatch(context.Background(), testPrincipal, env.batch(
		IntakeRowInput{SerialText: "no tool"},
		IntakeRowInput{ToolID: env.tool.ID, SerialText: " , "},
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "OK1"},
	))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Created != 1 || result.Submitted != 1 {
		t.Fatalf("unexpected counts: created=%d submitted=%d", result.Created, result.Submitted)
	}
}

func TestSubmitBatchRequiresAFilledRow(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.intake.SubmitBatch(context.Background(), testPrincipal, env.batch(
		IntakeRowInput{SerialText: "A1"},
		IntakeRowInput{ToolID: env.tool.ID, SerialText: " , "},
	))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindMissingField {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0] != "rows" {
		t.Fatalf("expected rows reported, got %v", verr.Fields)
	}

	var batches int64
	if err := env.db.Model(&model.InboundBatch{}).Count(&batches).Error; err != nil {
		t.Fatalf("count batches: %v", err)
	}
	if batches != 0 {
		t.Fatalf("expected no batch persisted, got %d", batches)
	}
	if n := len(env.publisher.OfType(events.TypeBatchReceived)); n != 0 {
		t.Fatalf("expected no batch event, got %d", n)
	}
}

func TestSubmitBatchRequiresHeader(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.intake.SubmitBatch(context.Background(), testPrincipal, IntakeBatchInput{
		Rows: []IntakeRowInput{{ToolID: env.tool.ID, SerialText: "X"}},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindMissingField {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("expected both header fields reported, got %v", verr.Fields)
	}
}

func TestSubmitBatchUnknownCompanyAndTool(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	input := env.batch(IntakeRowInput{ToolID: env.tool.ID, SerialText: "X"})
	input.CompanyID = uuid.New()
	if _, err := env.intake.SubmitBatch(ctx, testPrincipal, input); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for company, got %v", err)
	}

	_, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(IntakeRowInput{ToolID: uuid.New(), SerialText: "X"}))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindUnknownTool {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
}

func TestSubmitBatchEditsExistingBatch(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	created, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "E1, E2"},
	))
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	var e1, e2 model.Ticket
	for _, tk := range created.Tickets {
		if tk.SerialNumber == "E1" {
			e1 = tk
		} else {
			e2 = tk
		}
	}

	input := env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "E1", Deleted: true, TicketID: &e1.ID},
		// E2 stays and is renamed; it must not conflict with itself.
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "E2-fixed", TicketID: &e2.ID},
		// Re-adding E1 succeeds because the old E1 ticket was deleted first.
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "E1, E4"},
	)
	input.BatchID = &created.BatchID
	input.Manager = "Second shift"

	result, err := env.intake.SubmitBatch(ctx, testPrincipal, input)
	if err != nil {
		t.Fatalf("edit batch: %v", err)
	}
	if result.Deleted != 1 || result.Updated != 1 || result.Created != 2 {
		t.Fatalf("unexpected result: deleted=%d updated=%d created=%d", result.Deleted, result.Updated, result.Created)
	}
	if result.BatchID != created.BatchID {
		t.Fatal("expected the same batch")
	}

	edited, err := env.repos.Ticket.GetByID(ctx, e2.ID)
	if err != nil {
		t.Fatalf("reload edited ticket: %v", err)
	}
	if edited.SerialNumber != "E2-fixed" || edited.Manager != "Second shift" {
		t.Fatalf("edit not applied: serial=%q manager=%q", edited.SerialNumber, edited.Manager)
	}
	if n := testutil.CountTickets(t, env.db, "inbound_batch_id = ?", created.BatchID); n != 3 {
		t.Fatalf("expected 3 tickets in batch, got %d", n)
	}
	assertSingleActive(t, env.db)
}

func TestSubmitBatchEditSwapsSerials(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	created, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "S1, S2"},
	))
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	ids := map[string]uuid.UUID{}
	for _, tk := range created.Tickets {
		ids[tk.SerialNumber] = tk.ID
	}
	x, y := ids["S1"], ids["S2"]

	input := env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "S2", TicketID: &x},
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "S1", TicketID: &y},
	)
	input.BatchID = &created.BatchID

	result, err := env.intake.SubmitBatch(ctx, testPrincipal, input)
	if err != nil {
		t.Fatalf("swap serials: %v", err)
	}
	if result.Updated != 2 || result.Created != 0 {
		t.Fatalf("unexpected result: updated=%d created=%d", result.Updated, result.Created)
	}
	for id, want := range map[uuid.UUID]string{x: "S2", y: "S1"} {
		tk, err := env.repos.Ticket.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("reload %s: %v", id, err)
		}
		if tk.SerialNumber != want {
			t.Errorf("ticket %s: expected %s, got %s", id, want, tk.SerialNumber)
		}
	}
	assertSingleActive(t, env.db)
}

func TestSubmitBatchEditKeepsTicketStatus(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	created, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "K1"},
	))
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	id := created.Tickets[0].ID
	if err := env.repos.Ticket.UpdateFields(ctx, id, map[string]interface{}{"status": model.TicketStatusRepaired}); err != nil {
		t.Fatalf("mark repaired: %v", err)
	}

	input := env.batch(IntakeRowInput{ToolID: env.tool.ID, SerialText: "K1-A", Symptom: "fixed typo", TicketID: &id})
	input.BatchID = &created.BatchID
	if _, err := env.intake.SubmitBatch(ctx, testPrincipal, input); err != nil {
		t.Fatalf("edit batch: %v", err)
	}

	tk, err := env.repos.Ticket.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if tk.SerialNumber != "K1-A" || tk.Status != model.TicketStatusRepaired {
		t.Fatalf("expected K1-A still repaired, got %s %s", tk.SerialNumber, tk.Status)
	}
}

func TestSubmitBatchRejectsForeignTicketRows(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	stray := uuid.New()
	_, err := env.intake.SubmitBatch(ctx, testPrincipal, env.batch(
		IntakeRowInput{ToolID: env.tool.ID, SerialText: "Z1", TicketID: &stray},
	))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without batch id, got %v", err)
	}
}

func TestCreateTicket(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	ticket, err := env.intake.CreateTicket(ctx, testPrincipal, CreateTicketInput{
		InboundDate:  testutil.Date(2024, 3, 11),
		CompanyID:    env.company.ID,
		ToolID:       env.tool.ID,
		SerialNumber: "  SOLO-1 ",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if ticket.SerialNumber != "SOLO-1" || ticket.Status != model.TicketStatusInbound || ticket.InboundBatchID != nil {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}

	_, err = env.intake.CreateTicket(ctx, testPrincipal, CreateTicketInput{
		InboundDate:  testutil.Date(2024, 3, 12),
		CompanyID:    env.company.ID,
		ToolID:       env.tool.ID,
		SerialNumber: "SOLO-1",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindActiveConflict {
		t.Fatalf("expected active conflict, got %v", err)
	}
}
