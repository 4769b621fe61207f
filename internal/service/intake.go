package service

import (
	"github.com/google/uuid"

	"as-service/internal/model"
	"as-service/internal/utils"
)

// IntakeRowInput is one line of an intake form. SerialText may hold several
// comma separated serials. TicketID is set when the row edits a ticket that
// already belongs to the batch.
type IntakeRowInput struct {
	ToolID     uuid.UUID
	SerialText string
	Symptom    string
	Deleted    bool
	TicketID   *uuid.UUID
}

// CandidateRow is a single-serial row after comma expansion. Rows spawned
// from one input row share its Ordinal; only the first keeps its TicketID.
type CandidateRow struct {
	Ordinal      int
	ToolID       uuid.UUID
	SerialNumber string
	Symptom      string
	TicketID     *uuid.UUID
}

func (c CandidateRow) Key() model.UnitKey {
	return model.UnitKey{ToolID: c.ToolID, SerialNumber: c.SerialNumber}
}

// ExpandRows turns form rows into single-serial candidates. Deleted rows,
// rows without a tool and rows whose serial text has no tokens are skipped.
// Extra serials follow their source row in input order. submitted counts the
// rows that produced at least one candidate.
func ExpandRows(rows []IntakeRowInput) (candidates []CandidateRow, submitted int, expanded bool) {
	candidates = make([]CandidateRow, 0, len(rows))
	for i, row := range rows {
		if row.Deleted || row.ToolID == uuid.Nil {
			continue
		}
		serials := utils.SplitSerials(row.SerialText)
		if len(serials) == 0 {
			continue
		}
		submitted++
		if len(serials) > 1 {
			expanded = true
		}
		for j, sn := range serials {
			c := CandidateRow{
				Ordinal:      i,
				ToolID:       row.ToolID,
				SerialNumber: sn,
				Symptom:      row.Symptom,
			}
			if j == 0 {
				c.TicketID = row.TicketID
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, submitted, expanded
}

// FindDuplicates returns every unit that occurs more than once among the
// candidates, in order of first occurrence.
func FindDuplicates(candidates []CandidateRow) []model.UnitKey {
	counts := make(map[model.UnitKey]int, len(candidates))
	order := make([]model.UnitKey, 0, len(candidates))
	for _, c := range candidates {
		k := c.Key()
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	dups := make([]model.UnitKey, 0)
	for _, k := range order {
		if counts[k] > 1 {
			dups = append(dups, k)
		}
	}
	return dups
}

// DeletedTicketIDs returns the existing tickets the form asks to remove.
func DeletedTicketIDs(rows []IntakeRowInput) []uuid.UUID {
	var ids []uuid.UUID
	for _, row := range rows {
		if row.Deleted && row.TicketID != nil {
			ids = append(ids, *row.TicketID)
		}
	}
	return ids
}
