package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"as-service/internal/model"
)

// Repositories bundles every repository over one *gorm.DB, which is either
// the pool or an open transaction.
type Repositories struct {
	db *gorm.DB

	Ticket           *TicketRepository
	Batch            *BatchRepository
	PriceGroup       *PriceGroupRepository
	Company          *CompanyRepository
	Brand            *BrandRepository
	Tool             *ToolRepository
	Part             *PartRepository
	OutsourceCompany *OutsourceCompanyRepository
	StatusLog        *StatusLogRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:               db,
		Ticket:           NewTicketRepository(db),
		Batch:            NewBatchRepository(db),
		PriceGroup:       NewPriceGroupRepository(db),
		Company:          NewCompanyRepository(db),
		Brand:            NewBrandRepository(db),
		Tool:             NewToolRepository(db),
		Part:             NewPartRepository(db),
		OutsourceCompany: NewOutsourceCompanyRepository(db),
		StatusLog:        NewStatusLogRepository(db),
	}
}

// Transaction runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func statusStrings(statuses []model.TicketStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likePattern builds a substring pattern for LIKE ... ESCAPE '\'.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
