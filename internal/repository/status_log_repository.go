package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"as-service/internal/model"
)

type StatusLogRepository struct {
	db *gorm.DB
}

func NewStatusLogRepository(db *gorm.DB) *StatusLogRepository {
	return &StatusLogRepository{db: db}
}

func (r *StatusLogRepository) CreateMany(ctx context.Context, logs []model.TicketStatusLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&logs).Error
}

// ListByTicket returns the history of one ticket, oldest first.
func (r *StatusLogRepository) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]model.TicketStatusLog, error) {
	var logs []model.TicketStatusLog
	err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("changed_at ASC").
		Find(&logs).Error
	return logs, err
}
