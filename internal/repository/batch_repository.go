package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"as-service/internal/model"
)

// toolsSummaryLimit is how many distinct tools a batch row lists by name.
const toolsSummaryLimit = 3

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *model.InboundBatch) error {
	return r.db.WithContext(ctx).Omit("Company", "Tickets").Create(batch).Error
}

// UpdateHeader rewrites the batch header and copies date, company and manager
// onto every ticket still attached to it.
func (r *BatchRepository) UpdateHeader(ctx context.Context, batch *model.InboundBatch) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&model.InboundBatch{}).Where("id = ?", batch.ID).Updates(map[string]interface{}{
		"inbound_date": batch.InboundDate,
		"company_id":   batch.CompanyID,
		"manager":      batch.Manager,
		"memo":         batch.Memo,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return db.Model(&model.Ticket{}).Where("inbound_batch_id = ?", batch.ID).Updates(map[string]interface{}{
		"inbound_date": batch.InboundDate,
		"company_id":   batch.CompanyID,
		"manager":      batch.Manager,
	}).Error
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.InboundBatch, error) {
	var batch model.InboundBatch
	err := r.db.WithContext(ctx).
		Preload("Company").
		Preload("Tickets", func(db *gorm.DB) *gorm.DB {
			return db.Order("as_tickets.created_at ASC")
		}).
		Preload("Tickets.Tool.Brand").
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) ExistsForCompany(ctx context.Context, companyID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.InboundBatch{}).Where("company_id = ?", companyID).Count(&count).Error
	return count > 0, err
}

type BatchListFilter struct {
	CompanyID *uuid.UUID
	Limit     int
	Offset    int
}

func (r *BatchRepository) List(ctx context.Context, filter BatchListFilter) ([]model.InboundBatchSummary, error) {
	var batches []model.InboundBatch
	query := r.db.WithContext(ctx).Preload("Company")
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Order("inbound_date DESC").Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return []model.InboundBatchSummary{}, nil
	}

	ids := make([]uuid.UUID, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}

	var counts []struct {
		InboundBatchID uuid.UUID
		TicketCount    int64
	}
	if err := r.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("inbound_batch_id, COUNT(*) AS ticket_count").
		Where("inbound_batch_id IN ?", ids).
		Group("inbound_batch_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	countByBatch := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		countByBatch[c.InboundBatchID] = c.TicketCount
	}

	var tools []struct {
		InboundBatchID uuid.UUID
		BrandName      string
		ModelName      string
	}
	if err := r.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("DISTINCT as_tickets.inbound_batch_id, brands.name AS brand_name, tools.model_name").
		Joins("JOIN tools ON tools.id = as_tickets.tool_id").
		Joins("JOIN brands ON brands.id = tools.brand_id").
		Where("as_tickets.inbound_batch_id IN ?", ids).
		Order("brands.name ASC").
		Order("tools.model_name ASC").
		Scan(&tools).Error; err != nil {
		return nil, err
	}
	toolsByBatch := make(map[uuid.UUID][]string, len(batches))
	for _, t := range tools {
		toolsByBatch[t.InboundBatchID] = append(toolsByBatch[t.InboundBatchID], t.BrandName+" > "+t.ModelName)
	}

	out := make([]model.InboundBatchSummary, 0, len(batches))
	for _, b := range batches {
		out = append(out, model.InboundBatchSummary{
			InboundBatch: b,
			TicketCount:  countByBatch[b.ID],
			ToolsSummary: SummarizeTools(toolsByBatch[b.ID]),
		})
	}
	return out, nil
}

// SummarizeTools joins the first few tool labels and counts the rest.
func SummarizeTools(labels []string) string {
	if len(labels) <= toolsSummaryLimit {
		return strings.Join(labels, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(labels[:toolsSummaryLimit], ", "), len(labels)-toolsSummaryLimit)
}
