package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"as-service/internal/model"
)

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// ticketPart is a row of the tickets-to-parts join table.
type ticketPart struct {
	TicketID uuid.UUID `gorm:"type:uuid;primaryKey"`
	PartID   uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (ticketPart) TableName() string {
	return "as_ticket_parts"
}

func (r *TicketRepository) Create(ctx context.Context, ticket *model.Ticket) error {
	return r.db.WithContext(ctx).Omit("Company", "Tool", "OutsourceCompany", "UsedParts").Create(ticket).Error
}

func (r *TicketRepository) CreateMany(ctx context.Context, tickets []*model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Company", "Tool", "OutsourceCompany", "UsedParts").Create(tickets).Error
}

func (r *TicketRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Company").
		Preload("Tool.Brand").
		Preload("OutsourceCompany").
		Preload("UsedParts", func(db *gorm.DB) *gorm.DB {
			return db.Order("parts.name ASC")
		})
}

func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Ticket, error) {
	var ticket model.Ticket
	err := r.withRelations(r.db.WithContext(ctx)).Where("id = ?", id).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// RepairCost reads the stored cost without loading relations.
func (r *TicketRepository) RepairCost(ctx context.Context, id uuid.UUID) (int64, error) {
	var ticket model.Ticket
	err := r.db.WithContext(ctx).Select("id", "repair_cost").Where("id = ?", id).First(&ticket).Error
	if err != nil {
		return 0, err
	}
	return ticket.RepairCost, nil
}

// UpdateFields writes the given columns of one ticket.
func (r *TicketRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&model.Ticket{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type TicketListFilter struct {
	Statuses       []model.TicketStatus
	CompanyID      *uuid.UUID
	BrandID        *uuid.UUID
	ToolID         *uuid.UUID
	BatchID        *uuid.UUID
	InboundFrom    *datatypes.Date
	InboundTo      *datatypes.Date
	EstimateStatus *bool
	TaxInvoice     *bool
	Search         *string
	Limit          int
	Offset         int
}

func (r *TicketRepository) List(ctx context.Context, filter TicketListFilter) ([]model.Ticket, error) {
	var tickets []model.Ticket
	query := r.db.WithContext(ctx).Model(&model.Ticket{}).Select("as_tickets.*")

	if len(filter.Statuses) > 0 {
		query = query.Where("as_tickets.status IN ?", statusStrings(filter.Statuses))
	}
	if filter.CompanyID != nil {
		query = query.Where("as_tickets.company_id = ?", *filter.CompanyID)
	}
	if filter.ToolID != nil {
		query = query.Where("as_tickets.tool_id = ?", *filter.ToolID)
	}
	if filter.BatchID != nil {
		query = query.Where("as_tickets.inbound_batch_id = ?", *filter.BatchID)
	}
	if filter.InboundFrom != nil {
		query = query.Where("as_tickets.inbound_date >= ?", *filter.InboundFrom)
	}
	if filter.InboundTo != nil {
		query = query.Where("as_tickets.inbound_date <= ?", *filter.InboundTo)
	}
	if filter.EstimateStatus != nil {
		query = query.Where("as_tickets.estimate_status = ?", *filter.EstimateStatus)
	}
	if filter.TaxInvoice != nil {
		query = query.Where("as_tickets.tax_invoice = ?", *filter.TaxInvoice)
	}

	search := ""
	if filter.Search != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.Search))
	}
	if search != "" || filter.BrandID != nil {
		query = query.
			Joins("JOIN tools ON tools.id = as_tickets.tool_id").
			Joins("JOIN brands ON brands.id = tools.brand_id").
			Joins("JOIN companies ON companies.id = as_tickets.company_id")
	}
	if filter.BrandID != nil {
		query = query.Where("tools.brand_id = ?", *filter.BrandID)
	}
	if search != "" {
		pattern := likePattern(search)
		query = query.Where(
			"(LOWER(as_tickets.serial_number) LIKE ? ESCAPE '\\' OR LOWER(companies.name) LIKE ? ESCAPE '\\' OR LOWER(tools.model_name) LIKE ? ESCAPE '\\' OR LOWER(brands.name) LIKE ? ESCAPE '\\')",
			pattern, pattern, pattern, pattern,
		)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	err := r.withRelations(query).
		Order("as_tickets.inbound_date DESC").
		Order("as_tickets.created_at DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// FindActiveUnits returns active tickets matching any of the given units,
// ignoring tickets whose ids are in exclude. One query narrows by tool and
// serial, the exact pair match happens in memory.
func (r *TicketRepository) FindActiveUnits(ctx context.Context, keys []model.UnitKey, exclude []uuid.UUID) ([]model.Ticket, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	wanted := make(map[model.UnitKey]struct{}, len(keys))
	toolSet := make(map[uuid.UUID]struct{})
	serialSet := make(map[string]struct{})
	toolIDs := make([]uuid.UUID, 0, len(keys))
	serials := make([]string, 0, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
		if _, ok := toolSet[k.ToolID]; !ok {
			toolSet[k.ToolID] = struct{}{}
			toolIDs = append(toolIDs, k.ToolID)
		}
		if _, ok := serialSet[k.SerialNumber]; !ok {
			serialSet[k.SerialNumber] = struct{}{}
			serials = append(serials, k.SerialNumber)
		}
	}

	query := r.db.WithContext(ctx).
		Preload("Tool.Brand").
		Where("status IN ?", statusStrings(model.ActiveStatuses)).
		Where("tool_id IN ?", toolIDs).
		Where("serial_number IN ?", serials)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var candidates []model.Ticket
	if err := query.Order("created_at ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}

	matches := make([]model.Ticket, 0, len(candidates))
	for _, t := range candidates {
		if _, ok := wanted[t.UnitKey()]; ok {
			matches = append(matches, t)
		}
	}
	return matches, nil
}

// StatusesByIDs returns the current status of each existing ticket.
func (r *TicketRepository) StatusesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.TicketStatus, error) {
	var rows []struct {
		ID     uuid.UUID
		Status model.TicketStatus
	}
	err := r.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("id, status").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]model.TicketStatus, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Status
	}
	return out, nil
}

type StatusUpdate struct {
	Status             model.TicketStatus
	OutboundDate       *datatypes.Date
	OutsourceCompanyID *uuid.UUID
}

// UpdateStatus applies one status to every listed ticket in a single
// statement and reports how many rows it touched.
func (r *TicketRepository) UpdateStatus(ctx context.Context, ids []uuid.UUID, update StatusUpdate) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	fields := map[string]interface{}{
		"status": string(update.Status),
	}
	if update.OutboundDate != nil {
		fields["outbound_date"] = *update.OutboundDate
	}
	if update.OutsourceCompanyID != nil {
		fields["outsource_company_id"] = *update.OutsourceCompanyID
	}
	result := r.db.WithContext(ctx).Model(&model.Ticket{}).Where("id IN ?", ids).Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *TicketRepository) SumPartPrices(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Table("as_ticket_parts").
		Select("CAST(COALESCE(SUM(parts.price), 0) AS BIGINT)").
		Joins("JOIN parts ON parts.id = as_ticket_parts.part_id").
		Where("as_ticket_parts.ticket_id = ?", ticketID).
		Scan(&total).Error
	return total, err
}

// UpdateRepairCost writes repair_cost alone; updated_at and hooks are skipped.
func (r *TicketRepository) UpdateRepairCost(ctx context.Context, ticketID uuid.UUID, cost int64) error {
	return r.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("id = ?", ticketID).
		UpdateColumn("repair_cost", cost).Error
}

func (r *TicketRepository) PartIDs(ctx context.Context, ticketID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&ticketPart{}).
		Where("ticket_id = ?", ticketID).
		Pluck("part_id", &ids).Error
	return ids, err
}

// ReplaceParts makes partIDs the complete used-part set of a ticket.
func (r *TicketRepository) ReplaceParts(ctx context.Context, ticketID uuid.UUID, partIDs []uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("ticket_id = ?", ticketID).Delete(&ticketPart{}).Error; err != nil {
		return err
	}
	if len(partIDs) == 0 {
		return nil
	}
	rows := make([]ticketPart, 0, len(partIDs))
	for _, id := range partIDs {
		rows = append(rows, ticketPart{TicketID: ticketID, PartID: id})
	}
	return db.Create(&rows).Error
}

// DeleteFromBatch removes the listed tickets of one batch.
func (r *TicketRepository) DeleteFromBatch(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	var owned []uuid.UUID
	if err := db.Model(&model.Ticket{}).
		Where("id IN ? AND inbound_batch_id = ?", ids, batchID).
		Pluck("id", &owned).Error; err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}
	if err := db.Where("ticket_id IN ?", owned).Delete(&ticketPart{}).Error; err != nil {
		return 0, err
	}
	if err := db.Where("ticket_id IN ?", owned).Delete(&model.TicketStatusLog{}).Error; err != nil {
		return 0, err
	}
	result := db.Where("id IN ?", owned).Delete(&model.Ticket{})
	return result.RowsAffected, result.Error
}

type TicketCountFilter struct {
	Statuses    []model.TicketStatus
	InboundFrom *datatypes.Date
	InboundTo   *datatypes.Date // exclusive
}

func (r *TicketRepository) Count(ctx context.Context, filter TicketCountFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.Ticket{})
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", statusStrings(filter.Statuses))
	}
	if filter.InboundFrom != nil {
		query = query.Where("inbound_date >= ?", *filter.InboundFrom)
	}
	if filter.InboundTo != nil {
		query = query.Where("inbound_date < ?", *filter.InboundTo)
	}
	err := query.Count(&count).Error
	return count, err
}

// ClearOutsourceCompany detaches tickets from an outsource company about to
// be removed. updated_at is left untouched.
func (r *TicketRepository) ClearOutsourceCompany(ctx context.Context, companyID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("outsource_company_id = ?", companyID).
		UpdateColumn("outsource_company_id", nil).Error
}

func (r *TicketRepository) ExistsForTool(ctx context.Context, toolID uuid.UUID) (bool, error) {
	return r.exists(ctx, "tool_id = ?", toolID)
}

func (r *TicketRepository) ExistsForCompany(ctx context.Context, companyID uuid.UUID) (bool, error) {
	return r.exists(ctx, "company_id = ?", companyID)
}

func (r *TicketRepository) ExistsForPart(ctx context.Context, partID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ticketPart{}).Where("part_id = ?", partID).Count(&count).Error
	return count > 0, err
}

func (r *TicketRepository) exists(ctx context.Context, cond string, arg interface{}) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Ticket{}).Where(cond, arg).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
