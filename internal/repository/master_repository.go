package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"as-service/internal/model"
)

func firstByID[T any](ctx context.Context, db *gorm.DB, id uuid.UUID, preloads ...string) (*T, error) {
	var out T
	query := db.WithContext(ctx)
	for _, p := range preloads {
		query = query.Preload(p)
	}
	if err := query.Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &out, nil
}

func deleteByID[T any](ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	var zero T
	result := db.WithContext(ctx).Where("id = ?", id).Delete(&zero)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type PriceGroupRepository struct {
	db *gorm.DB
}

func NewPriceGroupRepository(db *gorm.DB) *PriceGroupRepository {
	return &PriceGroupRepository{db: db}
}

func (r *PriceGroupRepository) Create(ctx context.Context, group *model.PriceGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *PriceGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PriceGroup, error) {
	return firstByID[model.PriceGroup](ctx, r.db, id)
}

func (r *PriceGroupRepository) Update(ctx context.Context, group *model.PriceGroup) error {
	return r.db.WithContext(ctx).Save(group).Error
}

func (r *PriceGroupRepository) List(ctx context.Context) ([]model.PriceGroup, error) {
	var groups []model.PriceGroup
	err := r.db.WithContext(ctx).Order("name ASC").Find(&groups).Error
	return groups, err
}

func (r *PriceGroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[model.PriceGroup](ctx, r.db, id)
}

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) Create(ctx context.Context, company *model.Company) error {
	return r.db.WithContext(ctx).Omit("PriceGroup").Create(company).Error
}

func (r *CompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	return firstByID[model.Company](ctx, r.db, id, "PriceGroup")
}

func (r *CompanyRepository) Update(ctx context.Context, company *model.Company) error {
	return r.db.WithContext(ctx).Omit("PriceGroup").Save(company).Error
}

func (r *CompanyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[model.Company](ctx, r.db, id)
}

type CompanyListFilter struct {
	CompanyType *model.CompanyType
	Search      *string
}

func (r *CompanyRepository) List(ctx context.Context, filter CompanyListFilter) ([]model.Company, error) {
	var companies []model.Company
	query := r.db.WithContext(ctx).Preload("PriceGroup")
	if filter.CompanyType != nil {
		query = query.Where("company_type = ?", string(*filter.CompanyType))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		pattern := likePattern(strings.ToLower(strings.TrimSpace(*filter.Search)))
		query = query.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(region) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	err := query.Order("name ASC").Find(&companies).Error
	return companies, err
}

// ClearPriceGroup detaches every company from a price group about to be
// removed.
func (r *CompanyRepository) ClearPriceGroup(ctx context.Context, groupID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.Company{}).
		Where("price_group_id = ?", groupID).
		Update("price_group_id", nil).Error
}

type BrandRepository struct {
	db *gorm.DB
}

func NewBrandRepository(db *gorm.DB) *BrandRepository {
	return &BrandRepository{db: db}
}

func (r *BrandRepository) Create(ctx context.Context, brand *model.Brand) error {
	return r.db.WithContext(ctx).Create(brand).Error
}

func (r *BrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Brand, error) {
	return firstByID[model.Brand](ctx, r.db, id)
}

func (r *BrandRepository) Update(ctx context.Context, brand *model.Brand) error {
	return r.db.WithContext(ctx).Save(brand).Error
}

func (r *BrandRepository) List(ctx context.Context) ([]model.Brand, error) {
	var brands []model.Brand
	err := r.db.WithContext(ctx).Order("name ASC").Find(&brands).Error
	return brands, err
}

func (r *BrandRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[model.Brand](ctx, r.db, id)
}

type ToolRepository struct {
	db *gorm.DB
}

func NewToolRepository(db *gorm.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

func (r *ToolRepository) Create(ctx context.Context, tool *model.Tool) error {
	return r.db.WithContext(ctx).Omit("Brand").Create(tool).Error
}

func (r *ToolRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tool, error) {
	return firstByID[model.Tool](ctx, r.db, id, "Brand")
}

func (r *ToolRepository) Update(ctx context.Context, tool *model.Tool) error {
	return r.db.WithContext(ctx).Omit("Brand").Save(tool).Error
}

func (r *ToolRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Tool, error) {
	var tools []model.Tool
	if len(ids) == 0 {
		return tools, nil
	}
	err := r.db.WithContext(ctx).Preload("Brand").Where("id IN ?", ids).Find(&tools).Error
	return tools, err
}

func (r *ToolRepository) List(ctx context.Context, brandID *uuid.UUID) ([]model.Tool, error) {
	var tools []model.Tool
	query := r.db.WithContext(ctx).
		Preload("Brand").
		Joins("JOIN brands ON brands.id = tools.brand_id")
	if brandID != nil {
		query = query.Where("tools.brand_id = ?", *brandID)
	}
	err := query.Order("brands.name ASC").Order("tools.model_name ASC").Find(&tools).Error
	return tools, err
}

func (r *ToolRepository) CountByBrand(ctx context.Context, brandID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Tool{}).Where("brand_id = ?", brandID).Count(&count).Error
	return count, err
}

func (r *ToolRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[model.Tool](ctx, r.db, id)
}

// partTool is a row of the parts-to-tools join table.
type partTool struct {
	PartID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ToolID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (partTool) TableName() string {
	return "part_tools"
}

type PartRepository struct {
	db *gorm.DB
}

func NewPartRepository(db *gorm.DB) *PartRepository {
	return &PartRepository{db: db}
}

func (r *PartRepository) Create(ctx context.Context, part *model.Part) error {
	return r.db.WithContext(ctx).Omit("Tools").Create(part).Error
}

func (r *PartRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Part, error) {
	return firstByID[model.Part](ctx, r.db, id, "Tools.Brand")
}

func (r *PartRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Part, error) {
	var parts []model.Part
	if len(ids) == 0 {
		return parts, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&parts).Error
	return parts, err
}

func (r *PartRepository) Update(ctx context.Context, part *model.Part) error {
	return r.db.WithContext(ctx).Omit("Tools").Save(part).Error
}

func (r *PartRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("part_id = ?", id).Delete(&partTool{}).Error; err != nil {
		return err
	}
	return deleteByID[model.Part](ctx, r.db, id)
}

// ExistsForTool reports whether any part is restricted to the tool.
func (r *PartRepository) ExistsForTool(ctx context.Context, toolID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&partTool{}).Where("tool_id = ?", toolID).Count(&count).Error
	return count > 0, err
}

// SetTools replaces the tools a part is restricted to.
func (r *PartRepository) SetTools(ctx context.Context, partID uuid.UUID, toolIDs []uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("part_id = ?", partID).Delete(&partTool{}).Error; err != nil {
		return err
	}
	if len(toolIDs) == 0 {
		return nil
	}
	rows := make([]partTool, 0, len(toolIDs))
	for _, id := range toolIDs {
		rows = append(rows, partTool{PartID: partID, ToolID: id})
	}
	return db.Create(&rows).Error
}

type PartListFilter struct {
	// ToolID narrows to parts usable on the tool: its dedicated parts plus
	// every part without a tool restriction.
	ToolID   *uuid.UUID
	PartType *model.PartType
	Search   *string
}

func (r *PartRepository) List(ctx context.Context, filter PartListFilter) ([]model.Part, error) {
	var parts []model.Part
	query := r.db.WithContext(ctx).Preload("Tools.Brand")
	if filter.ToolID != nil {
		query = query.Where(
			"(id IN (SELECT part_id FROM part_tools WHERE tool_id = ?) OR id NOT IN (SELECT part_id FROM part_tools))",
			*filter.ToolID,
		)
	}
	if filter.PartType != nil {
		query = query.Where("part_type = ?", string(*filter.PartType))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		pattern := likePattern(strings.ToLower(strings.TrimSpace(*filter.Search)))
		query = query.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(code) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	err := query.Order("name ASC").Find(&parts).Error
	return parts, err
}

type OutsourceCompanyRepository struct {
	db *gorm.DB
}

func NewOutsourceCompanyRepository(db *gorm.DB) *OutsourceCompanyRepository {
	return &OutsourceCompanyRepository{db: db}
}

func (r *OutsourceCompanyRepository) Create(ctx context.Context, company *model.OutsourceCompany) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *OutsourceCompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OutsourceCompany, error) {
	return firstByID[model.OutsourceCompany](ctx, r.db, id)
}

func (r *OutsourceCompanyRepository) List(ctx context.Context) ([]model.OutsourceCompany, error) {
	var companies []model.OutsourceCompany
	err := r.db.WithContext(ctx).Order("name ASC").Find(&companies).Error
	return companies, err
}

func (r *OutsourceCompanyRepository) Update(ctx context.Context, company *model.OutsourceCompany) error {
	return r.db.WithContext(ctx).Save(company).Error
}

func (r *OutsourceCompanyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[model.OutsourceCompany](ctx, r.db, id)
}
