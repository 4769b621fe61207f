package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceGroup separates companies that are quoted with different rates.
type PriceGroup struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
}

func (PriceGroup) TableName() string {
	return "price_groups"
}

func (g *PriceGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

type CompanyType string

const (
	CompanyTypeSales  CompanyType = "sales"
	CompanyTypeClient CompanyType = "client"
	CompanyTypeBoth   CompanyType = "both"
)

func (t CompanyType) Valid() bool {
	switch t {
	case CompanyTypeSales, CompanyTypeClient, CompanyTypeBoth:
		return true
	default:
		return false
	}
}

type Company struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string      `gorm:"type:varchar(200);not null;index" json:"name"`
	CompanyType  CompanyType `gorm:"type:varchar(10);not null" json:"company_type"`
	PriceGroupID *uuid.UUID  `gorm:"type:uuid;index" json:"price_group_id"`
	Region       string      `gorm:"type:varchar(100)" json:"region"`
	Address      string      `gorm:"type:text" json:"address"`

	PriceGroup *PriceGroup `gorm:"foreignKey:PriceGroupID" json:"price_group,omitempty"`
}

func (Company) TableName() string {
	return "companies"
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Company) Label() string {
	if c.Region != "" {
		return fmt.Sprintf("%s [%s]", c.Name, c.Region)
	}
	return c.Name
}

type Brand struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:varchar(200);not null;uniqueIndex" json:"name"`
}

func (Brand) TableName() string {
	return "brands"
}

func (b *Brand) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Tool is a brand's equipment model. (brand, model name) is unique.
type Tool struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BrandID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_tools_brand_model" json:"brand_id"`
	ModelName string    `gorm:"type:varchar(200);not null;uniqueIndex:uq_tools_brand_model" json:"model_name"`

	Brand *Brand `gorm:"foreignKey:BrandID" json:"brand,omitempty"`
}

func (Tool) TableName() string {
	return "tools"
}

func (t *Tool) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Tool) Label() string {
	if t.Brand == nil {
		return t.ModelName
	}
	return fmt.Sprintf("%s > %s", t.Brand.Name, t.ModelName)
}

type PartType string

const (
	PartTypeDedicated PartType = "dedicated"
	PartTypeCommon    PartType = "common"
)

func (t PartType) Valid() bool {
	return t == PartTypeDedicated || t == PartTypeCommon
}

// Part is a billable repair item. An empty tool list means the part
// applies to every tool.
type Part struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"type:varchar(200);not null;index" json:"name"`
	Code     string    `gorm:"type:varchar(100)" json:"code"`
	Price    int64     `gorm:"not null;check:chk_parts_price,price >= 0" json:"price"`
	PartType PartType  `gorm:"type:varchar(10);not null" json:"part_type"`

	Tools []Tool `gorm:"many2many:part_tools;joinForeignKey:PartID;joinReferences:ToolID" json:"tools,omitempty"`
}

func (Part) TableName() string {
	return "parts"
}

func (p *Part) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Part) Label() string {
	label := "Dedicated"
	if p.PartType == PartTypeCommon {
		label = "Common"
	}
	return fmt.Sprintf("[%s] %s", label, p.Name)
}

func (p *Part) ToolList() string {
	if len(p.Tools) == 0 {
		return "Common (all tools)"
	}
	labels := make([]string, 0, len(p.Tools))
	for i := range p.Tools {
		labels = append(labels, p.Tools[i].Label())
	}
	return strings.Join(labels, ", ")
}

// OutsourceCompany is an external repair shop a ticket can be sent to.
type OutsourceCompany struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"type:varchar(200);not null" json:"name"`
	Contact string    `gorm:"type:varchar(200)" json:"contact"`
	Memo    string    `gorm:"type:text" json:"memo"`
}

func (OutsourceCompany) TableName() string {
	return "outsource_companies"
}

func (o *OutsourceCompany) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
