package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"as-service/internal/model"
	"as-service/internal/repository"
)

// MasterService maintains companies, price groups, brands, tools, parts and
// outsource companies.
type MasterService struct {
	repos *repository.Repositories
	log   zerolog.Logger
}

func NewMasterService(repos *repository.Repositories, log zerolog.Logger) *MasterService {
	return &MasterService{repos: repos, log: log}
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", missingFields("name")
	}
	return name, nil
}

// Price groups

func (s *MasterService) CreatePriceGroup(ctx context.Context, name string) (*model.PriceGroup, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	group := &model.PriceGroup{Name: name}
	if err := s.repos.PriceGroup.Create(ctx, group); err != nil {
		return nil, storeError(err)
	}
	return group, nil
}

func (s *MasterService) UpdatePriceGroup(ctx context.Context, id uuid.UUID, name string) (*model.PriceGroup, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	group, err := s.repos.PriceGroup.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	group.Name = name
	if err := s.repos.PriceGroup.Update(ctx, group); err != nil {
		return nil, storeError(err)
	}
	return group, nil
}

func (s *MasterService) ListPriceGroups(ctx context.Context) ([]model.PriceGroup, error) {
	return s.repos.PriceGroup.List(ctx)
}

// DeletePriceGroup removes the group; its companies keep existing without
// a group.
func (s *MasterService) DeletePriceGroup(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Company.ClearPriceGroup(ctx, id); err != nil {
			return err
		}
		return tx.PriceGroup.Delete(ctx, id)
	})
	return storeError(err)
}

// Companies

type CompanyInput struct {
	Name         string
	CompanyType  model.CompanyType
	PriceGroupID *uuid.UUID
	Region       string
	Address      string
}

func (s *MasterService) companyFromInput(ctx context.Context, company *model.Company, input CompanyInput) error {
	name, err := requireName(input.Name)
	if err != nil {
		return err
	}
	companyType := input.CompanyType
	if companyType == "" {
		companyType = model.CompanyTypeClient
	}
	if !companyType.Valid() {
		return fmt.Errorf("%w: unknown company type %q", ErrInvalidInput, companyType)
	}
	if input.PriceGroupID != nil {
		if _, err := s.repos.PriceGroup.GetByID(ctx, *input.PriceGroupID); err != nil {
			return notFound(err)
		}
	}
	company.Name = name
	company.CompanyType = companyType
	company.PriceGroupID = input.PriceGroupID
	company.Region = strings.TrimSpace(input.Region)
	company.Address = strings.TrimSpace(input.Address)
	company.PriceGroup = nil
	return nil
}

func (s *MasterService) CreateCompany(ctx context.Context, input CompanyInput) (*model.Company, error) {
	company := &model.Company{}
	if err := s.companyFromInput(ctx, company, input); err != nil {
		return nil, err
	}
	if err := s.repos.Company.Create(ctx, company); err != nil {
		return nil, storeError(err)
	}
	return company, nil
}

func (s *MasterService) UpdateCompany(ctx context.Context, id uuid.UUID, input CompanyInput) (*model.Company, error) {
	company, err := s.repos.Company.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.companyFromInput(ctx, company, input); err != nil {
		return nil, err
	}
	if err := s.repos.Company.Update(ctx, company); err != nil {
		return nil, storeError(err)
	}
	return company, nil
}

func (s *MasterService) ListCompanies(ctx context.Context, filter repository.CompanyListFilter) ([]model.Company, error) {
	return s.repos.Company.List(ctx, filter)
}

// DeleteCompany refuses while tickets or batches reference the company.
func (s *MasterService) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		used, err := tx.Ticket.ExistsForCompany(ctx, id)
		if err != nil {
			return err
		}
		if !used {
			if used, err = tx.Batch.ExistsForCompany(ctx, id); err != nil {
				return err
			}
		}
		if used {
			return fmt.Errorf("%w: company has tickets", ErrConflict)
		}
		return tx.Company.Delete(ctx, id)
	})
	return storeError(err)
}

// Brands

func (s *MasterService) CreateBrand(ctx context.Context, name string) (*model.Brand, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	brand := &model.Brand{Name: name}
	if err := s.repos.Brand.Create(ctx, brand); err != nil {
		return nil, storeError(err)
	}
	return brand, nil
}

func (s *MasterService) UpdateBrand(ctx context.Context, id uuid.UUID, name string) (*model.Brand, error) {
	name, err := requireName(name)
	if err != nil {
		return nil, err
	}
	brand, err := s.repos.Brand.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	brand.Name = name
	if err := s.repos.Brand.Update(ctx, brand); err != nil {
		return nil, storeError(err)
	}
	return brand, nil
}

func (s *MasterService) ListBrands(ctx context.Context) ([]model.Brand, error) {
	return s.repos.Brand.List(ctx)
}

func (s *MasterService) DeleteBrand(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		count, err := tx.Tool.CountByBrand(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: brand has %d tools", ErrConflict, count)
		}
		return tx.Brand.Delete(ctx, id)
	})
	return storeError(err)
}

// Tools

type ToolInput struct {
	BrandID   uuid.UUID
	ModelName string
}

func (s *MasterService) toolFromInput(ctx context.Context, tool *model.Tool, input ToolInput) error {
	modelName := strings.TrimSpace(input.ModelName)
	var missing []string
	if input.BrandID == uuid.Nil {
		missing = append(missing, "brand_id")
	}
	if modelName == "" {
		missing = append(missing, "model_name")
	}
	if len(missing) > 0 {
		return missingFields(missing...)
	}
	brand, err := s.repos.Brand.GetByID(ctx, input.BrandID)
	if err != nil {
		return notFound(err)
	}
	tool.BrandID = brand.ID
	tool.ModelName = modelName
	tool.Brand = brand
	return nil
}

func (s *MasterService) CreateTool(ctx context.Context, input ToolInput) (*model.Tool, error) {
	tool := &model.Tool{}
	if err := s.toolFromInput(ctx, tool, input); err != nil {
		return nil, err
	}
	if err := s.repos.Tool.Create(ctx, tool); err != nil {
		return nil, storeError(err)
	}
	return tool, nil
}

func (s *MasterService) UpdateTool(ctx context.Context, id uuid.UUID, input ToolInput) (*model.Tool, error) {
	tool, err := s.repos.Tool.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.toolFromInput(ctx, tool, input); err != nil {
		return nil, err
	}
	if err := s.repos.Tool.Update(ctx, tool); err != nil {
		return nil, storeError(err)
	}
	return tool, nil
}

func (s *MasterService) ListTools(ctx context.Context, brandID *uuid.UUID) ([]model.Tool, error) {
	return s.repos.Tool.List(ctx, brandID)
}

// DeleteTool refuses while tickets or parts reference the tool.
func (s *MasterService) DeleteTool(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		used, err := tx.Ticket.ExistsForTool(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: tool has tickets", ErrConflict)
		}
		if used, err = tx.Part.ExistsForTool(ctx, id); err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: tool has dedicated parts", ErrConflict)
		}
		return tx.Tool.Delete(ctx, id)
	})
	return storeError(err)
}

// Parts

type PartInput struct {
	Name     string
	Code     string
	Price    int64
	PartType model.PartType
	ToolIDs  []uuid.UUID
}

func (s *MasterService) savePart(ctx context.Context, part *model.Part, input PartInput, create bool) (*model.Part, error) {
	name, err := requireName(input.Name)
	if err != nil {
		return nil, err
	}
	if input.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	partType := input.PartType
	if partType == "" {
		partType = model.PartTypeDedicated
	}
	if !partType.Valid() {
		return nil, fmt.Errorf("%w: unknown part type %q", ErrInvalidInput, partType)
	}
	toolIDs := uniqueIDs(input.ToolIDs)

	part.Name = name
	part.Code = strings.TrimSpace(input.Code)
	part.Price = input.Price
	part.PartType = partType

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		tools, err := tx.Tool.GetByIDs(ctx, toolIDs)
		if err != nil {
			return err
		}
		if len(tools) != len(toolIDs) {
			return fmt.Errorf("%w: unknown tool", ErrNotFound)
		}
		if create {
			err = tx.Part.Create(ctx, part)
		} else {
			err = tx.Part.Update(ctx, part)
		}
		if err != nil {
			return err
		}
		return tx.Part.SetTools(ctx, part.ID, toolIDs)
	})
	if err != nil {
		return nil, storeError(err)
	}
	return s.repos.Part.GetByID(ctx, part.ID)
}

func (s *MasterService) CreatePart(ctx context.Context, input PartInput) (*model.Part, error) {
	return s.savePart(ctx, &model.Part{}, input, true)
}

// UpdatePart changes the part definition. Costs of tickets already using the
// part are not recomputed; they follow the next edit of their part set.
func (s *MasterService) UpdatePart(ctx context.Context, id uuid.UUID, input PartInput) (*model.Part, error) {
	part, err := s.repos.Part.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	part.Tools = nil
	return s.savePart(ctx, part, input, false)
}

func (s *MasterService) ListParts(ctx context.Context, filter repository.PartListFilter) ([]model.Part, error) {
	return s.repos.Part.List(ctx, filter)
}

func (s *MasterService) DeletePart(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		used, err := tx.Ticket.ExistsForPart(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: part is used by tickets", ErrConflict)
		}
		return tx.Part.Delete(ctx, id)
	})
	return storeError(err)
}

// Outsource companies

type OutsourceCompanyInput struct {
	Name    string
	Contact string
	Memo    string
}

func (s *MasterService) CreateOutsourceCompany(ctx context.Context, input OutsourceCompanyInput) (*model.OutsourceCompany, error) {
	name, err := requireName(input.Name)
	if err != nil {
		return nil, err
	}
	company := &model.OutsourceCompany{
		Name:    name,
		Contact: strings.TrimSpace(input.Contact),
		Memo:    input.Memo,
	}
	if err := s.repos.OutsourceCompany.Create(ctx, company); err != nil {
		return nil, storeError(err)
	}
	return company, nil
}

func (s *MasterService) UpdateOutsourceCompany(ctx context.Context, id uuid.UUID, input OutsourceCompanyInput) (*model.OutsourceCompany, error) {
	name, err := requireName(input.Name)
	if err != nil {
		return nil, err
	}
	company, err := s.repos.OutsourceCompany.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	company.Name = name
	company.Contact = strings.TrimSpace(input.Contact)
	company.Memo = input.Memo
	if err := s.repos.OutsourceCompany.Update(ctx, company); err != nil {
		return nil, storeError(err)
	}
	return company, nil
}

func (s *MasterService) ListOutsourceCompanies(ctx context.Context) ([]model.OutsourceCompany, error) {
	return s.repos.OutsourceCompany.List(ctx)
}

// DeleteOutsourceCompany removes the company and clears it from tickets.
func (s *MasterService) DeleteOutsourceCompany(ctx context.Context, id uuid.UUID) error {
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Ticket.ClearOutsourceCompany(ctx, id); err != nil {
			return err
		}
		return tx.OutsourceCompany.Delete(ctx, id)
	})
	return storeError(err)
}
