package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"as-service/internal/model"
	"as-service/internal/repository"
	"as-service/internal/service"
)

func (h *Handler) registerMaster(api *gin.RouterGroup) {
	priceGroups := api.Group("/price-groups")
	{
		priceGroups.GET("", h.listPriceGroups)
		priceGroups.POST("", h.createPriceGroup)
		priceGroups.PUT("/:id", h.updatePriceGroup)
		priceGroups.DELETE("/:id", h.deleteByID(h.masterService.DeletePriceGroup))
	}

	companies := api.Group("/companies")
	{
		companies.GET("", h.listCompanies)
		companies.POST("", h.createCompany)
		companies.PUT("/:id", h.updateCompany)
		companies.DELETE("/:id", h.deleteByID(h.masterService.DeleteCompany))
	}

	brands := api.Group("/brands")
	{
		brands.GET("", h.listBrands)
		brands.POST("", h.createBrand)
		brands.PUT("/:id", h.updateBrand)
		brands.DELETE("/:id", h.deleteByID(h.masterService.DeleteBrand))
	}

	tools := api.Group("/tools")
	{
		tools.GET("", h.listTools)
		tools.POST("", h.createTool)
		tools.PUT("/:id", h.updateTool)
		tools.DELETE("/:id", h.deleteByID(h.masterService.DeleteTool))
	}

	parts := api.Group("/parts")
	{
		parts.GET("", h.listParts)
		parts.POST("", h.createPart)
		parts.PUT("/:id", h.updatePart)
		parts.DELETE("/:id", h.deleteByID(h.masterService.DeletePart))
	}

	outsource := api.Group("/outsource-companies")
	{
		outsource.GET("", h.listOutsourceCompanies)
		outsource.POST("", h.createOutsourceCompany)
		outsource.PUT("/:id", h.updateOutsourceCompany)
		outsource.DELETE("/:id", h.deleteByID(h.masterService.DeleteOutsourceCompany))
	}
}

func (h *Handler) deleteByID(remove func(ctx context.Context, id uuid.UUID) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		if err := remove(c.Request.Context(), id); err != nil {
			h.handleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) listPriceGroups(c *gin.Context) {
	groups, err := h.masterService.ListPriceGroups(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(groups))
}

func (h *Handler) createPriceGroup(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	group, err := h.masterService.CreatePriceGroup(c.Request.Context(), req.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(group))
}

func (h *Handler) updatePriceGroup(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	group, err := h.masterService.UpdatePriceGroup(c.Request.Context(), id, req.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(group))
}

type companyRequest struct {
	Name         string `json:"name" binding:"required"`
	CompanyType  string `json:"company_type"`
	PriceGroupID string `json:"price_group_id"`
	Region       string `json:"region"`
	Address      string `json:"address"`
}

func (h *Handler) bindCompany(c *gin.Context) (service.CompanyInput, bool) {
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return service.CompanyInput{}, false
	}
	priceGroupID, err := parseOptionalUUID(req.PriceGroupID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid price_group_id"))
		return service.CompanyInput{}, false
	}
	return service.CompanyInput{
		Name:         req.Name,
		CompanyType:  model.CompanyType(strings.ToLower(strings.TrimSpace(req.CompanyType))),
		PriceGroupID: priceGroupID,
		Region:       req.Region,
		Address:      req.Address,
	}, true
}

func (h *Handler) listCompanies(c *gin.Context) {
	var filter repository.CompanyListFilter
	if raw := strings.TrimSpace(c.Query("company_type")); raw != "" {
		companyType := model.CompanyType(strings.ToLower(raw))
		filter.CompanyType = &companyType
	}
	if raw := strings.TrimSpace(c.Query("search")); raw != "" {
		filter.Search = &raw
	}

	companies, err := h.masterService.ListCompanies(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(companies))
}

func (h *Handler) createCompany(c *gin.Context) {
	input, ok := h.bindCompany(c)
	if !ok {
		return
	}
	company, err := h.masterService.CreateCompany(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(company))
}

func (h *Handler) updateCompany(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	input, ok := h.bindCompany(c)
	if !ok {
		return
	}
	company, err := h.masterService.UpdateCompany(c.Request.Context(), id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(company))
}

func (h *Handler) listBrands(c *gin.Context) {
	brands, err := h.masterService.ListBrands(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(brands))
}

func (h *Handler) createBrand(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	brand, err := h.masterService.CreateBrand(c.Request.Context(), req.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(brand))
}

func (h *Handler) updateBrand(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	brand, err := h.masterService.UpdateBrand(c.Request.Context(), id, req.Name)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(brand))
}

func (h *Handler) bindTool(c *gin.Context) (service.ToolInput, bool) {
	var req struct {
		BrandID   string `json:"brand_id"`
		ModelName string `json:"model_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return service.ToolInput{}, false
	}
	brandID, err := parseOptionalUUIDValue(req.BrandID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid brand_id"))
		return service.ToolInput{}, false
	}
	return service.ToolInput{BrandID: brandID, ModelName: req.ModelName}, true
}

func (h *Handler) listTools(c *gin.Context) {
	brandID, err := parseOptionalUUID(c.Query("brand_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid brand_id"))
		return
	}
	tools, err := h.masterService.ListTools(c.Request.Context(), brandID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(tools))
}

func (h *Handler) createTool(c *gin.Context) {
	input, ok := h.bindTool(c)
	if !ok {
		return
	}
	tool, err := h.masterService.CreateTool(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(tool))
}

func (h *Handler) updateTool(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	input, ok := h.bindTool(c)
	if !ok {
		return
	}
	tool, err := h.masterService.UpdateTool(c.Request.Context(), id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(tool))
}

func (h *Handler) bindPart(c *gin.Context) (service.PartInput, bool) {
	var req struct {
		Name     string   `json:"name" binding:"required"`
		Code     string   `json:"code"`
		Price    int64    `json:"price"`
		PartType string   `json:"part_type"`
		ToolIDs  []string `json:"tool_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return service.PartInput{}, false
	}
	toolIDs, err := parseUUIDList(req.ToolIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid tool_ids"))
		return service.PartInput{}, false
	}
	return service.PartInput{
		Name:     req.Name,
		Code:     req.Code,
		Price:    req.Price,
		PartType: model.PartType(strings.ToLower(strings.TrimSpace(req.PartType))),
		ToolIDs:  toolIDs,
	}, true
}

func (h *Handler) listParts(c *gin.Context) {
	var filter repository.PartListFilter
	toolID, err := parseOptionalUUID(c.Query("tool_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid tool_id"))
		return
	}
	filter.ToolID = toolID
	if raw := strings.TrimSpace(c.Query("part_type")); raw != "" {
		partType := model.PartType(strings.ToLower(raw))
		filter.PartType = &partType
	}
	if raw := strings.TrimSpace(c.Query("search")); raw != "" {
		filter.Search = &raw
	}

	parts, err := h.masterService.ListParts(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(parts))
}

func (h *Handler) createPart(c *gin.Context) {
	input, ok := h.bindPart(c)
	if !ok {
		return
	}
	part, err := h.masterService.CreatePart(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(part))
}

func (h *Handler) updatePart(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	input, ok := h.bindPart(c)
	if !ok {
		return
	}
	part, err := h.masterService.UpdatePart(c.Request.Context(), id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(part))
}

func (h *Handler) bindOutsourceCompany(c *gin.Context) (service.OutsourceCompanyInput, bool) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Contact string `json:"contact"`
		Memo    string `json:"memo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return service.OutsourceCompanyInput{}, false
	}
	return service.OutsourceCompanyInput{Name: req.Name, Contact: req.Contact, Memo: req.Memo}, true
}

func (h *Handler) listOutsourceCompanies(c *gin.Context) {
	companies, err := h.masterService.ListOutsourceCompanies(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(companies))
}

func (h *Handler) createOutsourceCompany(c *gin.Context) {
	input, ok := h.bindOutsourceCompany(c)
	if !ok {
		return
	}
	company, err := h.masterService.CreateOutsourceCompany(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(company))
}

func (h *Handler) updateOutsourceCompany(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	input, ok := h.bindOutsourceCompany(c)
	if !ok {
		return
	}
	company, err := h.masterService.UpdateOutsourceCompany(c.Request.Context(), id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(company))
}
