package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"as-service/internal/http/middleware"
	"as-service/internal/model"
	"as-service/internal/service"
	"as-service/internal/utils"
)

type Handler struct {
	intakeService     *service.IntakeService
	transitionService *service.TransitionService
	costService       *service.CostService
	projectionService *service.ProjectionService
	masterService     *service.MasterService
	dashboardService  *service.DashboardService
	log               zerolog.Logger
}

func NewHandler(
	intakeService *service.IntakeService,
	transitionService *service.TransitionService,
	costService *service.CostService,
	projectionService *service.ProjectionService,
	masterService *service.MasterService,
	dashboardService *service.DashboardService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		intakeService:     intakeService,
		transitionService: transitionService,
		costService:       costService,
		projectionService: projectionService,
		masterService:     masterService,
		dashboardService:  dashboardService,
		log:               log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := r.Group("/api/v1")
	api.Use(authMiddleware)

	intake := api.Group("/intake")
	{
		intake.POST("/batches", h.submitBatch)
		intake.GET("/batches", h.listBatches)
		intake.GET("/batches/:id", h.getBatch)
		intake.PUT("/batches/:id", h.editBatch)
	}

	tickets := api.Group("/tickets")
	{
		tickets.POST("", h.createTicket)
		tickets.POST("/status", h.changeStatus)
		tickets.PUT("/:id/parts", h.setTicketParts)
		tickets.POST("/:id/recompute-cost", h.recomputeCost)
		tickets.GET("/:id/history", h.ticketHistory)
	}

	views := api.Group("/views/:view")
	{
		views.GET("/tickets", h.listViewTickets)
		views.GET("/tickets/:id", h.getViewTicket)
		views.PATCH("/tickets/:id", h.updateViewTicket)
	}

	h.registerMaster(api)

	api.GET("/dashboard", h.getDashboard)
}

type intakeRowRequest struct {
	TicketID     string `json:"ticket_id"`
	ToolID       string `json:"tool_id"`
	SerialNumber string `json:"serial_number"`
	Symptom      string `json:"symptom"`
	Deleted      bool   `json:"deleted"`
}

type intakeBatchRequest struct {
	InboundDate string             `json:"inbound_date"`
	CompanyID   string             `json:"company_id"`
	Manager     string             `json:"manager"`
	Memo        string             `json:"memo"`
	Rows        []intakeRowRequest `json:"rows"`
}

func (req intakeBatchRequest) toInput() (service.IntakeBatchInput, error) {
	input := service.IntakeBatchInput{
		Manager: req.Manager,
		Memo:    req.Memo,
	}

	var err error
	if input.InboundDate, err = parseOptionalDateValue(req.InboundDate); err != nil {
		return input, fmt.Errorf("inbound_date: %w", err)
	}
	if input.CompanyID, err = parseOptionalUUIDValue(req.CompanyID); err != nil {
		return input, fmt.Errorf("company_id: %w", err)
	}

	input.Rows = make([]service.IntakeRowInput, 0, len(req.Rows))
	for i, row := range req.Rows {
		toolID, err := parseOptionalUUIDValue(row.ToolID)
		if err != nil {
			return input, fmt.Errorf("rows[%d].tool_id: %w", i, err)
		}
		ticketID, err := parseOptionalUUID(row.TicketID)
		if err != nil {
			return input, fmt.Errorf("rows[%d].ticket_id: %w", i, err)
		}
		input.Rows = append(input.Rows, service.IntakeRowInput{
			ToolID:     toolID,
			SerialText: row.SerialNumber,
			Symptom:    row.Symptom,
			Deleted:    row.Deleted,
			TicketID:   ticketID,
		})
	}
	return input, nil
}

func (h *Handler) submitBatch(c *gin.Context) {
	h.saveBatch(c, nil, http.StatusCreated)
}

func (h *Handler) editBatch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	h.saveBatch(c, &id, http.StatusOK)
}

func (h *Handler) saveBatch(c *gin.Context, batchID *uuid.UUID, status int) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req intakeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	input.BatchID = batchID

	result, err := h.intakeService.SubmitBatch(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(status, successResponse(result))
}

func (h *Handler) listBatches(c *gin.Context) {
	companyID, err := parseOptionalUUID(c.Query("company_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid company_id"))
		return
	}
	page, limit, ok := pagination(c)
	if !ok {
		return
	}

	batches, err := h.intakeService.ListBatches(c.Request.Context(), service.BatchFilter{
		CompanyID: companyID,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(batches))
}

func (h *Handler) getBatch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	batch, err := h.intakeService.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(batch))
}

func (h *Handler) createTicket(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		InboundDate  string `json:"inbound_date" binding:"required"`
		CompanyID    string `json:"company_id" binding:"required"`
		Manager      string `json:"manager"`
		ToolID       string `json:"tool_id" binding:"required"`
		SerialNumber string `json:"serial_number" binding:"required"`
		Symptom      string `json:"symptom"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	inboundDate, err := utils.ParseDate(req.InboundDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid inbound_date"))
		return
	}
	companyID, err := uuid.Parse(strings.TrimSpace(req.CompanyID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid company_id"))
		return
	}
	toolID, err := uuid.Parse(strings.TrimSpace(req.ToolID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid tool_id"))
		return
	}

	ticket, err := h.intakeService.CreateTicket(c.Request.Context(), principal, service.CreateTicketInput{
		InboundDate:  inboundDate,
		CompanyID:    companyID,
		Manager:      req.Manager,
		ToolID:       toolID,
		SerialNumber: req.SerialNumber,
		Symptom:      req.Symptom,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(ticket))
}

func (h *Handler) changeStatus(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		IDs                []string `json:"ids"`
		Status             string   `json:"status" binding:"required"`
		OutsourceCompanyID string   `json:"outsource_company_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	ids, err := parseUUIDList(req.IDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid ids"))
		return
	}
	outsourceID, err := parseOptionalUUID(req.OutsourceCompanyID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid outsource_company_id"))
		return
	}

	result, err := h.transitionService.Apply(c.Request.Context(), principal, service.TransitionInput{
		TicketIDs:          ids,
		Target:             model.TicketStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		OutsourceCompanyID: outsourceID,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) setTicketParts(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		PartIDs []string `json:"part_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	partIDs, err := parseUUIDList(req.PartIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid part_ids"))
		return
	}

	result, err := h.costService.SetParts(c.Request.Context(), id, partIDs)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) recomputeCost(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	result, err := h.costService.Recompute(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) ticketHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	logs, err := h.transitionService.History(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(logs))
}

func (h *Handler) listViewTickets(c *gin.Context) {
	filter, ok := ticketListFilter(c)
	if !ok {
		return
	}

	rows, err := h.projectionService.List(c.Request.Context(), model.ViewName(c.Param("view")), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(rows))
}

func ticketListFilter(c *gin.Context) (service.ListFilter, bool) {
	var filter service.ListFilter

	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				filter.Statuses = append(filter.Statuses, model.TicketStatus(s))
			}
		}
	}

	uuidQueries := map[string]**uuid.UUID{
		"company_id": &filter.CompanyID,
		"brand_id":   &filter.BrandID,
		"tool_id":    &filter.ToolID,
		"batch_id":   &filter.BatchID,
	}
	for key, target := range uuidQueries {
		id, err := parseOptionalUUID(c.Query(key))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid "+key))
			return filter, false
		}
		*target = id
	}

	var err error
	if filter.InboundFrom, err = parseOptionalDate(c.Query("inbound_from")); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid inbound_from"))
		return filter, false
	}
	if filter.InboundTo, err = parseOptionalDate(c.Query("inbound_to")); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid inbound_to"))
		return filter, false
	}
	if filter.EstimateStatus, err = parseOptionalBool(c.Query("estimate_status")); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid estimate_status"))
		return filter, false
	}
	if filter.TaxInvoice, err = parseOptionalBool(c.Query("tax_invoice")); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid tax_invoice"))
		return filter, false
	}
	if raw := strings.TrimSpace(c.Query("search")); raw != "" {
		filter.Search = &raw
	}

	page, limit, ok := pagination(c)
	if !ok {
		return filter, false
	}
	filter.Page = page
	filter.Limit = limit
	return filter, true
}

func (h *Handler) getViewTicket(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	row, err := h.projectionService.Get(c.Request.Context(), model.ViewName(c.Param("view")), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(row))
}

func (h *Handler) updateViewTicket(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	// Absent keys stay nil and are left untouched.
	var req struct {
		RepairContent      *string   `json:"repair_content"`
		UsedParts          *[]string `json:"used_parts"`
		Status             *string   `json:"status"`
		OutsourceCompanyID *string   `json:"outsource_company_id"`
		OutboundDate       *string   `json:"outbound_date"`
		EstimateStatus     *bool     `json:"estimate_status"`
		TaxInvoice         *bool     `json:"tax_invoice"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	patch := service.TicketPatch{
		RepairContent:  req.RepairContent,
		EstimateStatus: req.EstimateStatus,
		TaxInvoice:     req.TaxInvoice,
	}
	if req.UsedParts != nil {
		partIDs, err := parseUUIDList(*req.UsedParts)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid used_parts"))
			return
		}
		patch.UsedParts = &partIDs
	}
	if req.Status != nil {
		status := model.TicketStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		patch.Status = &status
	}
	if req.OutsourceCompanyID != nil {
		outsourceID, err := uuid.Parse(strings.TrimSpace(*req.OutsourceCompanyID))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid outsource_company_id"))
			return
		}
		patch.OutsourceCompanyID = &outsourceID
	}
	if req.OutboundDate != nil {
		outboundDate, err := utils.ParseDate(*req.OutboundDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid outbound_date"))
			return
		}
		patch.OutboundDate = &outboundDate
	}

	row, err := h.projectionService.Update(c.Request.Context(), principal, model.ViewName(c.Param("view")), id, patch)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(row))
}

func (h *Handler) getDashboard(c *gin.Context) {
	kpis, err := h.dashboardService.KPIs(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(kpis))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var transitionErr *service.TransitionError

	switch {
	case errors.As(err, &validationErr):
		body := gin.H{
			"error": validationErr.Error(),
			"kind":  validationErr.Kind,
		}
		if len(validationErr.Pairs) > 0 {
			body["pairs"] = validationErr.Pairs
		}
		if len(validationErr.Fields) > 0 {
			body["fields"] = validationErr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      transitionErr.Error(),
			"ticket_ids": transitionErr.TicketIDs,
		})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, gorm.ErrDuplicatedKey):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int, bool) {
	page, limit := 0, 0
	var err error
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid page"))
			return 0, 0, false
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid limit"))
			return 0, 0, false
		}
	}
	return page, limit, true
}

func parseOptionalUUID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseOptionalUUIDValue maps an empty string to uuid.Nil so the service
// reports it as a missing field.
func parseOptionalUUIDValue(raw string) (uuid.UUID, error) {
	id, err := parseOptionalUUID(raw)
	if err != nil || id == nil {
		return uuid.Nil, err
	}
	return *id, nil
}

func parseUUIDList(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		id, err := uuid.Parse(strings.TrimSpace(item))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalDate(raw string) (*datatypes.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseOptionalDateValue(raw string) (datatypes.Date, error) {
	d, err := parseOptionalDate(raw)
	if err != nil || d == nil {
		return datatypes.Date{}, err
	}
	return *d, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
