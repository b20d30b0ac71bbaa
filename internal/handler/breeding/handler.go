package breeding

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/herd-api/internal/handler"
	"github.com/jwalitptl/herd-api/internal/middleware"
	"github.com/jwalitptl/herd-api/internal/model"
	breedingService "github.com/jwalitptl/herd-api/internal/service/breeding"
	"github.com/jwalitptl/herd-api/pkg/httputil"
)

type BreedingServicer interface {
	RecordService(ctx context.Context, tenantID string, req *model.RecordServiceRequest) (*breedingService.ServiceRecord, error)
	RecordPregnancyCheck(ctx context.Context, tenantID string, req *model.RecordCheckRequest) (*breedingService.CheckRecord, error)
	UpdatePregnancyCheck(ctx context.Context, tenantID string, id int64, req *model.RecordCheckRequest) (*breedingService.CheckRecord, error)
	ListServices(ctx context.Context, tenantID string, animalID int64) ([]*model.BreedingService, error)
}

type Handler struct {
	service BreedingServicer
}

func NewHandler(service BreedingServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/services", h.RecordService)
	r.GET("/animals/:id/services", h.ListServices)
	r.POST("/pregnancy-checks", h.RecordPregnancyCheck)
	r.PUT("/pregnancy-checks/:id", h.UpdatePregnancyCheck)
}

// RecordService stores a service and returns it with the alerts it implies.
func (h *Handler) RecordService(c *gin.Context) {
	var req model.RecordServiceRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.RecordService(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, rec)
}

func (h *Handler) RecordPregnancyCheck(c *gin.Context) {
	var req model.RecordCheckRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.RecordPregnancyCheck(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, rec)
}

// UpdatePregnancyCheck edits a check and returns it with the alerts its new
// result implies.
func (h *Handler) UpdatePregnancyCheck(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.RecordCheckRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.UpdatePregnancyCheck(c.Request.Context(), middleware.TenantID(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rec)
}

func (h *Handler) ListServices(c *gin.Context) {
	animalID, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	services, err := h.service.ListServices(c.Request.Context(), middleware.TenantID(c), animalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}
