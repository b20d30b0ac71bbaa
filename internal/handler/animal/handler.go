package animal

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/herd-api/internal/handler"
	"github.com/jwalitptl/herd-api/internal/middleware"
	"github.com/jwalitptl/herd-api/internal/model"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/httputil"
)

type AnimalServicer interface {
	Create(ctx context.Context, tenantID string, req *model.CreateAnimalRequest) (*model.Animal, error)
	Get(ctx context.Context, tenantID string, id int64) (*model.Animal, error)
	List(ctx context.Context, tenantID string, page model.Page) ([]*model.Animal, error)
}

type Handler struct {
	service AnimalServicer
}

func NewHandler(service AnimalServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	animals := r.Group("/animals")
	{
		animals.POST("", h.CreateAnimal)
		animals.GET("", h.ListAnimals)
		animals.GET("/:id", h.GetAnimal)
	}
}

func (h *Handler) CreateAnimal(c *gin.Context) {
	var req model.CreateAnimalRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	animal, err := h.service.Create(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, animal)
}

func (h *Handler) GetAnimal(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	animal, err := h.service.Get(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, animal)
}

func (h *Handler) ListAnimals(c *gin.Context) {
	var page model.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid paging parameters", err))
		return
	}

	animals, err := h.service.List(c.Request.Context(), middleware.TenantID(c), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, animals)
}
