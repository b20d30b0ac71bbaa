package alert

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/herd-api/internal/handler"
	"github.com/jwalitptl/herd-api/internal/middleware"
	"github.com/jwalitptl/herd-api/internal/model"
	"github.com/jwalitptl/herd-api/pkg/civil"
	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/httputil"
)

type AlertServicer interface {
	List(ctx context.Context, tenantID string, filter model.AlertFilter) ([]*model.Alert, error)
	Summary(ctx context.Context, tenantID string) (*model.AlertSummary, error)
	Get(ctx context.Context, tenantID string, id int64) (*model.Alert, error)
	Create(ctx context.Context, tenantID string, req *model.CreateAlertRequest) (*model.Alert, error)
	Update(ctx context.Context, tenantID string, id int64, req *model.UpdateAlertRequest) (*model.Alert, error)
	Delete(ctx context.Context, tenantID string, id int64) error
	MarkNotified(ctx context.Context, tenantID string, id int64) (*model.Alert, error)
	MarkAttended(ctx context.Context, tenantID string, id int64) (*model.Alert, error)
	Reopen(ctx context.Context, tenantID string, id int64) (*model.Alert, error)
	SendTestEmail(ctx context.Context, tenantID string, id int64) (string, error)
}

type Handler struct {
	service AlertServicer
}

func NewHandler(service AlertServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	{
		alerts.GET("", h.ListAlerts)
		alerts.POST("", h.CreateAlert)
		alerts.GET("/summary", h.GetSummary)
		alerts.GET("/:id", h.GetAlert)
		alerts.PUT("/:id", h.UpdateAlert)
		alerts.DELETE("/:id", h.DeleteAlert)
		alerts.POST("/:id/notified", h.transition(h.service.MarkNotified))
		alerts.POST("/:id/attended", h.transition(h.service.MarkAttended))
		alerts.POST("/:id/reopen", h.transition(h.service.Reopen))
		alerts.POST("/:id/test-email", h.SendTestEmail)
	}
}

// ListAlerts accepts q, state, from, to (YYYY-MM-DD), upcoming, limit and
// offset query parameters.
func (h *Handler) ListAlerts(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	alerts, err := h.service.List(c.Request.Context(), middleware.TenantID(c), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alerts)
}

// GetSummary answers the dashboard counters and the next pending alerts.
func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var req model.CreateAlertRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	alert, err := h.service.Create(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, alert)
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	alert, err := h.service.Get(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alert)
}

func (h *Handler) UpdateAlert(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateAlertRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	alert, err := h.service.Update(c.Request.Context(), middleware.TenantID(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, alert)
}

func (h *Handler) DeleteAlert(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.TenantID(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id})
}

func (h *Handler) SendTestEmail(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	to, err := h.service.SendTestEmail(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"sent_to": to})
}

func (h *Handler) transition(op func(context.Context, string, int64) (*model.Alert, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := handler.ParseID(c, "id")
		if !ok {
			return
		}

		alert, err := op(c.Request.Context(), middleware.TenantID(c), id)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		httputil.RespondWithSuccess(c, alert)
	}
}

func parseFilter(c *gin.Context) (model.AlertFilter, error) {
	filter := model.AlertFilter{Query: c.Query("q")}

	if s := c.Query("state"); s != "" {
		filter.State = model.AlertState(s)
		if !filter.State.Valid() {
			return filter, apperrors.NewBadRequest("invalid state", nil)
		}
	}
	for param, dst := range map[string]*civil.Date{"from": &filter.From, "to": &filter.To} {
		if s := c.Query(param); s != "" {
			d, err := civil.Parse(s)
			if err != nil {
				return filter, apperrors.NewBadRequest("invalid "+param+" date", err)
			}
			*dst = d
		}
	}
	if s := c.Query("upcoming"); s != "" {
		upcoming, err := strconv.ParseBool(s)
		if err != nil {
			return filter, apperrors.NewBadRequest("invalid upcoming flag", err)
		}
		filter.Upcoming = upcoming
	}
	if err := c.ShouldBindQuery(&filter.Page); err != nil {
		return filter, apperrors.NewBadRequest("invalid paging parameters", err)
	}
	return filter, nil
}
