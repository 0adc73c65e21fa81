package pricing

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tollgrid/internal/logger"
	"tollgrid/pkg/errors"
	"tollgrid/pkg/middleware"
	"tollgrid/pkg/ratelimit"
)

// Handler exposes the ledger over HTTP for back-office use. The bus remains
// the only write path for trips; the API writes infrastructure and payments.
type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// RegisterRoutes mounts the API. All routes require a bearer token; writes
// additionally require the operator role.
func (h *Handler) RegisterRoutes(router *gin.Engine, tokens middleware.TokenRoles, limits ratelimit.Config) {
	api := router.Group("/api")
	api.Use(ratelimit.Middleware(limits))
	api.Use(middleware.BearerAuth(tokens))
	api.Use(middleware.RequireRole(middleware.RoleViewer))

	infra := api.Group("/infrastructure")
	{
		infra.GET("/tollbooths", h.ListTollbooths)
		infra.POST("/tollbooths", middleware.RequireRole(middleware.RoleOperator), h.CreateTollbooth)
		infra.GET("/fares", h.ListFares)
		infra.POST("/fares", middleware.RequireRole(middleware.RoleOperator), h.CreateFare)
	}

	api.GET("/toll/calculate", h.Calculate)

	payments := api.Group("/payments")
	{
		payments.GET("/telepass/:telepassId/debts", h.ListDebts)
		payments.POST("/debts/:debtId/pay", middleware.RequireRole(middleware.RoleOperator), h.PayDebt)
		payments.GET("/summary", h.Summary)
	}
}

func (h *Handler) ListTollbooths(c *gin.Context) {
	booths, err := h.service.ListTollbooths(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, booths)
}

func (h *Handler) CreateTollbooth(c *gin.Context) {
	var req CreateTollboothRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	booth, err := h.service.CreateTollbooth(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booth)
}

func (h *Handler) ListFares(c *gin.Context) {
	fares, err := h.service.ListFares(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, fares)
}

func (h *Handler) CreateFare(c *gin.Context) {
	var req CreateFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	fare, err := h.service.CreateFare(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fare)
}

func (h *Handler) Calculate(c *gin.Context) {
	entry := c.Query("entry")
	exit := c.Query("exit")
	if entry == "" || exit == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "entry and exit query parameters are required")))
		return
	}

	result, err := h.service.Calculate(c.Request.Context(), entry, exit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListDebts(c *gin.Context) {
	debts, err := h.service.ListDebts(c.Request.Context(), c.Param("telepassId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	if debts == nil {
		debts = []TelepassDebt{}
	}
	c.JSON(http.StatusOK, debts)
}

func (h *Handler) PayDebt(c *gin.Context) {
	if err := h.service.PayDebt(c.Request.Context(), c.Param("debtId")); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
