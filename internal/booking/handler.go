package booking

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/NeoDrive/NeoDrive/internal/common/middleware"
	"github.com/NeoDrive/NeoDrive/internal/common/server"
	"github.com/gin-gonic/gin"
)

// VehicleSummary 预订列表里内嵌的车辆摘要（前端订单页展示用）。
type VehicleSummary struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	ImageURL string `json:"image_url"`
}

// VehicleSummaryProvider 提供车辆摘要，查不到时返回 nil 而不是错误。
type VehicleSummaryProvider interface {
	VehicleSummary(ctx context.Context, id string) *VehicleSummary
}

// Handler 预订 HTTP 接入层：解析请求、提取主体、调用 Service、映射错误。
type Handler struct {
	svc       *Service
	summaries VehicleSummaryProvider

	// 手工巡检是全表扫描级的写操作，滑动窗口防止反复点击叠加扫描
	sweepGate *middleware.SlidingWindow
}

func NewHandler(svc *Service, summaries VehicleSummaryProvider) *Handler {
	return &Handler{
		svc:       svc,
		summaries: summaries,
		sweepGate: middleware.NewSlidingWindow(time.Minute, 3),
	}
}

// RegisterRoutes 注册预订相关路由。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/reservations", h.createReservation)
	api.GET("/reservations", h.listReservations)
	api.GET("/reservations/:id", h.getReservation)
	api.POST("/reservations/:id/cancel", h.cancelReservation)
	api.GET("/vehicles/:id/availability", h.checkAvailability)
	api.POST("/admin/reservations/sweep", h.sweepExpired)
	api.POST("/admin/reservations/:id/confirm", h.forceConfirm)
	api.POST("/admin/reservations/:id/complete", h.forceComplete)
}

type createReservationRequest struct {
	VehicleID  string `json:"vehicle_id" binding:"required"`
	PickupDate string `json:"pickup_date" binding:"required"`
	ReturnDate string `json:"return_date" binding:"required"`
}

type reservationResponse struct {
	ID         string          `json:"id"`
	VehicleID  string          `json:"vehicle_id"`
	UserID     string          `json:"user_id"`
	PickupDate string          `json:"pickup_date"`
	ReturnDate string          `json:"return_date"`
	Days       int             `json:"days"`
	TotalPrice string          `json:"total_price"`
	Currency   string          `json:"currency"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	Vehicle    *VehicleSummary `json:"vehicle,omitempty"`
}

func (h *Handler) createReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rng, err := ParseDateRange(req.PickupDate, req.ReturnDate)
	if err != nil {
		writeError(c, err)
		return
	}

	p := principalFrom(c)
	resv, err := h.svc.CreateReservation(c.Request.Context(), p, req.VehicleID, rng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.toResponse(c.Request.Context(), resv, false))
}

func (h *Handler) listReservations(c *gin.Context) {
	p := principalFrom(c)

	f := ListFilter{
		VehicleID: c.Query("vehicle_id"),
		Status:    Status(c.Query("status")),
	}
	// admin 可以按任意用户过滤；非 admin 由 Service 强制收敛到本人
	if p.Role == RoleAdmin {
		f.UserID = c.Query("user_id")
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	f.Offset = (page - 1) * size
	f.Limit = size

	reservations, err := h.svc.ListReservations(c.Request.Context(), p, f)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]reservationResponse, 0, len(reservations))
	for i := range reservations {
		out = append(out, h.toResponse(c.Request.Context(), &reservations[i], true))
	}
	c.JSON(http.StatusOK, gin.H{"reservations": out})
}

func (h *Handler) getReservation(c *gin.Context) {
	p := principalFrom(c)
	resv, err := h.svc.GetReservation(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(c.Request.Context(), resv, true))
}

func (h *Handler) cancelReservation(c *gin.Context) {
	p := principalFrom(c)
	resv, err := h.svc.CancelReservation(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(c.Request.Context(), resv, false))
}

func (h *Handler) checkAvailability(c *gin.Context) {
	rng, err := ParseDateRange(c.Query("pickup_date"), c.Query("return_date"))
	if err != nil {
		writeError(c, err)
		return
	}

	available, err := h.svc.CheckAvailability(c.Request.Context(), c.Param("id"), rng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}

func (h *Handler) sweepExpired(c *gin.Context) {
	p := principalFrom(c)
	if p.Role != RoleAdmin {
		writeError(c, ErrUnauthorized)
		return
	}
	if !h.sweepGate.Allow(c.Request.Context()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "sweep is rate limited, try again shortly"})
		return
	}

	count, err := h.svc.CompleteExpiredReservations(c.Request.Context(), time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": count})
}

func (h *Handler) forceConfirm(c *gin.Context) {
	h.forceTransition(c, StatusConfirmed)
}

func (h *Handler) forceComplete(c *gin.Context) {
	h.forceTransition(c, StatusCompleted)
}

func (h *Handler) forceTransition(c *gin.Context, to Status) {
	p := principalFrom(c)
	resv, err := h.svc.ForceTransition(c.Request.Context(), p, c.Param("id"), to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.toResponse(c.Request.Context(), resv, false))
}

func (h *Handler) toResponse(ctx context.Context, r *Reservation, embedVehicle bool) reservationResponse {
	resp := reservationResponse{
		ID:         r.ID,
		VehicleID:  r.VehicleID,
		UserID:     r.UserID,
		PickupDate: r.PickupDate.Format(DateFormat),
		ReturnDate: r.ReturnDate.Format(DateFormat),
		Days:       r.Range().Days(),
		TotalPrice: FormatAmountCents(r.TotalPriceCents),
		Currency:   r.Currency,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
	if embedVehicle && h.summaries != nil {
		resp.Vehicle = h.summaries.VehicleSummary(ctx, r.VehicleID)
	}
	return resp
}

// principalFrom 把鉴权中间件写入的 AuthInfo 转成引擎的访问主体。
func principalFrom(c *gin.Context) Principal {
	ai, _ := server.AuthFromContext(c)
	return Principal{ID: ai.Subject, Role: RoleFromString(ai.Role)}
}

// writeError 把错误分类映射为 HTTP 状态码与独立的用户提示。
// 每类错误的文案都是特定的，前端据此决定改期、重试还是引导登录。
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidRate):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, ErrUnauthorized):
		// 未登录引导登录，已登录但无权则 403
		if principalFrom(c).Role == RoleGuest {
			status = http.StatusUnauthorized
			msg = "please sign in to manage reservations"
		} else {
			status = http.StatusForbidden
			msg = ErrUnauthorized.Error()
		}
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
		msg = ErrNotFound.Error()
	case errors.Is(err, ErrDateConflict):
		status = http.StatusConflict
		msg = ErrDateConflict.Error()
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
		msg = ErrConflict.Error()
	case errors.Is(err, ErrAlreadyTerminal):
		status = http.StatusConflict
		msg = ErrAlreadyTerminal.Error()
	case errors.Is(err, ErrNotConfirmed):
		status = http.StatusConflict
		msg = ErrNotConfirmed.Error()
	case errors.Is(err, ErrVehicleUnavailable):
		status = http.StatusUnprocessableEntity
		msg = ErrVehicleUnavailable.Error()
	case errors.Is(err, ErrTimeout):
		status = http.StatusGatewayTimeout
		msg = ErrTimeout.Error()
	case errors.Is(err, ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
		msg = ErrServiceUnavailable.Error()
	}

	c.JSON(status, gin.H{"error": msg})
}
