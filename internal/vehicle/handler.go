package vehicle

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/NeoDrive/NeoDrive/internal/booking"
	"github.com/NeoDrive/NeoDrive/internal/common/server"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Handler 车辆目录 HTTP 接入层。
// 浏览是公开的；上架/修改属于 ManageFleet，仅 admin。
type Handler struct {
	repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes 注册车辆目录路由。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/vehicles", h.listVehicles)
	api.GET("/vehicles/:id", h.getVehicle)
	api.POST("/vehicles", h.createVehicle)
	api.PUT("/vehicles/:id", h.updateVehicle)
}

type vehicleRequest struct {
	Brand        string   `json:"brand" binding:"required"`
	Model        string   `json:"model" binding:"required"`
	Year         int      `json:"year" binding:"required"`
	DailyRate    string   `json:"daily_rate" binding:"required"` // 十进制金额字符串，如 "500.00"
	Currency     string   `json:"currency"`
	Description  string   `json:"description"`
	ImageURL     string   `json:"image_url"`
	Transmission string   `json:"transmission"`
	Seats        int      `json:"seats"`
	FuelType     string   `json:"fuel_type"`
	Features     []string `json:"features"`
	IsAvailable  *bool    `json:"is_available"`
}

type vehicleResponse struct {
	ID           string   `json:"id"`
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	DailyRate    string   `json:"daily_rate"`
	Currency     string   `json:"currency"`
	Description  string   `json:"description"`
	ImageURL     string   `json:"image_url"`
	Transmission string   `json:"transmission"`
	Seats        int      `json:"seats"`
	FuelType     string   `json:"fuel_type"`
	Features     []string `json:"features"`
	IsAvailable  bool     `json:"is_available"`
}

func (h *Handler) listVehicles(c *gin.Context) {
	p := principalFrom(c)

	params := ListParams{
		Brand:  c.Query("brand"),
		Search: c.Query("search"),
		// 前台只展示上架车辆；admin 可以看到全部
		OnlyAvailable: p.Role != booking.RoleAdmin,
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	params.Offset = (page - 1) * size
	params.Limit = size

	vehicles, total, err := h.repo.List(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]vehicleResponse, 0, len(vehicles))
	for i := range vehicles {
		out = append(out, toResponse(&vehicles[i]))
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": out, "total": total})
}

func (h *Handler) getVehicle(c *gin.Context) {
	v, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toResponse(v))
}

func (h *Handler) createVehicle(c *gin.Context) {
	p := principalFrom(c)
	if err := booking.Authorize(p, booking.ActionManageFleet, nil); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rateCents, err := booking.ParseAmountCents(req.DailyRate)
	if err != nil || rateCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": booking.ErrInvalidRate.Error()})
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	v := &Vehicle{
		ID:             uuid.NewString(),
		Brand:          strings.TrimSpace(req.Brand),
		Model:          strings.TrimSpace(req.Model),
		Year:           req.Year,
		DailyRateCents: rateCents,
		Currency:       defaultCurrency(req.Currency),
		Description:    strings.TrimSpace(req.Description),
		ImageURL:       strings.TrimSpace(req.ImageURL),
		Transmission:   strings.TrimSpace(req.Transmission),
		Seats:          req.Seats,
		FuelType:       strings.TrimSpace(req.FuelType),
		Features:       FeaturesJoin(req.Features),
		IsAvailable:    available,
	}
	if v.Seats <= 0 {
		v.Seats = 4
	}

	if err := h.repo.Create(c.Request.Context(), v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, toResponse(v))
}

func (h *Handler) updateVehicle(c *gin.Context) {
	p := principalFrom(c)
	if err := booking.Authorize(p, booking.ActionManageFleet, nil); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}

	v, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rateCents, err := booking.ParseAmountCents(req.DailyRate)
	if err != nil || rateCents <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": booking.ErrInvalidRate.Error()})
		return
	}

	// 改租金只影响之后创建的预订，已存在预订的总价在创建时已冻结
	v.Brand = strings.TrimSpace(req.Brand)
	v.Model = strings.TrimSpace(req.Model)
	v.Year = req.Year
	v.DailyRateCents = rateCents
	v.Currency = defaultCurrency(req.Currency)
	v.Description = strings.TrimSpace(req.Description)
	v.ImageURL = strings.TrimSpace(req.ImageURL)
	v.Transmission = strings.TrimSpace(req.Transmission)
	if req.Seats > 0 {
		v.Seats = req.Seats
	}
	v.FuelType = strings.TrimSpace(req.FuelType)
	v.Features = FeaturesJoin(req.Features)
	if req.IsAvailable != nil {
		v.IsAvailable = *req.IsAvailable
	}

	if err := h.repo.Update(c.Request.Context(), v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toResponse(v))
}

func toResponse(v *Vehicle) vehicleResponse {
	return vehicleResponse{
		ID:           v.ID,
		Brand:        v.Brand,
		Model:        v.Model,
		Year:         v.Year,
		DailyRate:    booking.FormatAmountCents(v.DailyRateCents),
		Currency:     v.Currency,
		Description:  v.Description,
		ImageURL:     v.ImageURL,
		Transmission: v.Transmission,
		Seats:        v.Seats,
		FuelType:     v.FuelType,
		Features:     v.FeaturesSlice(),
		IsAvailable:  v.IsAvailable,
	}
}

func principalFrom(c *gin.Context) booking.Principal {
	ai, _ := server.AuthFromContext(c)
	return booking.Principal{ID: ai.Subject, Role: booking.RoleFromString(ai.Role)}
}

func defaultCurrency(cur string) string {
	cur = strings.TrimSpace(cur)
	if cur == "" {
		return "USD"
	}
	return strings.ToUpper(cur)
}
