package user

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/NeoDrive/NeoDrive/internal/common/auth"
	"github.com/NeoDrive/NeoDrive/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountStore Handler 依赖的账号存储，测试用内存实现替换。
type accountStore interface {
	Create(ctx context.Context, u *User) error
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// Handler 账号 HTTP 接入层：注册 / 登录（签发 JWT）。
type Handler struct {
	repo    accountStore
	authCfg config.AuthConfig
}

func NewHandler(repo accountStore, authCfg config.AuthConfig) *Handler {
	return &Handler{repo: repo, authCfg: authCfg}
}

// RegisterRoutes 注册账号路由（公开，无需鉴权）。
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)

	if _, err := h.repo.FindByUsername(c.Request.Context(), username); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	hash, err := HashPassword(req.Password, salt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		PasswordSalt: salt,
		Nickname:     strings.TrimSpace(req.Nickname),
		Email:        strings.TrimSpace(req.Email),
		// 注册账号一律是 customer；admin 只能由运维在库里指定
		Role: "customer",
	}
	if err := h.repo.Create(c.Request.Context(), u); err != nil {
		// 两个并发注册都能通过预检查，输家在落库时撞上 username 唯一索引
		if isDuplicateKey(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.issueToken(c, u, http.StatusCreated)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.repo.FindByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		// 用户不存在与密码错误返回同一文案，避免暴露账号是否存在
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !VerifyPassword(req.Password, u.PasswordSalt, u.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	h.issueToken(c, u, http.StatusOK)
}

func (h *Handler) issueToken(c *gin.Context, u *User, status int) {
	token, expiresAt, err := auth.GenerateAccessToken(h.authCfg, u.ID, u.Role, h.authCfg.TokenTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, tokenResponse{
		UserID:      u.ID,
		Username:    u.Username,
		Role:        u.Role,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	})
}
