package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HemantRana01/TODO/internal/model"
	"github.com/HemantRana01/TODO/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Handler 提供注册与登录接口。
type Handler struct {
	db          *gorm.DB
	jwtSecret   []byte
	tokenExpiry time.Duration
	logger      *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(db *gorm.DB, jwtSecret string, tokenExpiry time.Duration, logger *slog.Logger) *Handler {
	if tokenExpiry <= 0 {
		tokenExpiry = 24 * time.Hour
	}
	return &Handler{
		db:          db,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required,min=3"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// userSummary 返回给前端的用户信息，不含密码哈希。
type userSummary struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type authResponse struct {
	Token   string      `json:"token"`
	User    userSummary `json:"user"`
	Message string      `json:"message"`
}

// Claims JWT 载荷。除 subject 外冗余携带用户名和邮箱，省一次查库。
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Register 创建新用户并签发 JWT。
//
// POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	// 用户名或邮箱任一已存在即冲突
	var existing model.User
	err := h.db.WithContext(c.Request.Context()).
		Where("username = ? OR email = ?", username, email).
		First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Account already exists"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IsActive:     true,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		// 并发注册时唯一索引兜底
		if isDuplicateKey(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Account already exists"})
			return
		}
		if h.logger != nil {
			h.logger.Error("create user failed", slog.String("username", username), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	token, err := h.IssueToken(&user)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("username", username), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered", slog.String("username", username))
	}
	c.JSON(http.StatusCreated, authResponse{
		Token:   token,
		User:    summarize(&user),
		Message: "Registration completed successfully",
	})
}

// Login 校验用户名密码并返回 JWT。
//
// 未知用户、已停用账号和密码错误返回完全相同的 401 响应，
// 避免泄露账号状态。
//
// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)

	var user model.User
	err := h.db.WithContext(c.Request.Context()).
		Where("username = ?", username).
		First(&user).Error
	if err != nil || !user.IsActive {
		rejectLogin(c)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		rejectLogin(c)
		return
	}

	token, err := h.IssueToken(&user)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("username", username), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("username", username))
	}
	c.JSON(http.StatusOK, authResponse{
		Token:   token,
		User:    summarize(&user),
		Message: "Login successful",
	})
}

// IssueToken 为用户签发 HS256 JWT。
func (h *Handler) IssueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenExpiry)),
		},
		Username: user.Username,
		Email:    user.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

func summarize(user *model.User) userSummary {
	return userSummary{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

// rejectLogin 统一的登录失败响应，三种失败原因不可区分。
func rejectLogin(c *gin.Context) {
	if metrics.AuthFailuresTotal != nil {
		metrics.AuthFailuresTotal.Inc()
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
