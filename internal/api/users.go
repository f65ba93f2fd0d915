package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/HemantRana01/TODO/internal/model"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type userResponse struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type profileResponse struct {
	userResponse
	TodoCount int64 `json:"todoCount"`
}

// updateProfileRequest 资料更新参数，未提供的字段保持不变。
type updateProfileRequest struct {
	Email     *string `json:"email" binding:"omitempty,email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	IsActive  *bool   `json:"isActive"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// handleGetProfile 返回当前用户资料及其待办总数。
//
// GET /users/profile
func (s *Server) handleGetProfile(c *gin.Context) {
	userID := getUserID(c)

	user, err := s.userStore.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		s.respondUserErr(c, err, "get profile failed")
		return
	}

	todoCount, err := s.todoStore.CountTodos(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("count todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get profile failed"})
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		userResponse: toUserResponse(user),
		TodoCount:    todoCount,
	})
}

// handleUpdateProfile 部分更新用户资料。换邮箱时重新校验唯一性。
//
// PATCH /users/profile
func (s *Server) handleUpdateProfile(c *gin.Context) {
	userID := getUserID(c)

	user, err := s.userStore.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		s.respondUserErr(c, err, "update profile failed")
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email != user.Email {
			if _, err := s.userStore.FindUserByEmail(c.Request.Context(), email); err == nil {
				c.JSON(http.StatusConflict, gin.H{"error": "Email address already used"})
				return
			} else if !errors.Is(err, ErrNotFound) {
				s.logger.Error("email lookup failed", slog.String("error", err.Error()))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "update profile failed"})
				return
			}
			updates["email"] = email
		}
	}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	updated, err := s.userStore.PatchUser(c.Request.Context(), userID, updates)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email address already used"})
			return
		}
		s.respondUserErr(c, err, "update profile failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    toUserResponse(updated),
		"message": "User updated successfully",
	})
}

// handleUserStats 返回当前用户的待办统计，优先走缓存。
//
// GET /users/stats
func (s *Server) handleUserStats(c *gin.Context) {
	userID := getUserID(c)

	if _, err := s.userStore.FindUserByID(c.Request.Context(), userID); err != nil {
		s.respondUserErr(c, err, "get stats failed")
		return
	}

	if cached, err := s.statsCache.Get(c.Request.Context(), userID); err != nil {
		s.logger.Warn("stats cache get failed", slog.String("error", err.Error()))
	} else if cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, err := s.todoStore.TodoStats(c.Request.Context(), userID, startOfToday())
	if err != nil {
		s.logger.Error("compute stats failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get stats failed"})
		return
	}

	if err := s.statsCache.Set(c.Request.Context(), userID, stats); err != nil {
		s.logger.Warn("stats cache set failed", slog.String("error", err.Error()))
	}
	c.JSON(http.StatusOK, stats)
}

// handleChangePassword 修改密码：校验确认密码、当前密码与新密码强度。
//
// POST /users/change-password
func (s *Server) handleChangePassword(c *gin.Context) {
	userID := getUserID(c)

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password and confirmation password do not match"})
		return
	}
	if !passwordStrongEnough(req.NewPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must contain at least one uppercase letter, one lowercase letter, and one number"})
		return
	}

	user, err := s.userStore.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		s.respondUserErr(c, err, "change password failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	if _, err := s.userStore.PatchUser(c.Request.Context(), userID, map[string]interface{}{
		"password_hash": string(hash),
	}); err != nil {
		s.respondUserErr(c, err, "change password failed")
		return
	}

	if s.logger != nil {
		s.logger.Info("password changed", slog.Uint64("user_id", uint64(userID)))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

// handleDeactivate 停用当前账号。停用后登录和令牌校验都会被拒绝。
//
// POST /users/deactivate
func (s *Server) handleDeactivate(c *gin.Context) {
	s.setActive(c, false, "User deactivated successfully")
}

// handleActivate 重新启用当前账号。
//
// POST /users/activate
func (s *Server) handleActivate(c *gin.Context) {
	s.setActive(c, true, "User activated successfully")
}

func (s *Server) setActive(c *gin.Context, active bool, message string) {
	userID := getUserID(c)

	if _, err := s.userStore.FindUserByID(c.Request.Context(), userID); err != nil {
		s.respondUserErr(c, err, "update user failed")
		return
	}

	if _, err := s.userStore.PatchUser(c.Request.Context(), userID, map[string]interface{}{
		"is_active": active,
	}); err != nil {
		s.respondUserErr(c, err, "update user failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (s *Server) respondUserErr(c *gin.Context, err error, logMsg string) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	s.logger.Error(logMsg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": logMsg})
}

// passwordStrongEnough 要求新密码同时包含大写、小写和数字。
func passwordStrongEnough(password string) bool {
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
