package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/HemantRana01/TODO/internal/model"
	"github.com/HemantRana01/TODO/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type customClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserLoader 按 ID 查询用户，供令牌校验后确认账号仍然有效。
type UserLoader interface {
	FindUserByID(ctx context.Context, id uint) (*model.User, error)
}

// AuthMiddleware 校验 Bearer JWT，确认用户存在且启用后将其身份写入上下文。
//
// 任一步骤失败都返回 401，下游 handler 通过 userID 做属主过滤，
// 绝不信任请求体里的用户 ID。
func AuthMiddleware(jwtSecret string, users UserLoader) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, "missing authorization")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			reject(c, "invalid authorization header")
			return
		}

		tokenStr := parts[1]
		claims := &customClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			reject(c, "invalid token")
			return
		}

		if claims.Subject == "" {
			reject(c, "invalid token subject")
			return
		}
		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			reject(c, "invalid user id")
			return
		}

		user, err := users.FindUserByID(c.Request.Context(), uint(uid))
		if err != nil || !user.IsActive {
			reject(c, "User not found or inactive")
			return
		}

		c.Set("userID", user.ID)
		c.Set("username", user.Username)
		c.Set("email", user.Email)
		c.Next()
	}
}

func reject(c *gin.Context, msg string) {
	if metrics.AuthFailuresTotal != nil {
		metrics.AuthFailuresTotal.Inc()
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	c.Abort()
}
