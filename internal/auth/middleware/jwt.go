package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/auth"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	ctxAdminID  = "admin_id"
	ctxUsername = "username"
	ctxRole     = "role"
)

// JWTAuth requires a valid bearer token and stores the admin in the context
func JWTAuth(jwtManager *auth.JWTManager, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			response.ErrorWithCode(c, apperrors.ErrUnauthorized, "missing bearer token")
			return
		}

		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			log.WithContext(c.Request.Context()).Warn("invalid access token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))
			response.ErrorWithCode(c, apperrors.ErrAuthInvalidToken)
			return
		}

		c.Set(ctxAdminID, claims.AdminID)
		c.Set(ctxUsername, claims.Username)
		c.Set(ctxRole, claims.Role)
		c.Request = c.Request.WithContext(logger.WithAdminID(c.Request.Context(), claims.AdminID))

		c.Next()
	}
}

// RequireRole admits admins whose role ranks at least min. Must run after JWTAuth.
func RequireRole(min auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetRole(c)
		if !ok {
			response.ErrorWithCode(c, apperrors.ErrUnauthorized)
			return
		}
		if !role.Allows(min) {
			response.ErrorWithCode(c, apperrors.ErrForbidden, "requires role "+string(min))
			return
		}
		c.Next()
	}
}

// GetAdminID returns the authenticated admin's id
func GetAdminID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxAdminID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// GetRole returns the authenticated admin's role
func GetRole(c *gin.Context) (auth.Role, bool) {
	v, ok := c.Get(ctxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(auth.Role)
	return role, ok
}

// Actor identifies the caller for the audit log
func Actor(c *gin.Context) auditbiz.Actor {
	actor := auditbiz.Actor{IP: c.ClientIP()}
	if id, ok := GetAdminID(c); ok {
		actor.ID = &id
	}
	return actor
}

// CORS allows browser clients from any origin with credentials
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID, Retry-After")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
