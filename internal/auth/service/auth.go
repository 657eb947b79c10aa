package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/blog-backend/internal/auth"
	"github.com/lk2023060901/blog-backend/internal/auth/biz"
	"github.com/lk2023060901/blog-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/blog-backend/internal/pkg/errors"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// AuthService admin login and account management
type AuthService struct {
	authUC *biz.AuthUseCase
	logger *logger.Logger
}

func NewAuthService(authUC *biz.AuthUseCase, log *logger.Logger) *AuthService {
	return &AuthService{
		authUC: authUC,
		logger: log,
	}
}

// LoginRequest POST /api/v1/auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=72"`
}

// UpdateRoleRequest PUT /api/v1/admin/admins/:id/role
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// AdminResponse is an admin account without its password hash
type AdminResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toAdminResponse(a *biz.Admin) AdminResponse {
	return AdminResponse{ID: a.ID, Username: a.Username, Role: a.Role, CreatedAt: a.CreatedAt}
}

// Login issues an access token
func (s *AuthService) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.authUC.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"access_token": result.Token,
		"token_type":   "Bearer",
		"expires_at":   result.ExpiresAt,
		"admin":        toAdminResponse(result.Admin),
	})
}

// Me returns the authenticated admin
func (s *AuthService) Me(c *gin.Context) {
	id, _ := middleware.GetAdminID(c)
	role, _ := middleware.GetRole(c)
	response.Success(c, gin.H{
		"id":       id,
		"username": c.GetString("username"),
		"role":     role,
	})
}

// ListAdmins GET /api/v1/admin/admins
func (s *AuthService) ListAdmins(c *gin.Context) {
	admins, err := s.authUC.ListAdmins(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}

	items := make([]AdminResponse, 0, len(admins))
	for _, a := range admins {
		items = append(items, toAdminResponse(a))
	}
	response.Success(c, gin.H{"items": items, "roles": auth.Roles()})
}

// UpdateRole PUT /api/v1/admin/admins/:id/role
func (s *AuthService) UpdateRole(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid admin id")
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	admin, err := s.authUC.UpdateRole(c.Request.Context(), middleware.Actor(c), id, auth.Role(req.Role))
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, toAdminResponse(admin))
}

func (s *AuthService) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, biz.ErrInvalidCredentials):
		response.ErrorWithCode(c, apperrors.ErrAuthInvalidCredentials)
	case errors.Is(err, biz.ErrAdminNotFound):
		response.ErrorWithCode(c, apperrors.ErrAuthAdminNotFound)
	case errors.Is(err, biz.ErrInvalidRole):
		response.ErrorWithCode(c, apperrors.ErrAuthInvalidRole, "role must be viewer, editor or admin")
	default:
		s.logger.WithContext(c.Request.Context()).Error("auth request failed", zap.Error(err))
		response.HandleError(c, err)
	}
}
