package service

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// AuditService exposes the audit log to admins
type AuditService struct {
	recorder *biz.Recorder
	logger   *logger.Logger
}

// NewAuditService creates the audit HTTP service
func NewAuditService(recorder *biz.Recorder, log *logger.Logger) *AuditService {
	return &AuditService{recorder: recorder, logger: log}
}

// AuditEntryResponse is one row of the audit listing
type AuditEntryResponse struct {
	ID         int64          `json:"id"`
	AdminID    *int64         `json:"admin_id"`
	Username   string         `json:"username,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   *int64         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ListAuditLogs GET /api/v1/admin/audit?limit=
func (s *AuditService) ListAuditLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "limit must be an integer")
			return
		}
		limit = v
	}

	entries, err := s.recorder.ListRecent(c.Request.Context(), limit)
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to list audit logs", zap.Error(err))
		response.HandleError(c, err)
		return
	}

	items := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, AuditEntryResponse{
			ID:         e.ID,
			AdminID:    e.AdminID,
			Username:   e.Username,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Metadata:   e.Metadata,
			IPAddress:  e.IPAddress,
			CreatedAt:  e.CreatedAt,
		})
	}

	response.Success(c, gin.H{
		"items": items,
		"limit": biz.ClampLimit(limit),
	})
}
