package biz

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"github.com/lk2023060901/blog-backend/internal/pkg/validator"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Actor identifies who triggered an action. ID is nil for anonymous requests
// such as a failed login.
type Actor struct {
	ID *int64
	IP string
}

// ActorID returns an Actor for an authenticated admin
func ActorID(id int64, ip string) Actor {
	return Actor{ID: &id, IP: ip}
}

// Entry is one audit fact
type Entry struct {
	ID         int64
	AdminID    *int64
	Username   string // populated on reads only
	Action     string
	EntityType string
	EntityID   *int64
	Metadata   map[string]any
	IPAddress  string
	CreatedAt  time.Time
}

// Sink accepts audit facts. Record never fails the caller.
type Sink interface {
	Record(ctx context.Context, actor Actor, action, entityType string, entityID *int64, metadata map[string]any)
}

// AuditRepo persists audit entries
type AuditRepo interface {
	Append(ctx context.Context, entry *Entry) error
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
}

// Recorder writes audit entries to the repository and logs failures
type Recorder struct {
	repo   AuditRepo
	logger *logger.Logger
}

// NewRecorder creates a recorder
func NewRecorder(repo AuditRepo, log *logger.Logger) *Recorder {
	return &Recorder{repo: repo, logger: log.Named("audit")}
}

// Record appends an entry. Storage errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, actor Actor, action, entityType string, entityID *int64, metadata map[string]any) {
	entry := &Entry{
		AdminID:    actor.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		IPAddress:  validator.GetIPOrDefault(actor.IP, ""),
	}

	if err := r.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		meta, _ := json.Marshal(metadata)
		r.logger.WithContext(ctx).Error("failed to record audit entry",
			zap.String("action", action),
			zap.String("admin_id", logger.FormatAdminID(actor.ID)),
			zap.ByteString("metadata", meta),
			zap.Error(err),
		)
	}
}

// ListRecent returns the newest entries first; limit is clamped to [1, MaxListLimit]
func (r *Recorder) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	return r.repo.ListRecent(ctx, ClampLimit(limit))
}

// ClampLimit applies the default and bounds for audit listings
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// Int64Ptr is a helper for optional entity ids
func Int64Ptr(v int64) *int64 {
	return &v
}
