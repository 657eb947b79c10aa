package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/database"
)

// Metadata is a key-value map stored as JSON text
type Metadata map[string]any

// Scan implements sql.Scanner
func (m *Metadata) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// AuditLogPO audit_logs row
type AuditLogPO struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	AdminID    *int64    `gorm:"index"`
	Action     string    `gorm:"size:64;not null;index"`
	EntityType string    `gorm:"size:64"`
	EntityID   *int64
	Metadata   Metadata  `gorm:"type:text"`
	IPAddress  string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (AuditLogPO) TableName() string {
	return "audit_logs"
}

type auditRow struct {
	AuditLogPO
	Username *string
}

// AuditRepo is the gorm-backed audit log
type AuditRepo struct {
	db *database.DB
}

// NewAuditRepo creates the audit repository
func NewAuditRepo(db *database.DB) biz.AuditRepo {
	return &AuditRepo{db: db}
}

// Append inserts one entry
func (r *AuditRepo) Append(ctx context.Context, entry *biz.Entry) error {
	po := &AuditLogPO{
		AdminID:    entry.AdminID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   Metadata(entry.Metadata),
		IPAddress:  entry.IPAddress,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	entry.ID = po.ID
	entry.CreatedAt = po.CreatedAt
	return nil
}

// ListRecent returns the newest entries with the acting admin's username
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]*biz.Entry, error) {
	var rows []auditRow
	err := r.db.WithContext(ctx).
		Table("audit_logs AS a").
		Select("a.*, ad.username AS username").
		Joins("LEFT JOIN admins AS ad ON ad.id = a.admin_id").
		Order("a.created_at DESC, a.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]*biz.Entry, 0, len(rows))
	for _, row := range rows {
		e := &biz.Entry{
			ID:         row.ID,
			AdminID:    row.AdminID,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Metadata:   row.Metadata,
			IPAddress:  row.IPAddress,
			CreatedAt:  row.CreatedAt,
		}
		if row.Username != nil {
			e.Username = *row.Username
		}
		entries = append(entries, e)
	}
	return entries, nil
}
