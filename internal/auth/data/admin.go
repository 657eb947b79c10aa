package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/blog-backend/internal/auth"
	"github.com/lk2023060901/blog-backend/internal/auth/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/database"
	"gorm.io/gorm"
)

// AdminPO admins row
type AdminPO struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"size:100;not null;uniqueIndex"`
	Password  string    `gorm:"size:255;not null"`
	Role      string    `gorm:"size:20;not null;default:viewer"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AdminPO) TableName() string {
	return "admins"
}

func (po *AdminPO) toBiz() *biz.Admin {
	return &biz.Admin{
		ID:           po.ID,
		Username:     po.Username,
		PasswordHash: po.Password,
		Role:         auth.Role(po.Role),
		CreatedAt:    po.CreatedAt,
	}
}

// AdminRepo gorm-backed admin accounts
type AdminRepo struct {
	db *database.DB
}

// NewAdminRepo creates the admin repository
func NewAdminRepo(db *database.DB) biz.AdminRepo {
	return &AdminRepo{db: db}
}

func newAdminPO(admin *biz.Admin) *AdminPO {
	return &AdminPO{
		Username: admin.Username,
		Password: admin.PasswordHash,
		Role:     string(admin.Role),
	}
}

func (r *AdminRepo) Create(ctx context.Context, admin *biz.Admin) error {
	po := newAdminPO(admin)
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return biz.ErrUsernameTaken
		}
		return fmt.Errorf("create admin: %w", err)
	}
	admin.ID = po.ID
	admin.CreatedAt = po.CreatedAt
	return nil
}

// CreateIfEmpty counts and inserts inside one transaction
func (r *AdminRepo) CreateIfEmpty(ctx context.Context, admin *biz.Admin) (bool, error) {
	created := false
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&AdminPO{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		po := newAdminPO(admin)
		if err := tx.Create(po).Error; err != nil {
			return err
		}
		admin.ID = po.ID
		admin.CreatedAt = po.CreatedAt
		created = true
		return nil
	})
	return created, err
}

func (r *AdminRepo) GetByID(ctx context.Context, id int64) (*biz.Admin, error) {
	var po AdminPO
	if err := r.db.WithContext(ctx).First(&po, id).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrAdminNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return po.toBiz(), nil
}

func (r *AdminRepo) GetByUsername(ctx context.Context, username string) (*biz.Admin, error) {
	var po AdminPO
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, biz.ErrAdminNotFound
		}
		return nil, fmt.Errorf("get admin by username: %w", err)
	}
	return po.toBiz(), nil
}

func (r *AdminRepo) List(ctx context.Context) ([]*biz.Admin, error) {
	var pos []AdminPO
	if err := r.db.WithContext(ctx).Order("username").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	admins := make([]*biz.Admin, 0, len(pos))
	for i := range pos {
		admins = append(admins, pos[i].toBiz())
	}
	return admins, nil
}

func (r *AdminRepo) UpdateRole(ctx context.Context, id int64, role auth.Role) error {
	res := r.db.WithContext(ctx).Model(&AdminPO{}).Where("id = ?", id).Update("role", string(role))
	if res.Error != nil {
		return fmt.Errorf("update admin role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return biz.ErrAdminNotFound
	}
	return nil
}
