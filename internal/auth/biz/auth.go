package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditbiz "github.com/lk2023060901/blog-backend/internal/audit/biz"
	"github.com/lk2023060901/blog-backend/internal/auth"
	"github.com/lk2023060901/blog-backend/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const entityAdmin = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUsernameTaken      = errors.New("username already exists")
)

// Admin is a back-office account
type Admin struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         auth.Role
	CreatedAt    time.Time
}

// AdminRepo persists admin accounts
type AdminRepo interface {
	Create(ctx context.Context, admin *Admin) error
	// CreateIfEmpty inserts admin only when the table has no rows and
	// reports whether it did
	CreateIfEmpty(ctx context.Context, admin *Admin) (bool, error)
	GetByID(ctx context.Context, id int64) (*Admin, error)
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	List(ctx context.Context) ([]*Admin, error)
	UpdateRole(ctx context.Context, id int64, role auth.Role) error
}

// LoginResult is a successful login
type LoginResult struct {
	Admin     *Admin
	Token     string
	ExpiresAt time.Time
}

// SeedConfig describes the account created on first start
type SeedConfig struct {
	Username string
	Password string
	Role     auth.Role
}

// AuthUseCase admin authentication and account management
type AuthUseCase struct {
	repo       AdminRepo
	jwtManager *auth.JWTManager
	audit      auditbiz.Sink
	logger     *logger.Logger

	// compared against when the username is unknown so both paths cost a
	// bcrypt comparison
	dummyHash []byte
}

func NewAuthUseCase(repo AdminRepo, jwtManager *auth.JWTManager, audit auditbiz.Sink, log *logger.Logger) *AuthUseCase {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-password"), bcrypt.MinCost)
	return &AuthUseCase{
		repo:       repo,
		jwtManager: jwtManager,
		audit:      audit,
		logger:     log.Named("auth"),
		dummyHash:  dummy,
	}
}

// HashPassword bcrypt-hashes a plain password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// EnsureDefaultAdmin creates the configured account when no admin exists yet
func (uc *AuthUseCase) EnsureDefaultAdmin(ctx context.Context, seed SeedConfig) error {
	if seed.Username == "" || seed.Password == "" {
		return nil
	}
	if seed.Role == "" {
		seed.Role = auth.RoleAdmin
	}
	if !seed.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, seed.Role)
	}

	hash, err := HashPassword(seed.Password)
	if err != nil {
		return err
	}
	created, err := uc.repo.CreateIfEmpty(ctx, &Admin{
		Username:     seed.Username,
		PasswordHash: hash,
		Role:         seed.Role,
	})
	if err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	if created {
		uc.logger.Info("default admin created", zap.String("username", seed.Username), zap.String("role", string(seed.Role)))
	}
	return nil
}

// Login checks the credentials and issues an access token
func (uc *AuthUseCase) Login(ctx context.Context, username, password, ip string) (*LoginResult, error) {
	admin, err := uc.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrAdminNotFound) {
		return nil, err
	}

	hash := uc.dummyHash
	if admin != nil {
		hash = []byte(admin.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || admin == nil {
		uc.logger.WithContext(ctx).Warn("login failed", zap.String("username", username), zap.String("ip", ip))
		uc.audit.Record(ctx, auditbiz.Actor{IP: ip}, "login_failed", entityAdmin, nil, map[string]any{"username": username})
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := uc.jwtManager.GenerateAccessToken(admin.ID, admin.Username, admin.Role)
	if err != nil {
		return nil, err
	}

	uc.audit.Record(ctx, auditbiz.ActorID(admin.ID, ip), "login", entityAdmin, auditbiz.Int64Ptr(admin.ID), nil)
	return &LoginResult{Admin: admin, Token: token, ExpiresAt: expiresAt}, nil
}

// ListAdmins returns every account ordered by username
func (uc *AuthUseCase) ListAdmins(ctx context.Context) ([]*Admin, error) {
	return uc.repo.List(ctx)
}

// UpdateRole changes an account's role
func (uc *AuthUseCase) UpdateRole(ctx context.Context, actor auditbiz.Actor, id int64, role auth.Role) (*Admin, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	admin, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}

	uc.audit.Record(ctx, actor, "admin_role_updated", entityAdmin, auditbiz.Int64Ptr(id), map[string]any{
		"username": admin.Username,
		"from":     string(admin.Role),
		"to":       string(role),
	})
	admin.Role = role
	return admin, nil
}
