package data

import (
	"context"
	"testing"

	"github.com/lk2023060901/blog-backend/internal/auth"
	"github.com/lk2023060901/blog-backend/internal/auth/biz"
	"github.com/lk2023060901/blog-backend/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRepo(t *testing.T) {
	repo := NewAdminRepo(dbtest.New(t, &AdminPO{}))
	ctx := context.Background()

	created, err := repo.CreateIfEmpty(ctx, &biz.Admin{Username: "root", PasswordHash: "h", Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateIfEmpty(ctx, &biz.Admin{Username: "other", PasswordHash: "h", Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.False(t, created)

	bob := &biz.Admin{Username: "bob", PasswordHash: "h", Role: auth.RoleViewer}
	require.NoError(t, repo.Create(ctx, bob))
	assert.Positive(t, bob.ID)
	assert.ErrorIs(t, repo.Create(ctx, &biz.Admin{Username: "bob", PasswordHash: "h", Role: auth.RoleViewer}), biz.ErrUsernameTaken)

	got, err := repo.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)
	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, biz.ErrAdminNotFound)
	_, err = repo.GetByID(ctx, 404)
	assert.ErrorIs(t, err, biz.ErrAdminNotFound)

	require.NoError(t, repo.UpdateRole(ctx, bob.ID, auth.RoleEditor))
	got, err = repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleEditor, got.Role)
	assert.ErrorIs(t, repo.UpdateRole(ctx, 404, auth.RoleEditor), biz.ErrAdminNotFound)

	admins, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "bob", admins[0].Username)
	assert.Equal(t, "root", admins[1].Username)
}
