package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthService_Register(t *testing.T) {
	t.Setenv("JWT_SECRET", "testsecret")

	repo := newFakeUserRepo()
	authSvc := service.NewAuthService(newTestLogger(), repo, time.Hour)

	user, token, err := authSvc.Register(context.Background(), service.RegisterInput{
		Name:     "Ravi",
		Email:    " Ravi@Example.com ",
		Password: "password123",
		Role:     models.RoleFarmer,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "ravi@example.com", user.Email)
	assert.Equal(t, models.RoleFarmer, user.Role)
	// пароль хранится только в виде хэша
	assert.NotEqual(t, "password123", string(user.PassHash))
	assert.NoError(t, bcrypt.CompareHashAndPassword(user.PassHash, []byte("password123")))
}

func TestAuthService_Register_Rejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "testsecret")

	repo := newFakeUserRepo()
	authSvc := service.NewAuthService(newTestLogger(), repo, time.Hour)
	ctx := context.Background()

	_, _, err := authSvc.Register(ctx, service.RegisterInput{Name: "A", Email: "a@example.com", Password: "password123", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, service.ErrValidation, "admin role can not be self-assigned")

	_, _, err = authSvc.Register(ctx, service.RegisterInput{Name: "A", Email: "a@example.com", Password: "password123", Role: "farmhand"})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, _, err = authSvc.Register(ctx, service.RegisterInput{Name: "A", Email: "a@example.com", Password: "password123", Role: models.RoleBuyer})
	require.NoError(t, err)
	_, _, err = authSvc.Register(ctx, service.RegisterInput{Name: "B", Email: "a@example.com", Password: "password123", Role: models.RoleBuyer})
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestAuthService_Login(t *testing.T) {
	t.Setenv("JWT_SECRET", "testsecret")

	repo := newFakeUserRepo()
	authSvc := service.NewAuthService(newTestLogger(), repo, time.Hour)
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, &models.User{Email: "existing@example.com", PassHash: hashed, Role: models.RoleBuyer})
	require.NoError(t, err)

	token, err := authSvc.Login(ctx, "existing@example.com", "password123")
	assert.NoError(t, err, "Login should succeed with correct password")
	assert.NotEmpty(t, token)

	token, err = authSvc.Login(ctx, "existing@example.com", "wrongpassword")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.Empty(t, token)

	_, err = authSvc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	msg, ok := service.Message(err)
	assert.True(t, ok)
	assert.Equal(t, "Invalid credentials", msg)
}

func TestAuthService_Me(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc := service.NewAuthService(newTestLogger(), repo, time.Hour)
	farmer := repo.add(7, models.RoleFarmer)

	user, err := authSvc.Me(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, farmer.Email, user.Email)

	_, err = authSvc.Me(context.Background(), 99)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
