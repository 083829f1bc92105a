package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/plantcare/internal/auth/domain"
	"github.com/smallbiznis/plantcare/internal/auth/repository"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (authdomain.Service, *clock.FakeClock) {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}))

	repo, sessionRepo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	return New(Params{
		Log:         zap.NewNop(),
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Clock:       fake,
	}), fake
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "  alice ", Password: "pass", Location: "Jakarta"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "Jakarta", user.Location)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "pass", user.PasswordHash)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.RawToken)
	assert.Equal(t, time.Date(2025, 7, 13, 12, 0, 0, 0, time.UTC), result.ExpiresAt)

	session, err := svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  authdomain.RegisterRequest
		want error
	}{
		{"short username", authdomain.RegisterRequest{Username: "ab", Password: "pass"}, authdomain.ErrInvalidUsername},
		{"blank username", authdomain.RegisterRequest{Username: "   ", Password: "pass"}, authdomain.ErrInvalidUsername},
		{"short password", authdomain.RegisterRequest{Username: "alice", Password: "abc"}, authdomain.ErrInvalidPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "other"})
	assert.ErrorIs(t, err, authdomain.ErrUserExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "correct-password"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Username: "nobody", Password: "correct-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)
	result, err := svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.RawToken))

	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
	assert.ErrorIs(t, svc.Logout(ctx, "unknown"), authdomain.ErrInvalidSession)
}

func TestAuthenticateExpiredSession(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)
	result, err := svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)

	fake.Advance(8 * 24 * time.Hour)

	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionExpired)
}

func TestSetLocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pass"})
	require.NoError(t, err)

	updated, err := svc.SetLocation(ctx, user.ID, " Bandung ")
	require.NoError(t, err)
	assert.Equal(t, "Bandung", updated.Location)

	_, err = svc.SetLocation(ctx, user.ID, "  ")
	assert.ErrorIs(t, err, authdomain.ErrInvalidLocation)

	_, err = svc.SetLocation(ctx, snowflake.ID(999), "Bandung")
	assert.ErrorIs(t, err, authdomain.ErrUserNotFound)
}
