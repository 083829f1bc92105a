package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantcare/internal/config"
	"github.com/smallbiznis/plantcare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, admins ...string) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT NOT NULL)`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO users (id, username) VALUES (1, 'alice'), (2, 'root')`).Error)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		Config:   config.Config{AdminUsernames: admins},
		Enforcer: enforcer,
	})
}

func TestUserMayViewButNotTick(t *testing.T) {
	svc := newTestService(t, "root")
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, snowflake.ID(1), ObjectSimulation, ActionSimulationRead))
	assert.ErrorIs(t, svc.Authorize(ctx, snowflake.ID(1), ObjectSimulation, ActionSimulationTrigger), ErrForbidden)
}

func TestAdminInheritsUserPermissions(t *testing.T) {
	svc := newTestService(t, "root")
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, snowflake.ID(2), ObjectSimulation, ActionSimulationRead))
	assert.NoError(t, svc.Authorize(ctx, snowflake.ID(2), ObjectSimulation, ActionSimulationTrigger))
	assert.NoError(t, svc.Authorize(ctx, snowflake.ID(2), ObjectTuning, ActionTuningRead))

	role, err := svc.RoleOf(ctx, snowflake.ID(2))
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestAuthorizeRejectsUnknownActor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, 0, ObjectSimulation, ActionSimulationRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, snowflake.ID(42), ObjectSimulation, ActionSimulationRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, snowflake.ID(1), "", ActionSimulationRead), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, snowflake.ID(1), ObjectSimulation, " "), ErrInvalidAction)
}
