// Package authorization decides which roles may call operator endpoints.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleUser  = "role:user"
	RoleAdmin = "role:admin"
)

const (
	ObjectSimulation = "simulation"
	ObjectTuning     = "tuning"
)

const (
	ActionSimulationRead    = "read"
	ActionSimulationTrigger = "trigger"
	ActionTuningRead        = "read"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

type Service interface {
	Authorize(ctx context.Context, userID snowflake.ID, object, action string) error
	RoleOf(ctx context.Context, userID snowflake.ID) (string, error)
}
