package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, plant *Plant) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Plant, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Plant, error)
	SlugsWithPrefix(ctx context.Context, db *gorm.DB, userID snowflake.ID, prefix string) ([]string, error)
}
