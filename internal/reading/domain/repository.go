package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the reading store. Every method runs on the handle it is given, so
// callers decide whether a call joins an open transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reading *Reading) (int64, error)
	InsertBatch(ctx context.Context, db *gorm.DB, readings []*Reading) error
	List(ctx context.Context, db *gorm.DB, subjectID snowflake.ID, r TimeRange) ([]Reading, error)
	ListRecent(ctx context.Context, db *gorm.DB, subjectID snowflake.ID, limit int) ([]Reading, error)
	Latest(ctx context.Context, db *gorm.DB, subjectID snowflake.ID) (*Reading, error)
	ListSubjectIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}
