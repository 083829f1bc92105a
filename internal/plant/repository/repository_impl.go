package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantcare/internal/plant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, plant *domain.Plant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plants (id, user_id, name, slug, species, location, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		plant.ID,
		plant.UserID,
		plant.Name,
		plant.Slug,
		plant.Species,
		plant.Location,
		plant.CreatedAt,
		plant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Plant, error) {
	var p domain.Plant
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, name, slug, species, location, created_at, updated_at
		 FROM plants WHERE user_id = ? AND id = ?`,
		userID,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Plant, error) {
	var items []domain.Plant
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, name, slug, species, location, created_at, updated_at
		 FROM plants WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SlugsWithPrefix(ctx context.Context, db *gorm.DB, userID snowflake.ID, prefix string) ([]string, error) {
	var slugs []string
	err := db.WithContext(ctx).Raw(
		`SELECT slug FROM plants WHERE user_id = ? AND (slug = ? OR slug LIKE ?)`,
		userID,
		prefix,
		prefix+"-%",
	).Scan(&slugs).Error
	return slugs, err
}
