package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"gorm.io/gorm"
)

const readingColumns = `id, user_id, timestamp, moisture, temp, light, notes, plant_id, sensor_type`

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reading *readingdomain.Reading) (int64, error) {
	if err := db.WithContext(ctx).Create(reading).Error; err != nil {
		return 0, err
	}
	return reading.ID, nil
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, readings []*readingdomain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(readings, 200).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, subjectID snowflake.ID, tr readingdomain.TimeRange) ([]readingdomain.Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM plant_readings WHERE user_id = ?`
	args := []any{subjectID}
	if tr.Start != nil {
		query += ` AND timestamp >= ?`
		args = append(args, readingdomain.FormatTimestamp(*tr.Start))
	}
	if tr.End != nil {
		query += ` AND timestamp <= ?`
		args = append(args, readingdomain.FormatTimestamp(*tr.End))
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	var items []readingdomain.Reading
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListRecent returns up to limit readings, newest first.
func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, subjectID snowflake.ID, limit int) ([]readingdomain.Reading, error) {
	var items []readingdomain.Reading
	err := db.WithContext(ctx).Raw(
		`SELECT `+readingColumns+` FROM plant_readings
		 WHERE user_id = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		subjectID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, subjectID snowflake.ID) (*readingdomain.Reading, error) {
	items, err := r.ListRecent(ctx, db, subjectID, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListSubjectIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var raw []int64
	if err := db.WithContext(ctx).Raw(`SELECT id FROM users ORDER BY id`).Scan(&raw).Error; err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}
