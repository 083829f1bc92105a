// Package domain holds the per-user plant registry.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Plant struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_plants_user_slug,priority:1"`
	Name      string       `gorm:"type:varchar(128);not null"`
	Slug      string       `gorm:"type:varchar(160);not null;uniqueIndex:ux_plants_user_slug,priority:2"`
	Species   string       `gorm:"type:varchar(128)"`
	Location  string       `gorm:"type:varchar(128)"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (Plant) TableName() string { return "plants" }
