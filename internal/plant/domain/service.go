package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, subjectID snowflake.ID, req CreateRequest) (*Response, error)
	List(ctx context.Context, subjectID snowflake.ID) ([]Response, error)
	Get(ctx context.Context, subjectID snowflake.ID, id string) (*Response, error)
}

type CreateRequest struct {
	Name     string `json:"name"`
	Species  string `json:"species"`
	Location string `json:"location"`
}

type Response struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Species   string    `json:"species,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidSubject = errors.New("invalid_subject")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("not_found")
)
