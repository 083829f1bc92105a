package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/plant/domain"
	"github.com/smallbiznis/plantcare/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNameLength = 128
	fallbackSlug  = "plant"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plant.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, subjectID snowflake.ID, req domain.CreateRequest) (*domain.Response, error) {
	if subjectID == 0 {
		return nil, domain.ErrInvalidSubject
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	plant := &domain.Plant{
		ID:        s.genID.Generate(),
		UserID:    subjectID,
		Name:      name,
		Species:   strings.TrimSpace(req.Species),
		Location:  strings.TrimSpace(req.Location),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := slug.Make(name)
		if base == "" {
			base = fallbackSlug
		}
		taken, err := s.repo.SlugsWithPrefix(ctx, tx, subjectID, base)
		if err != nil {
			return err
		}
		plant.Slug = uniqueSlug(base, taken)
		return s.repo.Create(ctx, tx, plant)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: slug %q already taken", domain.ErrInvalidName, plant.Slug)
		}
		return nil, err
	}

	resp := toResponse(plant)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, subjectID snowflake.ID) ([]domain.Response, error) {
	if subjectID == 0 {
		return nil, domain.ErrInvalidSubject
	}
	items, err := s.repo.List(ctx, s.db, subjectID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, subjectID snowflake.ID, id string) (*domain.Response, error) {
	if subjectID == 0 {
		return nil, domain.ErrInvalidSubject
	}
	plantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || plantID == 0 {
		return nil, domain.ErrInvalidID
	}
	plant, err := s.repo.FindByID(ctx, s.db, subjectID, plantID)
	if err != nil {
		return nil, err
	}
	if plant == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(plant)
	return &resp, nil
}

// uniqueSlug returns base, or base-N with the smallest N >= 2 not in taken.
func uniqueSlug(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}

func toResponse(p *domain.Plant) domain.Response {
	return domain.Response{
		ID:        p.ID.String(),
		Name:      p.Name,
		Slug:      p.Slug,
		Species:   p.Species,
		Location:  p.Location,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
