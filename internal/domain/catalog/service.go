// Package catalog manages the materials the ledger tracks.
package catalog

import (
	"context"
	"fmt"

	"canteiro/internal/core/apperror"
	"canteiro/internal/core/entity"
	"canteiro/internal/core/id"
	"canteiro/internal/core/types"
	"canteiro/internal/domain"
	"canteiro/pkg/logger"
)

// CreateMaterialCommand registers a material with zero stock.
type CreateMaterialCommand struct {
	Code         string         `json:"code" validate:"required,max=50"`
	Name         string         `json:"name" validate:"required,max=200"`
	Unit         string         `json:"unit" validate:"required,max=20"`
	MinThreshold types.Quantity `json:"minThreshold" validate:"gte=0"`
}

// Service provides material catalog operations.
type Service struct {
	repo domain.MaterialRepository
}

// NewService creates a new catalog service.
func NewService(repo domain.MaterialRepository) *Service {
	return &Service{repo: repo}
}

// CreateMaterial adds a material. Codes are unique regardless of case.
func (s *Service) CreateMaterial(ctx context.Context, cmd CreateMaterialCommand) (*entity.Material, error) {
	if err := domain.Validate(cmd); err != nil {
		return nil, err
	}

	m := entity.NewMaterial(cmd.Code, cmd.Name, cmd.Unit, cmd.MinThreshold)
	if err := m.Validate(ctx); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByCode(ctx, m.Code); err == nil {
		return nil, apperror.NewDuplicate("material", "code", existing.Code)
	} else if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("check material code: %w", err)
	}

	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	logger.Info(ctx, "material created", "material_id", m.ID, "code", m.Code)
	return m, nil
}

// Get returns a material by id.
func (s *Service) Get(ctx context.Context, materialID id.ID) (*entity.Material, error) {
	return s.repo.Get(ctx, materialID)
}

// GetByCode returns a material by code.
func (s *Service) GetByCode(ctx context.Context, code string) (*entity.Material, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns materials ordered by code.
func (s *Service) List(ctx context.Context, filter domain.MaterialFilter) ([]entity.Material, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return items, nil
}
