package warehouses

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrValidation indicates invalid warehouse input.
var ErrValidation = errors.New("warehouses: invalid input")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, search string, page, perPage int) ([]Warehouse, int, error) {
	return s.repo.List(ctx, search, page, perPage)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse id", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, wh Warehouse) (Warehouse, error) {
	if err := s.validate(wh); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, wh)
}

func (s *Service) Update(ctx context.Context, id int64, wh Warehouse) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", ErrValidation)
	}
	if err := s.validate(wh); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, wh)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid warehouse id", ErrValidation)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validate(wh Warehouse) error {
	if strings.TrimSpace(wh.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	if strings.TrimSpace(wh.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}
