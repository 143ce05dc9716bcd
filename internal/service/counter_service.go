package service

import (
	"context"

	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

type counterLister interface {
	List(ctx context.Context, year int) ([]models.NIMCounter, error)
}

// CounterService is the read-only admin view over NIM counters.
type CounterService struct {
	repo counterLister
}

// NewCounterService constructs a CounterService.
func NewCounterService(repo counterLister) *CounterService {
	return &CounterService{repo: repo}
}

// List returns the counters of a year ordered by program code.
func (s *CounterService) List(ctx context.Context, year int) ([]models.NIMCounter, error) {
	if year < models.MinCounterYear || year > models.MaxCounterYear {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year must have four digits")
	}
	counters, err := s.repo.List(ctx, year)
	if err != nil {
		return nil, storeError(err, "failed to list nim counters")
	}
	if counters == nil {
		counters = []models.NIMCounter{}
	}
	return counters, nil
}
