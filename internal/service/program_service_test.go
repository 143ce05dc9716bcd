package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/internal/repository"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

type fakeProgramRepo struct {
	existing map[string]bool
	err      error
}

func (f *fakeProgramRepo) List(ctx context.Context) ([]models.Program, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Program{{Code: "SI"}, {Code: "TIF"}}, nil
}

func (f *fakeProgramRepo) CreateIfMissing(ctx context.Context, program *models.Program) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.existing[program.Code] {
		return false, nil
	}
	f.existing[program.Code] = true
	return true, nil
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	repo := &fakeProgramRepo{existing: map[string]bool{"TIF": true}}
	svc := NewProgramService(repo, nil)

	created, err := svc.EnsureDefaults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(models.DefaultPrograms)-1, created)

	created, err = svc.EnsureDefaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestProgramListStoreFailure(t *testing.T) {
	svc := NewProgramService(&fakeProgramRepo{err: fmt.Errorf("list programs: %w", repository.ErrStoreUnavailable)}, nil)
	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)
}

type fakeCounterLister struct {
	counters []models.NIMCounter
	err      error
	year     int
}

func (f *fakeCounterLister) List(ctx context.Context, year int) ([]models.NIMCounter, error) {
	f.year = year
	return f.counters, f.err
}

func TestCounterServiceList(t *testing.T) {
	repo := &fakeCounterLister{counters: []models.NIMCounter{{Year: 2025, ProgramCode: "TIF", LastSequence: 3}}}
	svc := NewCounterService(repo)

	got, err := svc.List(context.Background(), 2025)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2025, repo.year)

	_, err = svc.List(context.Background(), 25)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	empty, err := NewCounterService(&fakeCounterLister{}).List(context.Background(), 2030)
	require.NoError(t, err)
	assert.NotNil(t, empty)

	_, err = NewCounterService(&fakeCounterLister{err: errors.New("boom")}).List(context.Background(), 2025)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
