package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/models"
)

type programRepository interface {
	List(ctx context.Context) ([]models.Program, error)
	CreateIfMissing(ctx context.Context, program *models.Program) (bool, error)
}

// ProgramService exposes the program catalogue.
type ProgramService struct {
	repo   programRepository
	logger *zap.Logger
}

// NewProgramService constructs a ProgramService.
func NewProgramService(repo programRepository, logger *zap.Logger) *ProgramService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, logger: logger}
}

// List returns all programs ordered by code.
func (s *ProgramService) List(ctx context.Context) ([]models.Program, error) {
	programs, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError(err, "failed to list programs")
	}
	return programs, nil
}

// EnsureDefaults inserts the default programs that do not exist yet and returns
// how many were created.
func (s *ProgramService) EnsureDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, def := range models.DefaultPrograms {
		program := def
		ok, err := s.repo.CreateIfMissing(ctx, &program)
		if err != nil {
			return created, storeError(err, "failed to seed programs")
		}
		if ok {
			created++
			s.logger.Info("program seeded", zap.String("code", program.Code))
		}
	}
	return created, nil
}
