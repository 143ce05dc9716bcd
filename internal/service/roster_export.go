package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/export"
)

var rosterHeaders = []string{"nim", "full_name", "email", "program_code", "admission_path", "approved_at"}

type approvedLister interface {
	ListApproved(ctx context.Context, year int, programCode string) ([]models.CandidateDetail, error)
}

// RosterService exports approved candidates of an intake year.
type RosterService struct {
	candidates approvedLister
	exporter   *export.CSVExporter
}

// NewRosterService constructs a RosterService.
func NewRosterService(candidates approvedLister) *RosterService {
	return &RosterService{candidates: candidates, exporter: export.NewCSVExporter()}
}

// RosterFileName names the export for a year and optional program.
func RosterFileName(year int, programCode string) string {
	if code := models.NormalizeProgramCode(programCode); code != "" {
		return fmt.Sprintf("roster-%d-%s.csv", year, code)
	}
	return fmt.Sprintf("roster-%d.csv", year)
}

// Load validates the request and fetches the rows ahead of writing, so errors can
// still be reported before any output is produced.
func (s *RosterService) Load(ctx context.Context, year int, programCode string) (export.Dataset, error) {
	if year < models.MinCounterYear || year > models.MaxCounterYear {
		return export.Dataset{}, appErrors.Clone(appErrors.ErrValidation, "year must have four digits")
	}
	candidates, err := s.candidates.ListApproved(ctx, year, programCode)
	if err != nil {
		return export.Dataset{}, storeError(err, "failed to load roster")
	}

	rows := make([]map[string]string, 0, len(candidates))
	for _, c := range candidates {
		row := map[string]string{
			"full_name":      c.FullName,
			"email":          c.Email,
			"program_code":   c.ProgramCode,
			"admission_path": string(c.AdmissionPath),
		}
		if c.NIM != nil {
			row["nim"] = *c.NIM
		}
		if c.ApprovedAt != nil {
			row["approved_at"] = c.ApprovedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: rosterHeaders, Rows: rows}, nil
}

// Write renders a dataset returned by Load as CSV.
func (s *RosterService) Write(w io.Writer, data export.Dataset) error {
	return s.exporter.Write(w, data)
}
