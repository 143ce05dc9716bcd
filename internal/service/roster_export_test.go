package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

type fakeApprovedLister struct {
	rows []models.CandidateDetail
	err  error
	year int
	code string
}

func (f *fakeApprovedLister) ListApproved(ctx context.Context, year int, programCode string) ([]models.CandidateDetail, error) {
	f.year, f.code = year, programCode
	return f.rows, f.err
}

func approvedDetail(nim, name, email, code string, path models.AdmissionPath, at time.Time) models.CandidateDetail {
	return models.CandidateDetail{
		Candidate:   models.Candidate{FullName: name, Email: email, AdmissionPath: path, Status: models.CandidateStatusApproved, NIM: &nim, ApprovedAt: &at},
		ProgramCode: code,
	}
}

func TestRosterExportGolden(t *testing.T) {
	repo := &fakeApprovedLister{rows: []models.CandidateDetail{
		approvedDetail("2025TIF0001", "Ayu Lestari", "ayu@example.com", "TIF", models.AdmissionPathSNBP, time.Date(2025, 8, 15, 9, 30, 0, 0, time.UTC)),
		approvedDetail("2025TIF0002", "Budi, Santoso", "budi@example.com", "TIF", models.AdmissionPathMandiri, time.Date(2025, 8, 16, 1, 0, 0, 0, time.FixedZone("WIB", 7*3600))),
	}}
	svc := NewRosterService(repo)

	data, err := svc.Load(context.Background(), 2025, "TIF")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, svc.Write(&buf, data))

	g := goldie.New(t)
	g.Assert(t, "roster_2025_tif", buf.Bytes())
	assert.Equal(t, 2025, repo.year)
	assert.Equal(t, "TIF", repo.code)
}

func TestRosterExportErrors(t *testing.T) {
	_, err := NewRosterService(&fakeApprovedLister{}).Load(context.Background(), 99, "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = NewRosterService(&fakeApprovedLister{err: errors.New("boom")}).Load(context.Background(), 2025, "")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestRosterFileName(t *testing.T) {
	assert.Equal(t, "roster-2025.csv", RosterFileName(2025, ""))
	assert.Equal(t, "roster-2025-SI.csv", RosterFileName(2025, " si "))
}
