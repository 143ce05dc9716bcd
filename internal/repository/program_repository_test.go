package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pmb-api/internal/models"
)

func TestProgramFindByCodeNormalizes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "faculty", "created_at"}).
		AddRow("prog-1", "SI", "Sistem Informasi", "FTI", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM programs WHERE code = $1")).WithArgs("SI").WillReturnRows(rows)

	program, err := repo.FindByCode(context.Background(), " si")
	require.NoError(t, err)
	assert.Equal(t, "prog-1", program.ID)
}

func TestProgramFindByCodeMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	mock.ExpectQuery("FROM programs WHERE code").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCode(context.Background(), "XYZ")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProgramCreateIfMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.CreateIfMissing(context.Background(), &models.Program{Code: "tif", Name: "Teknik Informatika", Faculty: "FTI"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateIfMissing(context.Background(), &models.Program{Code: "TIF", Name: "Teknik Informatika", Faculty: "FTI"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
