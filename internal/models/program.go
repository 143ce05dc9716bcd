package models

import (
	"strings"
	"time"
)

// Program is an academic study program candidates apply to.
type Program struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Faculty   string    `db:"faculty" json:"faculty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DefaultPrograms are seeded when missing.
var DefaultPrograms = []Program{
	{Code: "TIF", Name: "Teknik Informatika", Faculty: "FTI"},
	{Code: "SI", Name: "Sistem Informasi", Faculty: "FTI"},
	{Code: "FARM", Name: "Farmasi", Faculty: "FIKES"},
	{Code: "MESIN", Name: "Teknik Mesin", Faculty: "FT"},
}

// NormalizeProgramCode trims surrounding whitespace and uppercases a program code.
func NormalizeProgramCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
