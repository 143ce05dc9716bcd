package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Letter carries the fields printed on an admission letter.
type Letter struct {
	FullName      string
	NIM           string
	ProgramName   string
	ProgramCode   string
	Faculty       string
	AdmissionPath string
	ApprovedAt    time.Time
	Institution   string
}

// LetterRenderer renders admission letters as single-page A4 PDFs.
type LetterRenderer struct {
	institution string
}

// NewLetterRenderer constructs a renderer; institution heads every letter.
func NewLetterRenderer(institution string) *LetterRenderer {
	if institution == "" {
		institution = "Panitia Penerimaan Mahasiswa Baru"
	}
	return &LetterRenderer{institution: institution}
}

// Render produces the PDF bytes for the letter.
func (r *LetterRenderer) Render(letter Letter) ([]byte, error) {
	if letter.NIM == "" || letter.FullName == "" {
		return nil, fmt.Errorf("letter requires a name and a NIM")
	}
	institution := letter.Institution
	if institution == "" {
		institution = r.institution
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle("Surat Keterangan Diterima "+letter.NIM, true)
	pdf.SetCreator("pmb-api", true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr(institution), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "SURAT KETERANGAN DITERIMA", "B", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, tr("Dengan ini menerangkan bahwa calon mahasiswa berikut dinyatakan DITERIMA:"), "", "L", false)
	pdf.Ln(3)

	rows := [][2]string{
		{"Nama", letter.FullName},
		{"NIM", letter.NIM},
		{"Program Studi", fmt.Sprintf("%s (%s)", letter.ProgramName, letter.ProgramCode)},
		{"Fakultas", letter.Faculty},
		{"Jalur Masuk", letter.AdmissionPath},
		{"Tanggal Penetapan", letter.ApprovedAt.UTC().Format("02 January 2006")},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(50, 7, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, ": "+tr(row[1]), "", 1, "", false, 0, "")
	}

	pdf.Ln(8)
	pdf.MultiCell(0, 6, tr("Simpan surat ini sebagai bukti penerimaan. NIM di atas berlaku sebagai nomor induk selama masa studi."), "", "L", false)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render letter pdf: %w", err)
	}
	return buf.Bytes(), nil
}
