package evaluation

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RenderPDF prints one block per record. The creation date is pinned to the
// bucket so output does not depend on when it was rendered.
func RenderPDF(table Table) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(table.Bucket.CreatedAt.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle(table.Title, true)
	pdf.SetAuthor("evalhub", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(table.Title))
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(table.Rows)))
	pdf.Ln(10)

	for _, row := range table.Rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 7, tr(fmt.Sprintf("%s (%s)", cell(row, 4), cell(row, 5))))
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 9)
		for i := 0; i < len(table.Header); i++ {
			if i == 4 || i == 5 {
				continue
			}
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(55, 5, tr(table.Header[i]), "", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 5, tr(cell(row, i)), "", "L", false)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
