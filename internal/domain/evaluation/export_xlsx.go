package evaluation

import (
	"time"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Evaluations"

// RenderXLSX writes the table to a single sheet. Document properties are
// derived from the bucket so repeated renders match.
func RenderXLSX(table Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}
	propsTime := table.Bucket.CreatedAt.UTC().Format(time.RFC3339)
	if err := f.SetDocProps(&excelize.DocProperties{
		Creator:        "evalhub",
		LastModifiedBy: "evalhub",
		Title:          table.Title,
		Created:        propsTime,
		Modified:       propsTime,
	}); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	for i, row := range append([][]string{table.Header}, table.Rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return nil, err
		}
	}
	if err := f.SetRowStyle(xlsxSheet, 1, 1, headerStyle); err != nil {
		return nil, err
	}
	for i := range table.Header {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		width := 22.0
		if i == 0 {
			width = 38
		}
		if err := f.SetColWidth(xlsxSheet, col, col, width); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
