package evaluation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"evalhub/internal/domain/validation"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", validation.New("format", "must be one of csv, xlsx, pdf")
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

var baseHeader = []string{
	"Evaluation ID", "Created At", "Year", "Month",
	"Worker Name", "Worker Code", "Supervisor Email", "Notes",
	"Bucket ID", "Worker ID", "Supervisor ID",
}

// Table is the rendering-neutral view of one bucket.
type Table struct {
	Title  string
	Bucket Bucket
	Header []string
	Rows   [][]string
}

type questionColumn struct {
	id    string
	text  string
	order int
}

// BuildTable lays out records oldest first with one column per question that
// appears in any of them.
func BuildTable(bucket Bucket, records []Record) Table {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	seen := map[string]bool{}
	var columns []questionColumn
	for _, r := range sorted {
		for _, resp := range r.Responses {
			if seen[resp.QuestionID] {
				continue
			}
			seen[resp.QuestionID] = true
			columns = append(columns, questionColumn{id: resp.QuestionID, text: resp.QuestionText, order: resp.QuestionOrder})
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		a, b := columns[i], columns[j]
		if a.order != b.order {
			return a.order < b.order
		}
		if a.text != b.text {
			return a.text < b.text
		}
		return a.id < b.id
	})

	header := append([]string{}, baseHeader...)
	for _, c := range columns {
		header = append(header, c.text)
	}

	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		answers := make(map[string]string, len(r.Responses))
		for _, resp := range r.Responses {
			answers[resp.QuestionID] = resp.AnswerText
		}
		row := []string{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Month),
			r.EmployeeName,
			r.EmployeeCode,
			r.SupervisorEmail,
			r.Notes,
			r.BucketID,
			r.EmployeeID,
			r.SupervisorID,
		}
		for _, c := range columns {
			row = append(row, answers[c.id])
		}
		rows = append(rows, row)
	}

	return Table{
		Title:  "Evaluations " + bucket.Name(),
		Bucket: bucket,
		Header: header,
		Rows:   rows,
	}
}

func ExportFilename(period Period, format Format) string {
	return fmt.Sprintf("evaluations_%d_%02d.%s", period.Year, period.Month, format)
}

func RenderCSV(table Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Render(table Table, format Format) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return RenderXLSX(table)
	case FormatPDF:
		return RenderPDF(table)
	default:
		return RenderCSV(table)
	}
}

// Export renders one bucket from a read-only snapshot. It never writes.
func (s *Service) Export(ctx context.Context, bucketID string, format Format) (Export, error) {
	bucket, records, err := s.store.ExportSnapshot(ctx, bucketID)
	if err != nil {
		return Export{}, err
	}
	body, err := Render(BuildTable(bucket, records), format)
	if err != nil {
		return Export{}, fmt.Errorf("render %s export: %w", format, err)
	}
	return Export{
		Filename:    ExportFilename(bucket.Period(), format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}
