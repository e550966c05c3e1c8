package evaluation

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func score(n int) *int { return &n }

func sampleTable() Table {
	bucket := Bucket{ID: "b1", Year: 2025, Month: 12, CreatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)}
	records := []Record{
		{
			ID: "r2", CreatedAt: time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC), Year: 2025, Month: 12,
			BucketID: "b1", EmployeeID: "e2", SupervisorID: "s1",
			EmployeeName: "Owen", EmployeeCode: "EMP002", SupervisorEmail: "sup@example.com", Notes: "second",
			Responses: []Response{
				{QuestionID: "q2", QuestionText: "Teamwork", QuestionOrder: 2, AnswerText: "Good", Score: score(80)},
				{QuestionID: "q1", QuestionText: "Quality", QuestionOrder: 1, AnswerText: "Great", Score: score(100)},
			},
		},
		{
			ID: "r1", CreatedAt: time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC), Year: 2025, Month: 12,
			BucketID: "b1", EmployeeID: "e1", SupervisorID: "s1",
			EmployeeName: "Erin", EmployeeCode: "EMP001", SupervisorEmail: "sup@example.com", Notes: "first, with comma",
			Responses: []Response{
				{QuestionID: "q1", QuestionText: "Quality", QuestionOrder: 1, AnswerText: "Fair", Score: score(60)},
			},
		},
	}
	return BuildTable(bucket, records)
}

func TestBuildTable(t *testing.T) {
	table := sampleTable()

	assert.Equal(t, "Evaluations December 2025", table.Title)
	assert.Equal(t, append(append([]string{}, baseHeader...), "Quality", "Teamwork"), table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "r1", table.Rows[0][0])
	assert.Equal(t, "2025-12-02T00:00:00Z", table.Rows[0][1])
	assert.Equal(t, []string{"b1", "e1", "s1"}, table.Rows[0][8:11])
	assert.Equal(t, []string{"Fair", ""}, table.Rows[0][11:])
	assert.Equal(t, []string{"Great", "Good"}, table.Rows[1][11:])
}

func TestRenderCSV(t *testing.T) {
	body, err := RenderCSV(sampleTable())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(body, []byte("\ufeff")))

	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, []byte("\ufeff")))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"Evaluation ID", "Created At", "Year", "Month",
		"Worker Name", "Worker Code", "Supervisor Email", "Notes",
		"Bucket ID", "Worker ID", "Supervisor ID", "Quality", "Teamwork",
	}, rows[0])
	assert.Equal(t, "first, with comma", rows[1][7])
	assert.Equal(t, []string{"b1", "e1", "s1"}, rows[1][8:11])
	assert.Equal(t, []string{"b1", "e2", "s1"}, rows[2][8:11])
}

func TestRenderXLSX(t *testing.T) {
	body, err := RenderXLSX(sampleTable())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Evaluations")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Teamwork", rows[0][12])
	assert.Equal(t, "r2", rows[2][0])
}

func TestRenderPDF(t *testing.T) {
	body, err := RenderPDF(sampleTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    Format
		wantErr bool
	}{
		{raw: "", want: FormatCSV},
		{raw: "CSV", want: FormatCSV},
		{raw: " xlsx ", want: FormatXLSX},
		{raw: "pdf", want: FormatPDF},
		{raw: "docx", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
	assert.Equal(t, "evaluations_2025_12.xlsx", ExportFilename(Period{Year: 2025, Month: 12}, FormatXLSX))
}

func TestExportIsRepeatableAndReadOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2025, 12, 5, 10, 0, 0, 0, time.UTC))

	first, err := h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = h.svc.Submit(ctx, h.submission(h.fixture.OtherEmployeeID))
	require.NoError(t, err)

	evaluations := h.count(t, "evaluations")
	buckets := h.count(t, "period_buckets")
	gateBefore, err := h.svc.Gate().State(ctx)
	require.NoError(t, err)

	a, err := h.svc.Export(ctx, first.BucketID, FormatCSV)
	require.NoError(t, err)
	b, err := h.svc.Export(ctx, first.BucketID, FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, a.Body, b.Body)
	assert.Equal(t, "evaluations_2025_12.csv", a.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", a.ContentType)
	assert.Equal(t, evaluations, h.count(t, "evaluations"))
	assert.Equal(t, buckets, h.count(t, "period_buckets"))

	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(a.Body, []byte("\ufeff")))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, first.ID, rows[1][0])
	assert.Equal(t, []string{first.BucketID, h.fixture.EmployeeID, h.fixture.SupervisorID}, rows[1][8:11])

	for _, format := range []Format{FormatXLSX, FormatPDF} {
		x, err := h.svc.Export(ctx, first.BucketID, format)
		require.NoError(t, err)
		y, err := h.svc.Export(ctx, first.BucketID, format)
		require.NoError(t, err)
		assert.NotEmpty(t, x.Body)
		assert.Equal(t, x.Body, y.Body, string(format))
	}
	assert.Equal(t, evaluations, h.count(t, "evaluations"))
	assert.Equal(t, buckets, h.count(t, "period_buckets"))

	gateAfter, err := h.svc.Gate().State(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateBefore, gateAfter)
	open, err := h.svc.Gate().CanSubmit(ctx)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestExportUnknownBucket(t *testing.T) {
	h := newHarness(t, time.Date(2025, 12, 5, 10, 0, 0, 0, time.UTC))
	_, err := h.svc.Export(context.Background(), "missing", FormatCSV)
	assert.ErrorIs(t, err, ErrNotFound)
}
