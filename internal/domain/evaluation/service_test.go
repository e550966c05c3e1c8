package evaluation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalhub/internal/domain/validation"
	"evalhub/internal/platform/db/dbtest"
	"evalhub/internal/platform/querier"
)

type harness struct {
	db      querier.DB
	fixture dbtest.Fixture
	clock   *FixedClock
	svc     *Service
}

func newHarness(t *testing.T, now time.Time) harness {
	t.Helper()
	return newHarnessOn(t, dbtest.NewSQLite(t), now)
}

func newHarnessOn(t *testing.T, db querier.DB, now time.Time) harness {
	t.Helper()
	f := dbtest.Seed(t, db)
	clock := NewFixedClock(now)
	store := NewStore(db)
	gate := NewGate(store, clock)
	require.NoError(t, gate.Init(context.Background(), true))
	return harness{db: db, fixture: f, clock: clock, svc: NewService(store, gate, clock, time.UTC)}
}

func (h harness) submission(subjectID string) Submission {
	return Submission{
		ActorID:   h.fixture.SupervisorID,
		SubjectID: subjectID,
		Notes:     "ok",
		Answers:   map[string]string{h.fixture.QuestionID: h.fixture.AnswerIDs[0]},
	}
}

func (h harness) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func issueFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Issues))
	for _, issue := range verr.Issues {
		fields = append(fields, issue.Field)
	}
	return fields
}

func TestSubmitStampsCurrentPeriod(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))

	record, err := h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	require.NoError(t, err)
	assert.Equal(t, 2026, record.Year)
	assert.Equal(t, 1, record.Month)
	assert.NotEmpty(t, record.BucketID)
	assert.Equal(t, h.fixture.SupervisorEmail, record.SupervisorEmail)
	assert.Equal(t, h.fixture.EmployeeCode, record.EmployeeCode)
	require.Len(t, record.Responses, 1)
	require.NotNil(t, record.Responses[0].Score)
	assert.Equal(t, 100, *record.Responses[0].Score)

	got, err := h.svc.QueryByPeriod(ctx, Period{Year: 2026, Month: 1}, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, record.ID, got[0].ID)
	assert.Equal(t, "ok", got[0].Notes)
	assert.True(t, got[0].CreatedAt.Equal(record.CreatedAt))
	require.Len(t, got[0].Responses, 1)
	assert.Equal(t, "Answer 1", got[0].Responses[0].AnswerText)

	fetched, err := h.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.BucketID, fetched.BucketID)
}

func TestSubmitRejectedWhenGateClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))

	prior, err := h.svc.Gate().Toggle(ctx, h.fixture.ManagerID)
	require.NoError(t, err)
	assert.True(t, prior)

	_, err = h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	assert.ErrorIs(t, err, ErrGateClosed)

	got, err := h.svc.QueryByPeriod(ctx, h.svc.CurrentPeriod(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, h.count(t, "evaluations"))
	assert.Zero(t, h.count(t, "period_buckets"))
}

func TestAppendRechecksGate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))
	dbtest.OpenGate(t, h.db, false)

	_, err := h.svc.Append(ctx, Record{
		SupervisorID: h.fixture.SupervisorID,
		EmployeeID:   h.fixture.EmployeeID,
	})
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.Zero(t, h.count(t, "evaluations"))
	assert.Zero(t, h.count(t, "period_buckets"))
	assert.Zero(t, h.count(t, "evaluation_responses"))
}

func TestRecordsStayInTheirPeriod(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC))

	december, err := h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	january, err := h.svc.Submit(ctx, h.submission(h.fixture.OtherEmployeeID))
	require.NoError(t, err)
	assert.NotEqual(t, december.BucketID, january.BucketID)

	dec, err := h.svc.QueryByPeriod(ctx, Period{Year: 2025, Month: 12}, Filter{})
	require.NoError(t, err)
	require.Len(t, dec, 1)
	assert.Equal(t, december.ID, dec[0].ID)

	jan, err := h.svc.QueryByPeriod(ctx, Period{Year: 2026, Month: 1}, Filter{})
	require.NoError(t, err)
	require.Len(t, jan, 1)
	assert.Equal(t, january.ID, jan[0].ID)

	byBucket, err := h.svc.QueryByBucket(ctx, december.BucketID)
	require.NoError(t, err)
	require.Len(t, byBucket, 1)
	assert.Equal(t, december.ID, byBucket[0].ID)

	// a later gate toggle does not move anything
	_, err = h.svc.Gate().Toggle(ctx, h.fixture.ManagerID)
	require.NoError(t, err)
	dec, err = h.svc.QueryByPeriod(ctx, Period{Year: 2025, Month: 12}, Filter{})
	require.NoError(t, err)
	assert.Len(t, dec, 1)

	buckets, err := h.svc.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, Period{Year: 2026, Month: 1}, buckets[0].Period())
	assert.Equal(t, 1, buckets[0].RecordCount)
	assert.Equal(t, Period{Year: 2025, Month: 12}, buckets[1].Period())
}

func TestQueryFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	first, err := h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	second, err := h.svc.Submit(ctx, h.submission(h.fixture.OtherEmployeeID))
	require.NoError(t, err)

	all, err := h.svc.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	mine, err := h.svc.Query(ctx, Filter{EmployeeID: h.fixture.EmployeeID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	none, err := h.svc.Query(ctx, Filter{Year: 2026, Month: 4})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = h.svc.Query(ctx, Filter{Month: 13})
	assert.Equal(t, []string{"month"}, issueFields(t, err))

	_, err = h.svc.QueryByPeriod(ctx, Period{Year: 2026, Month: 0}, Filter{})
	assert.Error(t, err)
}

func TestQueryByBucketUnknown(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	_, err := h.svc.QueryByBucket(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))
	f := h.fixture

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name   string
		mutate func(*Submission)
		fields []string
	}{
		{name: "missing employee", mutate: func(s *Submission) { s.SubjectID = "" }, fields: []string{"employeeId"}},
		{name: "unknown employee", mutate: func(s *Submission) { s.SubjectID = "nobody" }, fields: []string{"employeeId"}},
		{name: "unknown supervisor", mutate: func(s *Submission) { s.ActorID = "nobody" }, fields: []string{"supervisorId"}},
		{name: "notes too long", mutate: func(s *Submission) { s.Notes = string(long) }, fields: []string{"notes"}},
		{
			name:   "missing answer",
			mutate: func(s *Submission) { s.Answers = map[string]string{} },
			fields: []string{"answers." + f.QuestionID},
		},
		{
			name:   "foreign answer",
			mutate: func(s *Submission) { s.Answers = map[string]string{f.QuestionID: "other"} },
			fields: []string{"answers." + f.QuestionID},
		},
		{
			name: "unknown question",
			mutate: func(s *Submission) {
				s.Answers = map[string]string{f.QuestionID: f.AnswerIDs[1], "ghost": "x"}
			},
			fields: []string{"answers.ghost"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			sub := h.submission(f.EmployeeID)
			tc.mutate(&sub)
			_, err := h.svc.Submit(ctx, sub)
			assert.ElementsMatch(t, tc.fields, issueFields(t, err))
		})
	}
	assert.Zero(t, h.count(t, "evaluations"))
	assert.Zero(t, h.count(t, "period_buckets"))
}

func TestSubmitRejectsArchivedEmployee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))
	_, err := h.db.Exec(ctx, `UPDATE employees SET archived_at = $1 WHERE id = $2`, h.clock.Now(), h.fixture.EmployeeID)
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	assert.Equal(t, []string{"employeeId"}, issueFields(t, err))
}

func TestSubmitNeedsActiveQuestions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))
	_, err := h.db.Exec(ctx, `UPDATE evaluation_questions SET is_active = $1`, false)
	require.NoError(t, err)

	sub := h.submission(h.fixture.EmployeeID)
	sub.Answers = nil
	_, err = h.svc.Submit(ctx, sub)
	assert.Equal(t, []string{"answers"}, issueFields(t, err))
}

func TestResponsesKeepSubmittedText(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))

	record, err := h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	require.NoError(t, err)

	_, err = h.db.Exec(ctx, `UPDATE question_answers SET answer_text = $1 WHERE id = $2`, "Renamed", h.fixture.AnswerIDs[0])
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, "Answer 1", got.Responses[0].AnswerText)
}

func TestStoredRecordsAreImmutable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC))

	record, err := h.svc.Submit(ctx, h.submission(h.fixture.EmployeeID))
	require.NoError(t, err)

	_, err = h.db.Exec(ctx, `UPDATE evaluations SET notes = $1 WHERE id = $2`, "changed", record.ID)
	assert.Error(t, err)
	_, err = h.db.Exec(ctx, `DELETE FROM evaluations WHERE id = $1`, record.ID)
	assert.Error(t, err)
	_, err = h.db.Exec(ctx, `DELETE FROM evaluation_responses WHERE evaluation_id = $1`, record.ID)
	assert.Error(t, err)
}

func TestConcurrentSubmissionsShareBucket(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))

	const workers = 8
	records := make([]Record, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := h.fixture.EmployeeID
			if i%2 == 1 {
				subject = h.fixture.OtherEmployeeID
			}
			records[i], errs[i] = h.svc.Submit(ctx, h.submission(subject))
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, records[0].BucketID, records[i].BucketID)
	}
	assert.Equal(t, int64(1), h.count(t, "period_buckets"))

	bucket, err := h.svc.GetBucket(ctx, records[0].BucketID)
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2026, Month: 2}, bucket.Period())
	assert.Equal(t, workers, bucket.RecordCount)
}

func TestGetOrCreateBucketIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	period := Period{Year: 2026, Month: 2}

	const workers = 10
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bucket, err := h.svc.GetOrCreateBucket(ctx, period)
			assert.NoError(t, err)
			ids[i] = bucket.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(1), h.count(t, "period_buckets"))

	_, err := h.svc.GetOrCreateBucket(ctx, Period{Year: 2026, Month: 13})
	assert.Error(t, err)
}
