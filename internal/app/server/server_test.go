package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalhub/internal/app/server"
	"evalhub/internal/domain/evaluation"
	"evalhub/internal/platform/config"
	"evalhub/internal/platform/db/dbtest"
	"evalhub/internal/platform/metrics"
)

type captureMailer struct {
	mu sync.Mutex
	to []string
}

func (m *captureMailer) Send(_ context.Context, _, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	return nil
}

func (m *captureMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.to...)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testApp struct {
	app     *server.App
	fixture dbtest.Fixture
	clock   *evaluation.FixedClock
	mailer  *captureMailer
}

func newTestApp(t *testing.T, overrides ...func(*config.Config)) testApp {
	t.Helper()
	store := dbtest.NewSQLite(t)
	fixture := dbtest.Seed(t, store)
	clock := evaluation.NewFixedClock(time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC))
	mailer := &captureMailer{}

	cfg := config.Config{
		Environment:               "test",
		DatabaseDriver:            "sqlite",
		JWTSecret:                 "test-secret",
		TokenTTL:                  time.Hour,
		EvaluationsEnabledDefault: true,
		PeriodTimezone:            "UTC",
		DefaultSupervisorPassword: dbtest.Password,
		MaxBodyBytes:              1 << 20,
		RateLimitPerMinute:        400,
		MetricsEnabled:            true,
	}
	for _, override := range overrides {
		override(&cfg)
	}
	app, err := server.Build(context.Background(), cfg, store, server.Options{Clock: clock, Mailer: mailer})
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return testApp{app: app, fixture: fixture, clock: clock, mailer: mailer}
}

func (ta testApp) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ta.app.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (ta testApp) login(t *testing.T, email string) string {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": dbtest.Password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session struct {
		Token string `json:"token"`
	}
	decode(t, rec, &session)
	require.NotEmpty(t, session.Token)
	return session.Token
}

func (ta testApp) submitBody() map[string]any {
	return map[string]any{
		"notes":   "steady month",
		"answers": map[string]string{ta.fixture.QuestionID: ta.fixture.AnswerIDs[1]},
	}
}

func TestHealthEndpoints(t *testing.T) {
	ta := newTestApp(t)
	assert.Equal(t, http.StatusOK, ta.do(t, http.MethodGet, "/healthz", "", nil, nil).Code)
	assert.Equal(t, http.StatusOK, ta.do(t, http.MethodGet, "/readyz", "", nil, nil).Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ta := newTestApp(t)
	for _, path := range []string{"/api/v1/evaluations", "/api/v1/settings/evaluations", "/api/v1/auth/me"} {
		rec := ta.do(t, http.MethodGet, path, "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": ta.fixture.SupervisorEmail, "password": "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_credentials", env.Error.Code)
}

func TestSubmitQueryAndExport(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	manager := ta.login(t, ta.fixture.ManagerEmail)

	rec := ta.do(t, http.MethodPost, "/api/v1/employees/"+ta.fixture.EmployeeID+"/evaluations", supervisor, ta.submitBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record evaluation.Record
	decode(t, rec, &record)
	assert.Equal(t, 2026, record.Year)
	assert.Equal(t, 3, record.Month)
	assert.Equal(t, ta.fixture.SupervisorID, record.SupervisorID)
	assert.EqualValues(t, 1, ta.app.Metrics.Count(metrics.EvaluationsSubmitted))

	rec = ta.do(t, http.MethodGet, "/api/v1/evaluations?year=2026&month=3", supervisor, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []evaluation.Record
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, record.ID, list[0].ID)

	rec = ta.do(t, http.MethodGet, "/api/v1/periods", manager, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var buckets []evaluation.Bucket
	decode(t, rec, &buckets)
	require.Len(t, buckets, 1)
	assert.Equal(t, record.BucketID, buckets[0].ID)

	rec = ta.do(t, http.MethodGet, "/api/v1/periods/"+record.BucketID+"/export?format=csv", manager, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "evaluations_2026_03.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeff"))
	assert.Contains(t, rec.Body.String(), "steady month")
	assert.EqualValues(t, 1, ta.app.Metrics.Count(metrics.ExportsRendered))
}

func TestSupervisorScopes(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)

	rec := ta.do(t, http.MethodPut, "/api/v1/settings/evaluations", supervisor, map[string]bool{"enabled": false}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/v1/periods", supervisor, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/v1/evaluations?supervisorId="+ta.fixture.ManagerID, supervisor, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []evaluation.Record
	decode(t, rec, &list)
	assert.Empty(t, list)
}

func TestSubmitForeignEmployeeForbidden(t *testing.T) {
	ta := newTestApp(t)
	manager := ta.login(t, ta.fixture.ManagerEmail)

	rec := ta.do(t, http.MethodPost, "/api/v1/supervisors", manager, map[string]string{"name": "Pat Peer", "email": "peer@example.com"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	peer := ta.login(t, "peer@example.com")

	rec = ta.do(t, http.MethodPost, "/api/v1/employees/"+ta.fixture.EmployeeID+"/evaluations", peer, ta.submitBody(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodPost, "/api/v1/employees/missing/evaluations", peer, ta.submitBody(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateToggleBlocksSubmission(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	manager := ta.login(t, ta.fixture.ManagerEmail)

	rec := ta.do(t, http.MethodPost, "/api/v1/settings/evaluations/toggle", manager, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var toggled struct {
		Previous bool `json:"previous"`
		Enabled  bool `json:"enabled"`
	}
	decode(t, rec, &toggled)
	assert.True(t, toggled.Previous)
	assert.False(t, toggled.Enabled)

	rec = ta.do(t, http.MethodPost, "/api/v1/employees/"+ta.fixture.EmployeeID+"/evaluations", supervisor, ta.submitBody(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "evaluations_disabled", env.Error.Code)
	assert.EqualValues(t, 1, ta.app.Metrics.Count(metrics.EvaluationsGateClosed))

	rec = ta.do(t, http.MethodPut, "/api/v1/settings/evaluations", manager, map[string]bool{"enabled": true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &toggled)
	assert.False(t, toggled.Previous)
	assert.True(t, toggled.Enabled)

	ta.app.Jobs.Wait()
	assert.Equal(t, []string{ta.fixture.SupervisorEmail}, ta.mailer.recipients())

	rec = ta.do(t, http.MethodPost, "/api/v1/employees/"+ta.fixture.EmployeeID+"/evaluations", supervisor, ta.submitBody(), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 2, ta.app.Metrics.Count(metrics.GateToggles))
}

func TestSetGateRequiresEnabled(t *testing.T) {
	ta := newTestApp(t)
	manager := ta.login(t, ta.fixture.ManagerEmail)
	rec := ta.do(t, http.MethodPut, "/api/v1/settings/evaluations", manager, map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestSubmitIdempotencyKey(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	path := "/api/v1/employees/" + ta.fixture.EmployeeID + "/evaluations"
	headers := map[string]string{"Idempotency-Key": "submit-1"}

	first := ta.do(t, http.MethodPost, path, supervisor, ta.submitBody(), headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	var a, b evaluation.Record
	decode(t, first, &a)

	second := ta.do(t, http.MethodPost, path, supervisor, ta.submitBody(), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	decode(t, second, &b)
	assert.Equal(t, a.ID, b.ID)

	changed := ta.submitBody()
	changed["notes"] = "different"
	third := ta.do(t, http.MethodPost, path, supervisor, changed, headers)
	assert.Equal(t, http.StatusConflict, third.Code)

	var count int64
	require.NoError(t, ta.app.DB.QueryRow(context.Background(), "SELECT COUNT(*) FROM evaluations").Scan(&count))
	assert.EqualValues(t, 1, count)
}

func TestSubmitIdempotencyKeyConcurrent(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	path := "/api/v1/employees/" + ta.fixture.EmployeeID + "/evaluations"
	raw, err := json.Marshal(ta.submitBody())
	require.NoError(t, err)

	const attempts = 8
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+supervisor)
			req.Header.Set("Idempotency-Key", "retry-1")
			rec := httptest.NewRecorder()
			ta.app.Router.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
		if code == http.StatusCreated {
			created++
		}
	}
	assert.GreaterOrEqual(t, created, 1)

	var count int64
	require.NoError(t, ta.app.DB.QueryRow(context.Background(), "SELECT COUNT(*) FROM evaluations").Scan(&count))
	assert.EqualValues(t, 1, count)

	replay := ta.do(t, http.MethodPost, path, supervisor, ta.submitBody(), map[string]string{"Idempotency-Key": "retry-1"})
	require.Equal(t, http.StatusCreated, replay.Code, replay.Body.String())
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replay"))
}

func TestSubmitFailureReleasesIdempotencyKey(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	manager := ta.login(t, ta.fixture.ManagerEmail)
	path := "/api/v1/employees/" + ta.fixture.EmployeeID + "/evaluations"
	headers := map[string]string{"Idempotency-Key": "after-close"}

	rec := ta.do(t, http.MethodPut, "/api/v1/settings/evaluations", manager, map[string]any{"enabled": false}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ta.do(t, http.MethodPost, path, supervisor, ta.submitBody(), headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(t, http.MethodPut, "/api/v1/settings/evaluations", manager, map[string]any{"enabled": true}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ta.do(t, http.MethodPost, path, supervisor, ta.submitBody(), headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Idempotent-Replay"))
}

func TestExportRateLimited(t *testing.T) {
	ta := newTestApp(t, func(cfg *config.Config) { cfg.ExportRateLimitPerMinute = 2 })
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	manager := ta.login(t, ta.fixture.ManagerEmail)

	rec := ta.do(t, http.MethodPost, "/api/v1/employees/"+ta.fixture.EmployeeID+"/evaluations", supervisor, ta.submitBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var record evaluation.Record
	decode(t, rec, &record)

	path := "/api/v1/periods/" + record.BucketID + "/export"
	for i := 0; i < 2; i++ {
		rec = ta.do(t, http.MethodGet, path, manager, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, "export %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec = ta.do(t, http.MethodGet, path, manager, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := ta.do(t, http.MethodGet, "/api/v1/periods", manager, nil, nil)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestSubmitValidationErrors(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	rec := ta.do(t, http.MethodPost, "/api/v1/employees/"+ta.fixture.EmployeeID+"/evaluations", supervisor, map[string]any{"notes": "no answers"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestDashboardPerRole(t *testing.T) {
	ta := newTestApp(t)
	supervisor := ta.login(t, ta.fixture.SupervisorEmail)
	manager := ta.login(t, ta.fixture.ManagerEmail)

	rec := ta.do(t, http.MethodGet, "/api/v1/dashboard", manager, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var md struct {
		Supervisors int `json:"supervisors"`
		Employees   int `json:"employees"`
	}
	decode(t, rec, &md)
	assert.Equal(t, 1, md.Supervisors)
	assert.Equal(t, 2, md.Employees)

	rec = ta.do(t, http.MethodGet, "/api/v1/dashboard", supervisor, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sd struct {
		Employees int  `json:"employees"`
		GateOpen  bool `json:"gateOpen"`
	}
	decode(t, rec, &sd)
	assert.Equal(t, 2, sd.Employees)
	assert.True(t, sd.GateOpen)
}

func TestAuditTrailRecordsGateChanges(t *testing.T) {
	ta := newTestApp(t)
	manager := ta.login(t, ta.fixture.ManagerEmail)
	require.Equal(t, http.StatusOK, ta.do(t, http.MethodPost, "/api/v1/settings/evaluations/toggle", manager, nil, nil).Code)

	rec := ta.do(t, http.MethodGet, "/api/v1/audit/events?action=evaluations.gate_disabled", manager, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []struct {
		ActorID string `json:"actorId"`
	}
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, ta.fixture.ManagerID, events[0].ActorID)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
}

func TestResendGateOpened(t *testing.T) {
	ta := newTestApp(t)
	manager := ta.login(t, ta.fixture.ManagerEmail)

	rec := ta.do(t, http.MethodPost, "/api/v1/notifications/gate-opened", manager, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	decode(t, rec, &result)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, []string{ta.fixture.SupervisorEmail}, ta.mailer.recipients())

	require.Equal(t, http.StatusOK, ta.do(t, http.MethodPost, "/api/v1/settings/evaluations/toggle", manager, nil, nil).Code)
	rec = ta.do(t, http.MethodPost, "/api/v1/notifications/gate-opened", manager, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
