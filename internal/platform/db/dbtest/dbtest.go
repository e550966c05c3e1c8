// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"evalhub/internal/platform/config"
	"evalhub/internal/platform/db"
	"evalhub/internal/platform/querier"
)

// NewSQLite returns a freshly migrated SQLite database in a temp dir. It is
// closed when the test ends.
func NewSQLite(t testing.TB) querier.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "evalhub.db")
	require.NoError(t, db.MigrateSQLite(ctx, path))

	sqlDB, err := db.OpenSQLite(ctx, path)
	require.NoError(t, err)
	store := querier.NewSQL(sqlDB)
	t.Cleanup(store.Close)
	return store
}

// NewPostgres migrates a fresh schema in the database named by
// TEST_DATABASE_URL and drops it when the test ends. The test is skipped when
// the variable is unset.
func NewPostgres(t testing.TB) querier.DB {
	t.Helper()
	dbURL := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	schema := "evalhub_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		if err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	cfg := config.Config{DatabaseDriver: querier.DriverPostgres, DatabaseURL: withSearchPath(t, dbURL, schema)}
	require.NoError(t, db.Migrate(ctx, cfg))
	store, err := db.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func withSearchPath(t testing.TB, dsn, schema string) string {
	t.Helper()
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

const Password = "password123"

type Fixture struct {
	ManagerID       string
	ManagerEmail    string
	SupervisorID    string
	SupervisorEmail string
	EmployeeID      string
	EmployeeCode    string
	OtherEmployeeID string
	QuestionID      string
	AnswerIDs       []string
}

var fixtureTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Seed inserts a manager, one supervisor with two employees, and one active
// question with three scored answers.
func Seed(t testing.TB, store querier.DB) Fixture {
	t.Helper()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	f := Fixture{
		ManagerID:       uuid.NewString(),
		ManagerEmail:    "manager@example.com",
		SupervisorID:    uuid.NewString(),
		SupervisorEmail: "sup@example.com",
		EmployeeID:      uuid.NewString(),
		EmployeeCode:    "EMP001",
		OtherEmployeeID: uuid.NewString(),
		QuestionID:      uuid.NewString(),
	}

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := store.Exec(ctx, query, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO supervisors (id, name, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ManagerID, "Grand Manager", f.ManagerEmail, string(hash), "manager", fixtureTime)
	exec(`INSERT INTO supervisors (id, name, email, password_hash, role, manager_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.SupervisorID, "Sam Supervisor", f.SupervisorEmail, string(hash), "supervisor", f.ManagerID, fixtureTime)
	exec(`INSERT INTO employees (id, code, name, supervisor_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		f.EmployeeID, f.EmployeeCode, "Erin Employee", f.SupervisorID, fixtureTime)
	exec(`INSERT INTO employees (id, code, name, supervisor_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		f.OtherEmployeeID, "EMP002", "Owen Other", f.SupervisorID, fixtureTime)
	exec(`INSERT INTO evaluation_questions (id, question_text, is_active, order_index, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		f.QuestionID, "How would you rate the work quality?", true, 1, fixtureTime, fixtureTime)
	for i, score := range []int{100, 60, 20} {
		id := uuid.NewString()
		exec(`INSERT INTO question_answers (id, question_id, answer_text, score, order_index) VALUES ($1, $2, $3, $4, $5)`,
			id, f.QuestionID, "Answer "+strconv.Itoa(i+1), score, i+1)
		f.AnswerIDs = append(f.AnswerIDs, id)
	}
	return f
}

// OpenGate writes the gate row.
func OpenGate(t testing.TB, store querier.DB, enabled bool) {
	t.Helper()
	_, err := store.Exec(context.Background(), `
    INSERT INTO evaluation_gate (id, enabled, updated_at) VALUES (1, $1, $2)
    ON CONFLICT (id) DO UPDATE SET enabled = excluded.enabled
  `, enabled, fixtureTime)
	require.NoError(t, err)
}
