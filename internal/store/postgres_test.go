package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fusion-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "criteria", "status", "result", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "planning", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), testCriteria("Acme"))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusPlanning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	criteriaJSON, err := json.Marshal(testCriteria("Acme"))
	require.NoError(t, err)
	resultJSON := []byte(`{"records":[],"total_found":4,"discarded":4,"phases":[]}`)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, criteria, status, result, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows(runColumns).
			AddRow("run-1", criteriaJSON, "done", &resultJSON, "", now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	assert.Equal(t, "Acme", run.Criteria.Companies[0].Name)
	require.NotNil(t, run.Result)
	assert.Equal(t, 4, run.Result.TotalFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	criteriaJSON, err := json.Marshal(testCriteria("Acme"))
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("failed", 5, 10).
		WillReturnRows(mock.NewRows(runColumns).
			AddRow("run-1", criteriaJSON, "failed", nil, "boom", now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Nil(t, runs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(mock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("scoring", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusScoring)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET result`).
		WithArgs(pgxmock.AnyArg(), "done", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "run-1", &model.RunResult{TotalFound: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, error = \$2`).
		WithArgs("failed", "no sources configured", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "no sources configured"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Phases(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO run_phases`).
		WithArgs(pgxmock.AnyArg(), "run-1", "collect", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE run_phases SET status`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	phase, err := s.CreatePhase(ctx, "run-1", "collect")
	require.NoError(t, err)
	require.NoError(t, s.CompletePhase(ctx, phase.ID, &model.PhaseResult{Name: "collect", Status: model.PhaseStatusComplete}))

	resultJSON := []byte(`{"name":"collect","status":"complete","duration_ms":42}`)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM run_phases WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(mock.NewRows([]string{"id", "run_id", "name", "status", "result", "started_at"}).
			AddRow(phase.ID, "run-1", "collect", "complete", &resultJSON, now).
			AddRow("p2", "run-1", "fuse", "running", nil, now))

	phases, err := s.ListPhases(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, phases, 2)
	require.NotNil(t, phases[0].Result)
	assert.Equal(t, int64(42), phases[0].Result.Duration)
	assert.Nil(t, phases[1].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompletePhase_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE run_phases`).
		WithArgs(string(model.PhaseStatusFailed), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompletePhase(context.Background(), "missing", &model.PhaseResult{Status: model.PhaseStatusFailed})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
