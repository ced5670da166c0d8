package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assignmentCfg = UpsertConfig{
	Table:        "assignments",
	Columns:      []string{"vehicle_id", "product_id", "quantity"},
	ConflictKeys: []string{"vehicle_id", "product_id"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, assignmentCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "assignments",
		ConflictKeys: []string{"vehicle_id"},
	}, [][]any{{"Movil 1", "A", 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "assignments",
		Columns: []string{"vehicle_id", "product_id"},
	}, [][]any{{"Movil 1", "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"Movil 1", "2-7-11", int64(7)},
		{"Movil 1", "1-2-16", int64(3)},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_assignments"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_assignments"}, assignmentCfg.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "assignments"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, assignmentCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_assignments"}, assignmentCfg.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, assignmentCfg, [][]any{{"Movil 1", "A", int64(1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into staging table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "assignments" ("vehicle_id", "product_id", "quantity") SELECT "vehicle_id", "product_id", "quantity" FROM "_stage_assignments" ON CONFLICT ("vehicle_id", "product_id") DO UPDATE SET "quantity" = EXCLUDED."quantity"`,
		upsertSQL(assignmentCfg))

	acc := assignmentCfg
	acc.Accumulate = true
	assert.Contains(t, upsertSQL(acc), `"quantity" = "assignments"."quantity" + EXCLUDED."quantity"`)

	keysOnly := UpsertConfig{Table: "vehicles", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	assert.Contains(t, upsertSQL(keysOnly), "DO NOTHING")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"assignments", `"assignments"`},
		{"ledger.assignments", `"ledger"."assignments"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"vehicle_id", "product_id", "quantity"`, quoteAndJoin(assignmentCfg.Columns))
}
