package db_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-betting/internal/shared/db"
)

func TestMigrateAppliesSchemaAndSeedsBankroll(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS bankroll")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bankroll (id, balance) VALUES (1, $1) ON CONFLICT (id) DO NOTHING")).
		WithArgs(10000.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, db.Migrate(context.Background(), conn, 10000))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSchemaFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = db.Migrate(context.Background(), conn, 10000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply schema")
}

func TestSchemaKeepsOneLinesRowPerFetch(t *testing.T) {
	assert.Contains(t, db.Schema, "CREATE TABLE IF NOT EXISTS lines_history")
	assert.Contains(t, db.Schema, "UNIQUE (game_id, fetched_at)")
	assert.Contains(t, db.Schema, "version    BIGINT")
}
