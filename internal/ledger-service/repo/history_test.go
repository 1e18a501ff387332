package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-betting/internal/ledger-service/repo"
	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

var lineCols = []string{"ml_home", "ml_away", "spread_home_line", "spread_home_odds", "spread_away_line", "spread_away_odds",
	"total_over_line", "total_over_odds", "total_under_line", "total_under_odds"}

func newHistory(t *testing.T) (*repo.History, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repo.NewHistory(db), mock
}

func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }

func liveGame(id string, fetched time.Time) cfeed.Game {
	return cfeed.Game{
		GameID:    id,
		HomeTeam:  cfeed.Team{Name: "Kansas City Chiefs", Abbreviation: "KC"},
		AwayTeam:  cfeed.Team{Name: "Buffalo Bills", Abbreviation: "BUF"},
		StartTime: cfeed.Timestamp{Time: fetched.Add(-30 * time.Minute)},
		Status:    cfeed.StatusLive,
		FetchedAt: cfeed.Timestamp{Time: fetched},
		BettingLines: cfeed.BettingLines{
			MoneyLine: cfeed.MoneyLine{Home: ip(-175), Away: ip(150)},
			Spread: cfeed.Spread{
				Home: cfeed.LineOdds{Line: fp(-3.5), Odds: ip(-110)},
				Away: cfeed.LineOdds{Line: fp(3.5), Odds: ip(-110)},
			},
		},
	}
}

func TestSaveSnapshotSkipsRecordedRows(t *testing.T) {
	h, mock := newHistory(t)
	at := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO lines_history")).
		WithArgs("NFL_KC_BUF", "Kansas City Chiefs", "KC", "Buffalo Bills", "BUF", sqlmock.AnyArg(), "live", at,
			-175, 150, -3.5, -110, 3.5, -110, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// segundo jogo já tinha linha neste fetched_at
	mock.ExpectExec(q("ON CONFLICT (game_id, fetched_at) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := h.SaveSnapshot(context.Background(), []cfeed.Game{liveGame("NFL_KC_BUF", at), liveGame("NFL_PHI_DAL", at)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshotFailureRollsBack(t *testing.T) {
	h, mock := newHistory(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO lines_history")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := h.SaveSnapshot(context.Background(), []cfeed.Game{liveGame("NFL_KC_BUF", time.Now())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save lines NFL_KC_BUF")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshotEmptyIsNoop(t *testing.T) {
	h, mock := newHistory(t)

	n, err := h.SaveSnapshot(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLineHistoryOldestFirst(t *testing.T) {
	h, mock := newHistory(t)
	t1 := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Second)

	mock.ExpectQuery(q("FROM lines_history WHERE game_id=$1 ORDER BY fetched_at ASC")).
		WithArgs("NFL_KC_BUF").
		WillReturnRows(sqlmock.NewRows(append([]string{"fetched_at", "status"}, lineCols...)).
			AddRow(t1, "live", -175, 150, -3.5, -110, 3.5, -110, 47.5, -110, 47.5, -110).
			AddRow(t2, "final", -180, 155, nil, nil, nil, nil, nil, nil, nil, nil))

	moves, err := h.LineHistory(context.Background(), "NFL_KC_BUF")
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.True(t, moves[0].FetchedAt.Equal(t1))
	require.NotNil(t, moves[0].BettingLines.Total.Over.Line)
	assert.Equal(t, 47.5, *moves[0].BettingLines.Total.Over.Line)
	assert.Equal(t, "final", moves[1].Status)
	require.NotNil(t, moves[1].BettingLines.MoneyLine.Home)
	assert.Equal(t, -180, *moves[1].BettingLines.MoneyLine.Home)
	assert.Nil(t, moves[1].BettingLines.Spread.Home.Line)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryGamesSinceAndLimit(t *testing.T) {
	h, mock := newHistory(t)
	since := time.Date(2026, 9, 13, 16, 0, 0, 0, time.UTC)
	at := since.Add(time.Hour)
	cols := append([]string{"game_id", "home_team_name", "home_team_abbr", "away_team_name", "away_team_abbr",
		"start_time", "status", "fetched_at"}, lineCols...)

	mock.ExpectQuery(q("FROM lines_history WHERE fetched_at >= $1 ORDER BY fetched_at DESC, id DESC LIMIT $2")).
		WithArgs(since, 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("NFL_KC_BUF", "Kansas City Chiefs", "KC", "Buffalo Bills", "BUF", since, "live", at,
				-175, 150, -3.5, -110, 3.5, -110, 47.5, -110, 47.5, -105))

	games, err := h.Games(context.Background(), since, 20)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "KC", games[0].HomeTeam.Abbreviation)
	assert.True(t, games[0].FetchedAt.Equal(at))
	require.NotNil(t, games[0].BettingLines.Total.Under.Odds)
	assert.Equal(t, -105, *games[0].BettingLines.Total.Under.Odds)

	mock.ExpectQuery(q("FROM lines_history ORDER BY fetched_at DESC, id DESC LIMIT $1")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(cols))
	games, err = h.Games(context.Background(), time.Time{}, 50)
	require.NoError(t, err)
	assert.NotNil(t, games)
	assert.Empty(t, games)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryGameIDs(t *testing.T) {
	h, mock := newHistory(t)
	mock.ExpectQuery(q("SELECT DISTINCT game_id FROM lines_history ORDER BY game_id")).
		WillReturnRows(sqlmock.NewRows([]string{"game_id"}).AddRow("NFL_KC_BUF").AddRow("NFL_SF_SEA"))

	ids, err := h.GameIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"NFL_KC_BUF", "NFL_SF_SEA"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
