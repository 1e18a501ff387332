package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

const lineColumns = `ml_home, ml_away, spread_home_line, spread_home_odds, spread_away_line, spread_away_odds,
	total_over_line, total_over_odds, total_under_line, total_under_odds`

const gameColumns = `game_id, home_team_name, home_team_abbr, away_team_name, away_team_abbr,
	start_time, status, fetched_at, ` + lineColumns

// History guarda as linhas de cada snapshot publicado, por (game_id, fetched_at)
type History struct{ db *sql.DB }

func NewHistory(db *sql.DB) *History { return &History{db: db} }

// SaveSnapshot grava os jogos numa transação. Um (game_id, fetched_at) já
// gravado é ignorado, então jogos congelados não duplicam linhas.
// Retorna quantas linhas novas entraram.
func (h *History) SaveSnapshot(ctx context.Context, games []cfeed.Game) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	saved := 0
	for _, g := range games {
		bl := g.BettingLines
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lines_history (`+gameColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
			 ON CONFLICT (game_id, fetched_at) DO NOTHING`,
			g.GameID, g.HomeTeam.Name, g.HomeTeam.Abbreviation, g.AwayTeam.Name, g.AwayTeam.Abbreviation,
			g.StartTime.Time, g.Status, g.FetchedAt.Time,
			nullInt(bl.MoneyLine.Home), nullInt(bl.MoneyLine.Away),
			nullFloat(bl.Spread.Home.Line), nullInt(bl.Spread.Home.Odds),
			nullFloat(bl.Spread.Away.Line), nullInt(bl.Spread.Away.Odds),
			nullFloat(bl.Total.Over.Line), nullInt(bl.Total.Over.Odds),
			nullFloat(bl.Total.Under.Line), nullInt(bl.Total.Under.Odds))
		if err != nil {
			return 0, fmt.Errorf("save lines %s: %w", g.GameID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return saved, nil
}

// LineHistory movimentos de linha do jogo, do mais antigo ao mais recente
func (h *History) LineHistory(ctx context.Context, gameID string) ([]cfeed.LineMove, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT fetched_at, status, `+lineColumns+` FROM lines_history WHERE game_id=$1 ORDER BY fetched_at ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := []cfeed.LineMove{}
	for rows.Next() {
		var (
			m  cfeed.LineMove
			at time.Time
			ln lineCols
		)
		if err := rows.Scan(append([]any{&at, &m.Status}, ln.dest()...)...); err != nil {
			return nil, err
		}
		m.FetchedAt = cfeed.Timestamp{Time: at}
		m.BettingLines = ln.lines()
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// Games snapshots gravados a partir de since (zero = todos), mais recentes primeiro
func (h *History) Games(ctx context.Context, since time.Time, limit int) ([]cfeed.Game, error) {
	where, args := "", []any{}
	if !since.IsZero() {
		where = ` WHERE fetched_at >= $1`
		args = append(args, since)
	}
	q := `SELECT ` + gameColumns + ` FROM lines_history` + where +
		` ORDER BY fetched_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	rows, err := h.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := []cfeed.Game{}
	for rows.Next() {
		var (
			g                cfeed.Game
			start, fetchedAt time.Time
			ln               lineCols
		)
		dest := []any{&g.GameID, &g.HomeTeam.Name, &g.HomeTeam.Abbreviation, &g.AwayTeam.Name, &g.AwayTeam.Abbreviation,
			&start, &g.Status, &fetchedAt}
		if err := rows.Scan(append(dest, ln.dest()...)...); err != nil {
			return nil, err
		}
		g.StartTime = cfeed.Timestamp{Time: start}
		g.FetchedAt = cfeed.Timestamp{Time: fetchedAt}
		g.BettingLines = ln.lines()
		games = append(games, g)
	}
	return games, rows.Err()
}

// GameIDs ids distintos já gravados, em ordem alfabética
func (h *History) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT game_id FROM lines_history ORDER BY game_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// lineCols colunas anuláveis das linhas, na ordem de lineColumns
type lineCols struct {
	mlHome, mlAway                 sql.NullInt64
	spreadHomeLine, spreadAwayLine sql.NullFloat64
	spreadHomeOdds, spreadAwayOdds sql.NullInt64
	overLine, underLine            sql.NullFloat64
	overOdds, underOdds            sql.NullInt64
}

func (l *lineCols) dest() []any {
	return []any{&l.mlHome, &l.mlAway, &l.spreadHomeLine, &l.spreadHomeOdds, &l.spreadAwayLine, &l.spreadAwayOdds,
		&l.overLine, &l.overOdds, &l.underLine, &l.underOdds}
}

func (l *lineCols) lines() cfeed.BettingLines {
	return cfeed.BettingLines{
		MoneyLine: cfeed.MoneyLine{Home: intPtr(l.mlHome), Away: intPtr(l.mlAway)},
		Spread: cfeed.Spread{
			Home: cfeed.LineOdds{Line: floatPtr(l.spreadHomeLine), Odds: intPtr(l.spreadHomeOdds)},
			Away: cfeed.LineOdds{Line: floatPtr(l.spreadAwayLine), Odds: intPtr(l.spreadAwayOdds)},
		},
		Total: cfeed.Total{
			Over:  cfeed.LineOdds{Line: floatPtr(l.overLine), Odds: intPtr(l.overOdds)},
			Under: cfeed.LineOdds{Line: floatPtr(l.underLine), Odds: intPtr(l.underOdds)},
		},
	}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
