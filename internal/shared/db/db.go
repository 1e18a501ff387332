package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Schema do ledger: uma única linha de bankroll (id=1), o histórico de apostas
// e as linhas de cada snapshot publicado pelo feed
const Schema = `
CREATE TABLE IF NOT EXISTS bankroll (
    id         INTEGER PRIMARY KEY,
    balance    NUMERIC(12,2) NOT NULL,
    version    BIGINT        NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bets (
    id               BIGSERIAL PRIMARY KEY,
    game_id          TEXT          NOT NULL,
    bet_type         TEXT          NOT NULL,
    selection        TEXT          NOT NULL,
    stake            NUMERIC(12,2) NOT NULL,
    odds             INTEGER       NOT NULL,
    potential_payout NUMERIC(12,2) NOT NULL,
    status           TEXT          NOT NULL DEFAULT 'pending',
    result_amount    NUMERIC(12,2),
    home_score       INTEGER,
    away_score       INTEGER,
    placed_at        TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
    settled_at       TIMESTAMPTZ,
    home_team_abbr   TEXT          NOT NULL,
    away_team_abbr   TEXT          NOT NULL,
    line_value       DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_bets_game_status ON bets(game_id, status);
CREATE INDEX IF NOT EXISTS idx_bets_placed_at   ON bets(placed_at DESC);

CREATE TABLE IF NOT EXISTS lines_history (
    id               BIGSERIAL PRIMARY KEY,
    game_id          TEXT             NOT NULL,
    home_team_name   TEXT             NOT NULL,
    home_team_abbr   TEXT             NOT NULL,
    away_team_name   TEXT             NOT NULL,
    away_team_abbr   TEXT             NOT NULL,
    start_time       TIMESTAMPTZ      NOT NULL,
    status           TEXT             NOT NULL,
    fetched_at       TIMESTAMPTZ      NOT NULL,
    ml_home          INTEGER,
    ml_away          INTEGER,
    spread_home_line DOUBLE PRECISION,
    spread_home_odds INTEGER,
    spread_away_line DOUBLE PRECISION,
    spread_away_odds INTEGER,
    total_over_line  DOUBLE PRECISION,
    total_over_odds  INTEGER,
    total_under_line DOUBLE PRECISION,
    total_under_odds INTEGER,
    UNIQUE (game_id, fetched_at)
);

CREATE INDEX IF NOT EXISTS idx_lines_history_fetched_at ON lines_history(fetched_at DESC);
`

func ConnectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate aplica o schema e garante a linha de bankroll com o saldo inicial
func Migrate(ctx context.Context, db *sql.DB, startingBalance float64) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO bankroll (id, balance) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		startingBalance); err != nil {
		return fmt.Errorf("seed bankroll: %w", err)
	}
	return nil
}
