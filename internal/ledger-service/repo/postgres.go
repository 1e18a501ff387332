package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)

// FundsError carrega o saldo atual; errors.Is casa com ErrInsufficientFunds
type FundsError struct{ Balance float64 }

func (e *FundsError) Error() string        { return fmt.Sprintf("insufficient funds: balance %.2f", e.Balance) }
func (e *FundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// Resolver decide o resultado de uma aposta pending dado o placar final
type Resolver func(b cledger.Bet, score cledger.FinalScore) (cledger.BetStatus, float64)

// bankrollID única linha de bankroll do ledger
const bankrollID = 1

const betColumns = `id, game_id, bet_type, selection, stake, odds, potential_payout, status,
	result_amount, home_score, away_score, placed_at, settled_at, home_team_abbr, away_team_abbr, line_value`

// Postgres implementa o ledger de bankroll e apostas em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) GetBankroll(ctx context.Context) (cledger.Bankroll, error) {
	var br cledger.Bankroll
	var at time.Time
	err := p.db.QueryRowContext(ctx, `SELECT balance, version, updated_at FROM bankroll WHERE id=$1`, bankrollID).
		Scan(&br.Balance, &br.Version, &at)
	if err == sql.ErrNoRows {
		return br, ErrNotFound
	}
	if err != nil {
		return br, err
	}
	br.UpdatedAt = cledger.Timestamp{Time: at}
	return br, nil
}

// PlaceBet debita o stake e grava a aposta numa única transação.
// A linha de bankroll fica travada (FOR UPDATE) até o commit.
func (p *Postgres) PlaceBet(ctx context.Context, req cledger.PlaceBetRequest, payout float64) (cledger.Bet, cledger.Bankroll, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return cledger.Bet{}, cledger.Bankroll{}, err
	}
	defer tx.Rollback()

	var balance float64
	if err = tx.QueryRowContext(ctx, `SELECT balance FROM bankroll WHERE id=$1 FOR UPDATE`, bankrollID).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return cledger.Bet{}, cledger.Bankroll{}, ErrNotFound
		}
		return cledger.Bet{}, cledger.Bankroll{}, err
	}
	if req.Stake > balance {
		return cledger.Bet{}, cledger.Bankroll{}, &FundsError{Balance: balance}
	}

	var br cledger.Bankroll
	var at time.Time
	if err = tx.QueryRowContext(ctx,
		`UPDATE bankroll SET balance = balance - $1, version = version + 1, updated_at = clock_timestamp()
		 WHERE id=$2 RETURNING balance, version, updated_at`,
		req.Stake, bankrollID).Scan(&br.Balance, &br.Version, &at); err != nil {
		return cledger.Bet{}, cledger.Bankroll{}, err
	}
	br.UpdatedAt = cledger.Timestamp{Time: at}

	bet := cledger.Bet{
		GameID:          req.GameID,
		BetType:         req.BetType,
		Selection:       req.Selection,
		Stake:           req.Stake,
		Odds:            req.Odds,
		PotentialPayout: payout,
		Status:          cledger.StatusPending,
		HomeTeamAbbr:    req.HomeTeamAbbr,
		AwayTeamAbbr:    req.AwayTeamAbbr,
		LineValue:       req.LineValue,
	}
	var placedAt time.Time
	if err = tx.QueryRowContext(ctx,
		`INSERT INTO bets(game_id, bet_type, selection, stake, odds, potential_payout, status, home_team_abbr, away_team_abbr, line_value)
		 VALUES($1,$2,$3,$4,$5,$6,'pending',$7,$8,$9) RETURNING id, placed_at`,
		req.GameID, string(req.BetType), req.Selection, req.Stake, req.Odds, payout,
		req.HomeTeamAbbr, req.AwayTeamAbbr, nullFloat(req.LineValue)).Scan(&bet.ID, &placedAt); err != nil {
		return cledger.Bet{}, cledger.Bankroll{}, err
	}
	bet.PlacedAt = cledger.Timestamp{Time: placedAt}

	if err = tx.Commit(); err != nil {
		return cledger.Bet{}, cledger.Bankroll{}, err
	}
	return bet, br, nil
}

// ListBets devolve a página pedida (mais recentes primeiro) e o total do filtro
func (p *Postgres) ListBets(ctx context.Context, f cledger.BetFilter) ([]cledger.Bet, int, error) {
	where, args := "", []any{}
	if f.Status != "" {
		where = ` WHERE status=$1`
		args = append(args, string(f.Status))
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bets`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	q := `SELECT ` + betColumns + ` FROM bets` + where +
		` ORDER BY placed_at DESC, id DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := p.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bets := []cledger.Bet{}
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, 0, err
		}
		bets = append(bets, b)
	}
	return bets, total, rows.Err()
}

func (p *Postgres) GetBet(ctx context.Context, id int64) (cledger.Bet, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1`, id)
	b, err := scanBet(row)
	if err == sql.ErrNoRows {
		return cledger.Bet{}, ErrNotFound
	}
	return b, err
}

// SettleGame resolve toda aposta pending do jogo e credita o total numa única
// transação. Sem apostas pending só devolve o bankroll atual.
func (p *Postgres) SettleGame(ctx context.Context, gameID string, score cledger.FinalScore, resolve Resolver) ([]cledger.Bet, cledger.Bankroll, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, cledger.Bankroll{}, err
	}
	defer tx.Rollback()

	var balance float64
	if err = tx.QueryRowContext(ctx, `SELECT balance FROM bankroll WHERE id=$1 FOR UPDATE`, bankrollID).Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return nil, cledger.Bankroll{}, ErrNotFound
		}
		return nil, cledger.Bankroll{}, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE game_id=$1 AND status='pending' ORDER BY id FOR UPDATE`, gameID)
	if err != nil {
		return nil, cledger.Bankroll{}, err
	}
	var pending []cledger.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			rows.Close()
			return nil, cledger.Bankroll{}, err
		}
		pending = append(pending, b)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, cledger.Bankroll{}, err
	}

	settled := make([]cledger.Bet, 0, len(pending))
	credit := 0.0
	for _, b := range pending {
		status, amount := resolve(b, score)
		var settledAt time.Time
		if err = tx.QueryRowContext(ctx,
			`UPDATE bets SET status=$1, result_amount=$2, home_score=$3, away_score=$4, settled_at=NOW()
			 WHERE id=$5 RETURNING settled_at`,
			string(status), amount, score.Home, score.Away, b.ID).Scan(&settledAt); err != nil {
			return nil, cledger.Bankroll{}, err
		}
		home, away, amt := score.Home, score.Away, amount
		b.Status = status
		b.ResultAmount = &amt
		b.HomeScore = &home
		b.AwayScore = &away
		b.SettledAt = &cledger.Timestamp{Time: settledAt}
		settled = append(settled, b)
		credit += amount
	}

	br := cledger.Bankroll{Balance: balance}
	var at time.Time
	if len(settled) > 0 {
		err = tx.QueryRowContext(ctx,
			`UPDATE bankroll SET balance = balance + $1, version = version + 1, updated_at = clock_timestamp()
			 WHERE id=$2 RETURNING balance, version, updated_at`,
			cledger.Round2(credit), bankrollID).Scan(&br.Balance, &br.Version, &at)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT version, updated_at FROM bankroll WHERE id=$1`, bankrollID).Scan(&br.Version, &at)
	}
	if err != nil {
		return nil, cledger.Bankroll{}, err
	}
	br.UpdatedAt = cledger.Timestamp{Time: at}

	if err = tx.Commit(); err != nil {
		return nil, cledger.Bankroll{}, err
	}
	return settled, br, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBet(s scanner) (cledger.Bet, error) {
	var (
		b          cledger.Bet
		betType    string
		status     string
		result     sql.NullFloat64
		home, away sql.NullInt64
		placedAt   time.Time
		settledAt  sql.NullTime
		line       sql.NullFloat64
	)
	if err := s.Scan(&b.ID, &b.GameID, &betType, &b.Selection, &b.Stake, &b.Odds, &b.PotentialPayout, &status,
		&result, &home, &away, &placedAt, &settledAt, &b.HomeTeamAbbr, &b.AwayTeamAbbr, &line); err != nil {
		return cledger.Bet{}, err
	}
	b.BetType = cledger.BetType(betType)
	b.Status = cledger.BetStatus(status)
	b.PlacedAt = cledger.Timestamp{Time: placedAt}
	if result.Valid {
		v := result.Float64
		b.ResultAmount = &v
	}
	if home.Valid {
		v := int(home.Int64)
		b.HomeScore = &v
	}
	if away.Valid {
		v := int(away.Int64)
		b.AwayScore = &v
	}
	if settledAt.Valid {
		b.SettledAt = &cledger.Timestamp{Time: settledAt.Time}
	}
	if line.Valid {
		v := line.Float64
		b.LineValue = &v
	}
	return b, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
