package ledger

import (
	"math"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

// Timestamp aceita ISO8601 com ou sem fuso, como no feed
type Timestamp = cfeed.Timestamp

// BetType identifica o mercado e o lado apostado
type BetType string

const (
	SpreadHome BetType = "spread_home"
	SpreadAway BetType = "spread_away"
	TotalOver  BetType = "total_over"
	TotalUnder BetType = "total_under"
	MLHome     BetType = "ml_home"
	MLAway     BetType = "ml_away"
)

// Valid indica se o valor pertence ao enum do contrato
func (t BetType) Valid() bool {
	switch t {
	case SpreadHome, SpreadAway, TotalOver, TotalUnder, MLHome, MLAway:
		return true
	}
	return false
}

type BetStatus string

const (
	StatusPending BetStatus = "pending"
	StatusWon     BetStatus = "won"
	StatusLost    BetStatus = "lost"
	StatusPush    BetStatus = "push"
)

// Terminal: won/lost/push nunca voltam para pending
func (s BetStatus) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusPush
}

// Bet é o registro autoritativo devolvido pelo ledger
type Bet struct {
	ID              int64      `json:"id"`
	GameID          string     `json:"game_id"`
	BetType         BetType    `json:"bet_type"`
	Selection       string     `json:"selection"`
	Stake           float64    `json:"stake"`
	Odds            int        `json:"odds"`
	PotentialPayout float64    `json:"potential_payout"`
	Status          BetStatus  `json:"status"`
	ResultAmount    *float64   `json:"result_amount"`
	HomeScore       *int       `json:"home_score"`
	AwayScore       *int       `json:"away_score"`
	PlacedAt        Timestamp  `json:"placed_at"`
	SettledAt       *Timestamp `json:"settled_at"`
	HomeTeamAbbr    string     `json:"home_team_abbr"`
	AwayTeamAbbr    string     `json:"away_team_abbr"`
	LineValue       *float64   `json:"line_value"`
}

// Bankroll estado da conta. Version cresce a cada escrita no ledger;
// 0 significa que o servidor não informou.
type Bankroll struct {
	Balance   float64   `json:"balance"`
	Version   int64     `json:"version,omitempty"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// PlaceBetRequest corpo de POST /api/bets
type PlaceBetRequest struct {
	GameID       string   `json:"game_id"`
	BetType      BetType  `json:"bet_type"`
	Stake        float64  `json:"stake"`
	Odds         int      `json:"odds"`
	LineValue    *float64 `json:"line_value"`
	Selection    string   `json:"selection"`
	HomeTeamAbbr string   `json:"home_team_abbr"`
	AwayTeamAbbr string   `json:"away_team_abbr"`
}

type PlaceBetResponse struct {
	Bet      Bet      `json:"bet"`
	Bankroll Bankroll `json:"bankroll"`
}

type BetsResponse struct {
	Bets       []Bet `json:"bets"`
	TotalCount int   `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

type BetResponse struct {
	Bet Bet `json:"bet"`
}

type FinalScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type SettleGameResponse struct {
	GameID      string     `json:"game_id"`
	FinalScore  FinalScore `json:"final_score"`
	SettledBets []Bet      `json:"settled_bets"`
	Bankroll    Bankroll   `json:"bankroll"`
}

// ErrorResponse corpo de respostas não-2xx
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// BetFilter parâmetros de GET /api/bets; zero = omitido
type BetFilter struct {
	Status BetStatus
	Limit  int
	Offset int
}

// Limites de stake aplicados no cliente e no servidor
const (
	MinStake = 5.00
	MaxStake = 500.00
)

// Payout retorno total (stake + lucro) em odds americanas, arredondado ao
// centavo com half-up
func Payout(stake float64, odds int) float64 {
	var p float64
	switch {
	case odds > 0:
		p = stake + stake*float64(odds)/100
	case odds < 0:
		p = stake + stake*100/math.Abs(float64(odds))
	default:
		p = stake
	}
	return Round2(p)
}

// Round2 arredonda ao centavo (half-up)
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}
