package betslip

import (
	"fmt"
	"strconv"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

// Selection é a célula de odds escolhida, congelada no momento da abertura do slip
type Selection struct {
	GameID       string
	BetType      cledger.BetType
	Label        string
	Odds         int
	Line         *float64
	HomeTeamAbbr string
	AwayTeamAbbr string
}

// NewSelection monta a Selection a partir do jogo atual do feed.
// Retorna ErrOddsUnavailable se a célula não estiver ofertada.
func NewSelection(g cfeed.Game, t cledger.BetType) (Selection, error) {
	sel := Selection{
		GameID:       g.GameID,
		BetType:      t,
		HomeTeamAbbr: g.HomeTeam.Abbreviation,
		AwayTeamAbbr: g.AwayTeam.Abbreviation,
	}
	bl := g.BettingLines

	var (
		odds *int
		line *float64
	)
	switch t {
	case cledger.SpreadHome:
		odds, line = bl.Spread.Home.Odds, bl.Spread.Home.Line
	case cledger.SpreadAway:
		odds, line = bl.Spread.Away.Odds, bl.Spread.Away.Line
	case cledger.TotalOver:
		odds, line = bl.Total.Over.Odds, bl.Total.Over.Line
	case cledger.TotalUnder:
		odds, line = bl.Total.Under.Odds, bl.Total.Under.Line
	case cledger.MLHome:
		odds = bl.MoneyLine.Home
	case cledger.MLAway:
		odds = bl.MoneyLine.Away
	default:
		return Selection{}, fmt.Errorf("unknown bet type %q", t)
	}

	if odds == nil {
		return Selection{}, ErrOddsUnavailable
	}
	isLine := t != cledger.MLHome && t != cledger.MLAway
	if isLine && line == nil {
		return Selection{}, ErrOddsUnavailable
	}

	sel.Odds = *odds
	if line != nil {
		l := *line
		sel.Line = &l
	}

	switch t {
	case cledger.SpreadHome:
		sel.Label = sel.HomeTeamAbbr + " " + signedLine(*line)
	case cledger.SpreadAway:
		sel.Label = sel.AwayTeamAbbr + " " + signedLine(*line)
	case cledger.TotalOver:
		sel.Label = "Over " + plainLine(*line)
	case cledger.TotalUnder:
		sel.Label = "Under " + plainLine(*line)
	case cledger.MLHome:
		sel.Label = sel.HomeTeamAbbr + " ML"
	case cledger.MLAway:
		sel.Label = sel.AwayTeamAbbr + " ML"
	}
	return sel, nil
}

func signedLine(l float64) string {
	if l > 0 {
		return "+" + plainLine(l)
	}
	return plainLine(l)
}

func plainLine(l float64) string {
	return strconv.FormatFloat(l, 'f', -1, 64)
}
