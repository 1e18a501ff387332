package settle

import (
	"math/rand"

	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

// commonScores placares típicos de NFL (múltiplos de 3 e 7)
var commonScores = []int{0, 3, 6, 7, 10, 13, 14, 17, 20, 21, 23, 24, 27, 28, 30, 31, 34, 35, 38, 41, 42, 45}

// MockScores sorteia um placar final plausível; rng nil usa a fonte global
func MockScores(rng *rand.Rand) cledger.FinalScore {
	pick := rand.Intn
	if rng != nil {
		pick = rng.Intn
	}
	return cledger.FinalScore{
		Home: commonScores[pick(len(commonScores))],
		Away: commonScores[pick(len(commonScores))],
	}
}

// Result decide o status e o valor creditado de uma aposta dado o placar final.
// won credita o payout, lost credita 0, push devolve o stake.
// Spread/total sem linha perdem.
func Result(b cledger.Bet, score cledger.FinalScore) (cledger.BetStatus, float64) {
	home, away := float64(score.Home), float64(score.Away)

	var mine, theirs float64
	switch b.BetType {
	case cledger.MLHome:
		mine, theirs = home, away
	case cledger.MLAway:
		mine, theirs = away, home
	case cledger.SpreadHome:
		if b.LineValue == nil {
			return cledger.StatusLost, 0
		}
		mine, theirs = home+*b.LineValue, away
	case cledger.SpreadAway:
		if b.LineValue == nil {
			return cledger.StatusLost, 0
		}
		mine, theirs = away+*b.LineValue, home
	case cledger.TotalOver:
		if b.LineValue == nil {
			return cledger.StatusLost, 0
		}
		mine, theirs = home+away, *b.LineValue
	case cledger.TotalUnder:
		if b.LineValue == nil {
			return cledger.StatusLost, 0
		}
		mine, theirs = *b.LineValue, home+away
	default:
		return cledger.StatusLost, 0
	}

	switch {
	case mine > theirs:
		return cledger.StatusWon, cledger.Payout(b.Stake, b.Odds)
	case mine < theirs:
		return cledger.StatusLost, 0
	}
	return cledger.StatusPush, b.Stake
}
