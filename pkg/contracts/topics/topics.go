package topics

const (
	// Bets
	BetPlaced = "bet_placed"

	// Settlement
	GameSettled = "game_settled"
)
