package events

import "time"

// SettledBet resumo de uma aposta liquidada
type SettledBet struct {
	BetID        int64   `json:"bet_id"`
	Status       string  `json:"status"` // won | lost | push
	ResultAmount float64 `json:"result_amount"`
}

// Evento publicado após a liquidação de um jogo
type GameSettled struct {
	EventID      string       `json:"event_id"`
	GameID       string       `json:"game_id"`
	HomeScore    int          `json:"home_score"`
	AwayScore    int          `json:"away_score"`
	Bets         []SettledBet `json:"bets"`
	BalanceAfter float64      `json:"balance_after"`
	Ts           time.Time    `json:"ts"`
}
