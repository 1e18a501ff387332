package events

import "time"

// Evento publicado pelo ledger-server após o commit de uma aposta.
type BetPlaced struct {
	EventID      string    `json:"event_id"`
	BetID        int64     `json:"bet_id"`
	GameID       string    `json:"game_id"`
	BetType      string    `json:"bet_type"`
	Selection    string    `json:"selection"`
	Stake        float64   `json:"stake"`
	Odds         int       `json:"odds"`
	BalanceAfter float64   `json:"balance_after"`
	Ts           time.Time `json:"ts"`
}
