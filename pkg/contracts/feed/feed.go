package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Tipos de frame trocados no canal /ws
const (
	TypeConnectionEstablished = "connection_established"
	TypeGamesUpdate           = "games_update"
	TypeError                 = "error"
	TypePong                  = "pong"
	TypePing                  = "ping"
)

// Status de um jogo
const (
	StatusUpcoming = "upcoming"
	StatusLive     = "live"
	StatusFinal    = "final"
)

type Team struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// MoneyLine: odds americanas; nil = não ofertado
type MoneyLine struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// LineOdds representa um lado de spread ou total (linha + odds)
type LineOdds struct {
	Line *float64 `json:"line"`
	Odds *int     `json:"odds"`
}

type Spread struct {
	Home LineOdds `json:"home"`
	Away LineOdds `json:"away"`
}

type Total struct {
	Over  LineOdds `json:"over"`
	Under LineOdds `json:"under"`
}

type BettingLines struct {
	MoneyLine MoneyLine `json:"money_line"`
	Spread    Spread    `json:"spread"`
	Total     Total     `json:"total"`
}

// Game é o snapshot de um jogo como publicado pelo feed.
// Sempre substituído por inteiro, nunca mesclado campo a campo.
type Game struct {
	GameID       string       `json:"game_id"`
	HomeTeam     Team         `json:"home_team"`
	AwayTeam     Team         `json:"away_team"`
	StartTime    Timestamp    `json:"start_time"`
	Status       string       `json:"status"`
	BettingLines BettingLines `json:"betting_lines"`
	FetchedAt    Timestamp    `json:"fetched_at"`
}

// Matchup retorna "AWAY @ HOME"
func (g Game) Matchup() string {
	return g.AwayTeam.Abbreviation + " @ " + g.HomeTeam.Abbreviation
}

// LineMove linhas de um jogo num instante do histórico
type LineMove struct {
	FetchedAt    Timestamp    `json:"fetched_at"`
	Status       string       `json:"status"`
	BettingLines BettingLines `json:"betting_lines"`
}

// Message é o envelope de todos os frames servidor→cliente e cliente→servidor.
// Games nil significa campo ausente; um array vazio substitui o snapshot por vazio.
type Message struct {
	Type        string     `json:"type"`
	Timestamp   *Timestamp `json:"timestamp,omitempty"`
	Games       []Game     `json:"games,omitempty"`
	GameCount   *int       `json:"game_count,omitempty"`
	LastUpdated *Timestamp `json:"last_updated,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// MarshalJSON mantém "games": [] quando o snapshot está vazio mas presente.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	if m.Games != nil && len(m.Games) == 0 {
		return json.Marshal(struct {
			alias
			Games []Game `json:"games"`
		}{alias: alias(m), Games: m.Games})
	}
	return json.Marshal(alias(m))
}

// Timestamp aceita ISO8601 com ou sem fuso; sem fuso é lido como UTC.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func NewTimestamp(t time.Time) *Timestamp { return &Timestamp{Time: t} }

// ParseTimestamp lê um ISO8601 nos mesmos formatos aceitos no JSON
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unsupported format %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
