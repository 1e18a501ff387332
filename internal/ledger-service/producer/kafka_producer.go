package producer

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	skafka "github.com/radieske/live-odds-betting/internal/shared/kafka"
	"github.com/radieske/live-odds-betting/pkg/contracts/events"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

// KafkaPublisher publica os eventos do ledger; cada tópico tem seu writer
type KafkaPublisher struct {
	BetPlaced   skafka.MessageWriter
	GameSettled skafka.MessageWriter
	now         func() time.Time
}

func NewKafkaPublisher(betPlaced, gameSettled skafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{BetPlaced: betPlaced, GameSettled: gameSettled, now: time.Now}
}

// PublishBetPlaced chave = bet_id
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, bet cledger.Bet, br cledger.Bankroll) error {
	e := events.BetPlaced{
		EventID:      uuid.NewString(),
		BetID:        bet.ID,
		GameID:       bet.GameID,
		BetType:      string(bet.BetType),
		Selection:    bet.Selection,
		Stake:        bet.Stake,
		Odds:         bet.Odds,
		BalanceAfter: br.Balance,
		Ts:           p.now().UTC(),
	}
	return skafka.WriteJSON(ctx, p.BetPlaced, strconv.FormatInt(bet.ID, 10), e)
}

// PublishGameSettled chave = game_id
func (p *KafkaPublisher) PublishGameSettled(ctx context.Context, gameID string, score cledger.FinalScore, bets []cledger.Bet, br cledger.Bankroll) error {
	e := events.GameSettled{
		EventID:      uuid.NewString(),
		GameID:       gameID,
		HomeScore:    score.Home,
		AwayScore:    score.Away,
		Bets:         make([]events.SettledBet, 0, len(bets)),
		BalanceAfter: br.Balance,
		Ts:           p.now().UTC(),
	}
	for _, b := range bets {
		sb := events.SettledBet{BetID: b.ID, Status: string(b.Status)}
		if b.ResultAmount != nil {
			sb.ResultAmount = *b.ResultAmount
		}
		e.Bets = append(e.Bets, sb)
	}
	return skafka.WriteJSON(ctx, p.GameSettled, gameID, e)
}
