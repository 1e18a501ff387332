package producer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-odds-betting/internal/ledger-service/producer"
	"github.com/radieske/live-odds-betting/pkg/contracts/events"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestPublishBetPlaced(t *testing.T) {
	placed, settled := &fakeWriter{}, &fakeWriter{}
	p := producer.NewKafkaPublisher(placed, settled)

	err := p.PublishBetPlaced(context.Background(),
		cledger.Bet{ID: 42, GameID: "g1", BetType: cledger.MLHome, Selection: "KC ML", Stake: 50, Odds: 150},
		cledger.Bankroll{Balance: 950})
	require.NoError(t, err)
	require.Len(t, placed.msgs, 1)
	assert.Empty(t, settled.msgs)
	assert.Equal(t, "42", string(placed.msgs[0].Key))

	var e events.BetPlaced
	require.NoError(t, json.Unmarshal(placed.msgs[0].Value, &e))
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, int64(42), e.BetID)
	assert.Equal(t, "ml_home", e.BetType)
	assert.Equal(t, 950.0, e.BalanceAfter)
	assert.False(t, e.Ts.IsZero())
}

func TestPublishGameSettled(t *testing.T) {
	placed, settled := &fakeWriter{}, &fakeWriter{}
	p := producer.NewKafkaPublisher(placed, settled)

	won := 250.0
	err := p.PublishGameSettled(context.Background(), "g1", cledger.FinalScore{Home: 24, Away: 17},
		[]cledger.Bet{
			{ID: 1, Status: cledger.StatusWon, ResultAmount: &won},
			{ID: 2, Status: cledger.StatusLost},
		}, cledger.Bankroll{Balance: 1250})
	require.NoError(t, err)
	require.Len(t, settled.msgs, 1)
	assert.Equal(t, "g1", string(settled.msgs[0].Key))

	var e events.GameSettled
	require.NoError(t, json.Unmarshal(settled.msgs[0].Value, &e))
	assert.Equal(t, 24, e.HomeScore)
	require.Len(t, e.Bets, 2)
	assert.Equal(t, events.SettledBet{BetID: 1, Status: "won", ResultAmount: 250}, e.Bets[0])
	assert.Equal(t, events.SettledBet{BetID: 2, Status: "lost"}, e.Bets[1])
}

func TestPublishWrapsWriterError(t *testing.T) {
	p := producer.NewKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, &fakeWriter{})

	err := p.PublishBetPlaced(context.Background(), cledger.Bet{ID: 1}, cledger.Bankroll{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write kafka message")
	assert.Contains(t, err.Error(), "broker down")
}
