package bankroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/client/bankroll"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

type fakeLedger struct {
	bankroll   cledger.Bankroll
	bets       []cledger.Bet
	err        error
	lastFilter cledger.BetFilter
}

func (f *fakeLedger) GetBankroll(context.Context) (cledger.Bankroll, error) {
	return f.bankroll, f.err
}

func (f *fakeLedger) ListBets(_ context.Context, filter cledger.BetFilter) (cledger.BetsResponse, error) {
	f.lastFilter = filter
	if f.err != nil {
		return cledger.BetsResponse{}, f.err
	}
	return cledger.BetsResponse{Bets: f.bets, TotalCount: len(f.bets), Limit: filter.Limit}, nil
}

func at(sec int) cledger.Timestamp {
	return cledger.Timestamp{Time: time.Date(2025, 1, 5, 18, 0, sec, 0, time.UTC)}
}

func bet(id int64, game string, status cledger.BetStatus) cledger.Bet {
	return cledger.Bet{ID: id, GameID: game, Status: status, Stake: 10}
}

func TestRefreshBankroll(t *testing.T) {
	fl := &fakeLedger{bankroll: cledger.Bankroll{Balance: 1000, UpdatedAt: at(0)}}
	c := bankroll.NewCache(fl, zap.NewNop())

	_, loaded := c.Bankroll()
	assert.False(t, loaded)

	c.RefreshBankroll(context.Background())
	br, loaded := c.Bankroll()
	assert.True(t, loaded)
	assert.InDelta(t, 1000.0, br.Balance, 0.001)
}

func TestRefresh_FailureIsSilentButReported(t *testing.T) {
	fl := &fakeLedger{bankroll: cledger.Bankroll{Balance: 700}, bets: []cledger.Bet{bet(1, "G1", cledger.StatusPending)}}
	c := bankroll.NewCache(fl, zap.NewNop())
	c.RefreshBankroll(context.Background())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	var ops []string
	c.OnRefreshError = func(op string) { ops = append(ops, op) }
	fl.err = errors.New("connection refused")

	c.RefreshBankroll(context.Background())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	assert.Equal(t, []string{"bankroll", "bets"}, ops)
	assert.InDelta(t, 700.0, c.Balance(), 0.001, "failed refresh keeps the previous mirror")
	assert.Len(t, c.Bets(), 1)
}

func TestRefreshBets_DefaultsLimit(t *testing.T) {
	fl := &fakeLedger{}
	c := bankroll.NewCache(fl, zap.NewNop())

	c.RefreshBets(context.Background(), cledger.BetFilter{Status: cledger.StatusPending})
	assert.Equal(t, bankroll.DefaultBetsLimit, fl.lastFilter.Limit)
	assert.Equal(t, cledger.StatusPending, fl.lastFilter.Status)

	c.RefreshBets(context.Background(), cledger.BetFilter{Limit: 10, Offset: 20})
	assert.Equal(t, 10, fl.lastFilter.Limit)
	assert.Equal(t, 20, fl.lastFilter.Offset)
}

func TestRefreshBets_FullReplace(t *testing.T) {
	fl := &fakeLedger{bets: []cledger.Bet{bet(1, "G1", cledger.StatusPending), bet(2, "G2", cledger.StatusPending)}}
	c := bankroll.NewCache(fl, zap.NewNop())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	fl.bets = []cledger.Bet{bet(3, "G3", cledger.StatusPending)}
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	got := c.Bets()
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, 1, c.TotalCount())
}

func TestApplyPlacement_ServerBalanceAndPrepend(t *testing.T) {
	fl := &fakeLedger{
		bankroll: cledger.Bankroll{Balance: 1000, UpdatedAt: at(0)},
		bets:     []cledger.Bet{bet(1, "G1", cledger.StatusPending)},
	}
	c := bankroll.NewCache(fl, zap.NewNop())
	c.RefreshBankroll(context.Background())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	// saldo do servidor não precisa bater com 1000-25
	c.ApplyPlacement(bet(2, "G2", cledger.StatusPending), cledger.Bankroll{Balance: 971.37, UpdatedAt: at(1)})

	assert.Equal(t, 971.37, c.Balance())
	got := c.Bets()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, 2, c.TotalCount())
}

func TestSetBankroll_DiscardsStale(t *testing.T) {
	c := bankroll.NewCache(&fakeLedger{}, zap.NewNop())
	stale := 0
	c.OnStaleBankroll = func() { stale++ }

	assert.True(t, c.SetBankroll(cledger.Bankroll{Balance: 900, Version: 10, UpdatedAt: at(10)}))
	assert.False(t, c.SetBankroll(cledger.Bankroll{Balance: 950, Version: 9, UpdatedAt: at(20)}))
	assert.InDelta(t, 900.0, c.Balance(), 0.001)
	assert.Equal(t, 1, stale)

	assert.True(t, c.SetBankroll(cledger.Bankroll{Balance: 880, Version: 10}), "equal version is accepted")
	assert.True(t, c.SetBankroll(cledger.Bankroll{Balance: 870}), "missing version is accepted")
	assert.InDelta(t, 870.0, c.Balance(), 0.001)
}

func TestSetBankroll_OrdersByVersionNotTimestamp(t *testing.T) {
	// placement começou antes do settle mas esperou o lock: commit mais novo,
	// updated_at mais antigo
	fl := &fakeLedger{bankroll: cledger.Bankroll{Balance: 1050, Version: 3, UpdatedAt: at(1)}}
	c := bankroll.NewCache(fl, zap.NewNop())
	stale := 0
	c.OnStaleBankroll = func() { stale++ }

	c.ApplySettled(nil, cledger.Bankroll{Balance: 1100, Version: 2, UpdatedAt: at(2)})
	c.ApplyPlacement(bet(7, "G1", cledger.StatusPending), cledger.Bankroll{Balance: 1050, Version: 3, UpdatedAt: at(1)})
	assert.InDelta(t, 1050.0, c.Balance(), 0.001)

	c.RefreshBankroll(context.Background())
	c.RefreshBankroll(context.Background())
	br, _ := c.Bankroll()
	assert.InDelta(t, 1050.0, br.Balance, 0.001, "refresh mirrors the ledger row")
	assert.Equal(t, int64(3), br.Version)
	assert.Zero(t, stale)
}

func TestRefreshBankroll_ConvergesToLedgerRow(t *testing.T) {
	fl := &fakeLedger{}
	c := bankroll.NewCache(fl, zap.NewNop())

	c.ApplyPlacement(bet(1, "G1", cledger.StatusPending), cledger.Bankroll{Balance: 975, Version: 5, UpdatedAt: at(9)})
	// GET lento que saiu antes da aposta
	assert.False(t, c.SetBankroll(cledger.Bankroll{Balance: 1000, Version: 4, UpdatedAt: at(30)}))
	assert.InDelta(t, 975.0, c.Balance(), 0.001)

	for _, row := range []cledger.Bankroll{
		{Balance: 940, Version: 6, UpdatedAt: at(3)},
		{Balance: 1120.5, Version: 7, UpdatedAt: at(1)},
	} {
		fl.bankroll = row
		c.RefreshBankroll(context.Background())
		assert.InDelta(t, row.Balance, c.Balance(), 0.001)
	}
}

func TestTerminalBetNeverReverts(t *testing.T) {
	won := bet(1, "G1", cledger.StatusWon)
	payout := 19.09
	won.ResultAmount = &payout

	fl := &fakeLedger{bets: []cledger.Bet{won}}
	c := bankroll.NewCache(fl, zap.NewNop())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	fl.bets = []cledger.Bet{bet(1, "G1", cledger.StatusPending)}
	c.RefreshBets(context.Background(), cledger.BetFilter{})
	assert.Equal(t, cledger.StatusWon, c.Bets()[0].Status)

	fl.bets = []cledger.Bet{bet(1, "G1", cledger.StatusLost)}
	c.RefreshBets(context.Background(), cledger.BetFilter{})
	assert.Equal(t, cledger.StatusWon, c.Bets()[0].Status)

	c.ApplySettled([]cledger.Bet{bet(1, "G1", cledger.StatusPush)}, cledger.Bankroll{Balance: 1})
	assert.Equal(t, cledger.StatusWon, c.Bets()[0].Status)
	require.NotNil(t, c.Bets()[0].ResultAmount)
}

func TestApplySettled_FlipsPendingPredicate(t *testing.T) {
	fl := &fakeLedger{bets: []cledger.Bet{
		bet(1, "G1", cledger.StatusPending),
		bet(2, "G1", cledger.StatusPending),
		bet(3, "G2", cledger.StatusPending),
	}}
	c := bankroll.NewCache(fl, zap.NewNop())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	assert.True(t, c.HasPending("G1"))
	assert.Len(t, c.PendingGameIDs(), 2)

	c.ApplySettled([]cledger.Bet{
		bet(1, "G1", cledger.StatusWon),
		bet(2, "G1", cledger.StatusPush),
	}, cledger.Bankroll{Balance: 1040})

	assert.False(t, c.HasPending("G1"))
	assert.True(t, c.HasPending("G2"))
	assert.InDelta(t, 1040.0, c.Balance(), 0.001)
}

func TestBets_ReturnsCopy(t *testing.T) {
	fl := &fakeLedger{bets: []cledger.Bet{bet(1, "G1", cledger.StatusPending)}}
	c := bankroll.NewCache(fl, zap.NewNop())
	c.RefreshBets(context.Background(), cledger.BetFilter{})

	got := c.Bets()
	got[0].Status = cledger.StatusLost
	assert.Equal(t, cledger.StatusPending, c.Bets()[0].Status)
}
