package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/client/bankroll"
	"github.com/radieske/live-odds-betting/internal/client/betslip"
	"github.com/radieske/live-odds-betting/internal/client/feed"
	"github.com/radieske/live-odds-betting/internal/client/gamestate"
	"github.com/radieske/live-odds-betting/internal/client/ledger"
	"github.com/radieske/live-odds-betting/internal/client/settlement"
	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

type Config struct {
	FeedURL           string
	LedgerURL         string
	LedgerTimeout     time.Duration
	LedgerRatePerSec  float64
	Feed              feed.Options
	ReconcileSchedule string // cron; vazio desliga
}

// Hooks de métricas; qualquer um pode ser nil
type Hooks struct {
	OnFeedState          func(feed.State)
	OnFrame              func(msgType string)
	OnMalformed          func()
	OnReconnectScheduled func(time.Duration)
	OnRefreshError       func(op string)
	OnStaleBankroll      func()
	OnBetPlaced          func()
	OnBetRejected        func(reason string)
	OnSettled            func(bets int)
	OnSettleFailed       func()
}

// Session é o objeto de contexto do cliente: dono do feed, do gamestate, do cache
// de bankroll/apostas, do bet slip e da liquidação. Os containers internos não
// são expostos; só as operações abaixo.
type Session struct {
	log *zap.Logger

	games    *gamestate.Store
	conn     *feed.Connector
	cache    *bankroll.Cache
	engine   *betslip.Engine
	settler  *settlement.Trigger
	cron     *cron.Cron
	schedule string
}

func New(cfg Config, hooks Hooks, log *zap.Logger) (*Session, error) {
	games := gamestate.NewStore()
	client := ledger.New(cfg.LedgerURL, cfg.LedgerTimeout, cfg.LedgerRatePerSec)
	return newSession(cfg, hooks, games, client, log)
}

// ledgerAPI junta tudo o que a sessão usa do ledger remoto
type ledgerAPI interface {
	bankroll.Ledger
	betslip.Placer
	settlement.Settler
}

func newSession(cfg Config, hooks Hooks, games *gamestate.Store, l ledgerAPI, log *zap.Logger) (*Session, error) {
	s := &Session{log: log, games: games, schedule: cfg.ReconcileSchedule}

	s.conn = feed.NewConnector(cfg.FeedURL, games, log.Named("feed"), cfg.Feed)
	s.conn.OnStateChange = hooks.OnFeedState
	s.conn.OnFrame = hooks.OnFrame
	s.conn.OnMalformed = hooks.OnMalformed
	s.conn.OnReconnectScheduled = hooks.OnReconnectScheduled

	s.cache = bankroll.NewCache(l, log.Named("bankroll"))
	s.cache.OnRefreshError = hooks.OnRefreshError
	s.cache.OnStaleBankroll = hooks.OnStaleBankroll

	s.engine = betslip.NewEngine(games, s.cache, l, log.Named("betslip"))
	s.engine.OnPlaced = hooks.OnBetPlaced
	s.engine.OnRejected = hooks.OnBetRejected

	s.settler = settlement.NewTrigger(l, s.cache, s.engine, log.Named("settlement"))
	s.settler.OnSettled = hooks.OnSettled
	s.settler.OnFailed = hooks.OnSettleFailed

	if s.schedule != "" {
		if _, err := cron.ParseStandard(s.schedule); err != nil {
			return nil, fmt.Errorf("reconcile schedule %q: %w", s.schedule, err)
		}
	}
	return s, nil
}

// Run conecta ao feed, faz a carga inicial do bankroll/apostas e agenda a
// reconciliação periódica. Bloqueia até ctx ser cancelado.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.conn.Run(ctx)
	}()

	s.Reconcile(ctx)

	if s.schedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.schedule, func() { s.Reconcile(ctx) }); err != nil {
			wg.Wait()
			return fmt.Errorf("schedule reconcile: %w", err)
		}
		s.cron.Start()
		s.log.Info("reconcile scheduled", zap.String("schedule", s.schedule))
	}

	<-ctx.Done()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	wg.Wait()
	return nil
}

// Reconcile relê bankroll e histórico do ledger
func (s *Session) Reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.cache.RefreshBankroll(ctx)
	s.cache.RefreshBets(ctx, cledger.BetFilter{})
}

// Feed

func (s *Session) Games() []cfeed.Game { return s.games.Games() }
func (s *Session) Game(id string) (cfeed.Game, bool) { return s.games.Game(id) }
func (s *Session) FeedStatus() feed.Status { return s.conn.Status() }
func (s *Session) Connected() bool { return s.conn.Connected() }
func (s *Session) LastUpdated() *time.Time { return s.conn.LastUpdated() }
func (s *Session) LastError() string { return s.conn.LastError() }
func (s *Session) Reconnect() { s.conn.Reconnect() }

// Bankroll e histórico

func (s *Session) Bankroll() (cledger.Bankroll, bool) { return s.cache.Bankroll() }
func (s *Session) Bets() []cledger.Bet { return s.cache.Bets() }
func (s *Session) PendingGameIDs() map[string]struct{} {
	return s.cache.PendingGameIDs()
}
func (s *Session) RefreshBankroll(ctx context.Context) { s.cache.RefreshBankroll(ctx) }
func (s *Session) RefreshBets(ctx context.Context, f cledger.BetFilter) {
	s.cache.RefreshBets(ctx, f)
}

// Bet slip

func (s *Session) OpenBetSlip(sel betslip.Selection) error { return s.engine.OpenBetSlip(sel) }
func (s *Session) OpenFromGame(gameID string, t cledger.BetType) error {
	return s.engine.OpenFromGame(gameID, t)
}
func (s *Session) SetStake(amount float64) error { return s.engine.SetStake(amount) }
func (s *Session) CloseBetSlip() { s.engine.CloseBetSlip() }
func (s *Session) PlaceBet(ctx context.Context) error { return s.engine.PlaceBet(ctx) }
func (s *Session) BetSlip() betslip.Snapshot { return s.engine.Snapshot() }
func (s *Session) GameOpen(gameID string) bool { return s.engine.GameOpen(gameID) }

// Liquidação

func (s *Session) SettleGame(ctx context.Context, gameID string) (settlement.Result, error) {
	return s.settler.SettleGame(ctx, gameID)
}
func (s *Session) SettlementResult(gameID string) (settlement.Result, bool) {
	return s.settler.Result(gameID)
}
func (s *Session) Settleable(gameID string) bool { return s.settler.Settleable(gameID) }
