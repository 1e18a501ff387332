package settlement

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/client/bankroll"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

// Settler é a operação remota de liquidação
type Settler interface {
	SettleGame(ctx context.Context, gameID string) (cledger.SettleGameResponse, error)
}

// Closer recebe o aviso de jogo liquidado (o betslip.Engine fecha o jogo para apostas)
type Closer interface {
	MarkSettled(gameID string)
}

// Result guardado para exibição após um settle bem-sucedido
type Result struct {
	GameID      string
	FinalScore  cledger.FinalScore
	SettledBets int
}

type Trigger struct {
	ledger Settler
	cache  *bankroll.Cache
	closer Closer
	log    *zap.Logger

	OnSettled func(bets int)
	OnFailed  func()

	mu      sync.RWMutex
	results map[string]Result
}

func NewTrigger(l Settler, cache *bankroll.Cache, closer Closer, log *zap.Logger) *Trigger {
	return &Trigger{
		ledger:  l,
		cache:   cache,
		closer:  closer,
		log:     log,
		results: make(map[string]Result),
	}
}

// SettleGame liquida o jogo no ledger. Em caso de falha nada muda localmente
// e o chamador pode tentar de novo.
func (t *Trigger) SettleGame(ctx context.Context, gameID string) (Result, error) {
	resp, err := t.ledger.SettleGame(ctx, gameID)
	if err != nil {
		t.log.Warn("settle game failed", zap.String("game_id", gameID), zap.Error(err))
		if t.OnFailed != nil {
			t.OnFailed()
		}
		return Result{}, fmt.Errorf("settle game %s: %w", gameID, err)
	}

	res := Result{GameID: gameID, FinalScore: resp.FinalScore, SettledBets: len(resp.SettledBets)}
	t.mu.Lock()
	t.results[gameID] = res
	t.mu.Unlock()

	if t.closer != nil {
		t.closer.MarkSettled(gameID)
	}
	t.cache.ApplySettled(resp.SettledBets, resp.Bankroll)

	t.log.Info("game settled",
		zap.String("game_id", gameID),
		zap.Int("home", resp.FinalScore.Home),
		zap.Int("away", resp.FinalScore.Away),
		zap.Int("settled_bets", len(resp.SettledBets)),
		zap.Float64("balance", resp.Bankroll.Balance))
	if t.OnSettled != nil {
		t.OnSettled(len(resp.SettledBets))
	}

	// absorve apostas liquidadas como efeito colateral
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.cache.RefreshBankroll(ctx)
	}()
	go func() {
		defer wg.Done()
		t.cache.RefreshBets(ctx, cledger.BetFilter{})
	}()
	wg.Wait()

	return res, nil
}

// Result retorna o placar final guardado para o jogo, se houver
func (t *Trigger) Result(gameID string) (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.results[gameID]
	return r, ok
}

// Settleable é o predicado "jogo tem aposta pending" usado para oferecer o settle
func (t *Trigger) Settleable(gameID string) bool {
	return t.cache.HasPending(gameID)
}
