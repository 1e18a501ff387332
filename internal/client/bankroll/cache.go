package bankroll

import (
	"context"
	"sync"

	"go.uber.org/zap"

	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

// DefaultBetsLimit página usada pelos refreshes sem filtro explícito
const DefaultBetsLimit = 100

// Ledger é o subconjunto do cliente remoto que o cache consome
type Ledger interface {
	GetBankroll(ctx context.Context) (cledger.Bankroll, error)
	ListBets(ctx context.Context, f cledger.BetFilter) (cledger.BetsResponse, error)
}

// Cache espelha bankroll e histórico de apostas do ledger.
// Toda escrita é substituição completa; o ledger continua sendo a fonte da verdade.
type Cache struct {
	ledger Ledger
	log    *zap.Logger

	// Hooks de observabilidade
	OnRefreshError  func(op string)
	OnStaleBankroll func()

	mu       sync.RWMutex
	bankroll cledger.Bankroll
	loaded   bool
	bets     []cledger.Bet
	total    int
}

func NewCache(l Ledger, log *zap.Logger) *Cache {
	return &Cache{ledger: l, log: log}
}

// RefreshBankroll relê o bankroll. Falhas são só logadas.
func (c *Cache) RefreshBankroll(ctx context.Context) {
	br, err := c.ledger.GetBankroll(ctx)
	if err != nil {
		c.refreshFailed("bankroll", err)
		return
	}
	c.SetBankroll(br)
}

// RefreshBets relê o histórico; filtro zero usa limit=100.
// Falhas são só logadas.
func (c *Cache) RefreshBets(ctx context.Context, f cledger.BetFilter) {
	if f.Limit <= 0 {
		f.Limit = DefaultBetsLimit
	}
	resp, err := c.ledger.ListBets(ctx, f)
	if err != nil {
		c.refreshFailed("bets", err)
		return
	}
	c.ReplaceBets(resp.Bets, resp.TotalCount)
}

func (c *Cache) refreshFailed(op string, err error) {
	c.log.Warn("ledger refresh failed", zap.String("op", op), zap.Error(err))
	if c.OnRefreshError != nil {
		c.OnRefreshError(op)
	}
}

// SetBankroll aplica um bankroll vindo do servidor. Um valor com version
// menor que a já aplicada é descartado; versões iguais ou ausentes passam.
// A ordem vem só de version: updated_at não é monotônico entre transações.
func (c *Cache) SetBankroll(br cledger.Bankroll) bool {
	c.mu.Lock()
	if c.loaded && br.Version > 0 && br.Version < c.bankroll.Version {
		current := c.bankroll
		c.mu.Unlock()

		c.log.Warn("stale bankroll discarded",
			zap.Float64("balance", br.Balance),
			zap.Int64("version", br.Version),
			zap.Int64("current_version", current.Version))
		if c.OnStaleBankroll != nil {
			c.OnStaleBankroll()
		}
		return false
	}
	c.bankroll = br
	c.loaded = true
	c.mu.Unlock()
	return true
}

// ReplaceBets troca o histórico inteiro, preservando apostas já terminais.
func (c *Cache) ReplaceBets(bets []cledger.Bet, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]cledger.Bet, len(bets))
	copy(next, bets)
	known := c.terminalByID()
	for i, b := range next {
		if prev, ok := known[b.ID]; ok && prev.Status != b.Status {
			c.log.Warn("ignoring status change on settled bet",
				zap.Int64("bet_id", b.ID),
				zap.String("cached", string(prev.Status)),
				zap.String("received", string(b.Status)))
			next[i] = prev
		}
	}
	c.bets = next
	c.total = total
}

// ApplyPlacement grava a resposta de um placeBet: bankroll do servidor e a
// aposta nova no início do histórico.
func (c *Cache) ApplyPlacement(bet cledger.Bet, br cledger.Bankroll) {
	c.SetBankroll(br)

	c.mu.Lock()
	next := make([]cledger.Bet, 0, len(c.bets)+1)
	next = append(next, bet)
	for _, b := range c.bets {
		if b.ID != bet.ID {
			next = append(next, b)
		}
	}
	if len(next) > len(c.bets) {
		c.total++
	}
	c.bets = next
	c.mu.Unlock()
}

// ApplySettled mescla apostas liquidadas pela resposta de settle
func (c *Cache) ApplySettled(settled []cledger.Bet, br cledger.Bankroll) {
	c.SetBankroll(br)
	if len(settled) == 0 {
		return
	}

	byID := make(map[int64]cledger.Bet, len(settled))
	for _, b := range settled {
		byID[b.ID] = b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	next := make([]cledger.Bet, len(c.bets))
	for i, b := range c.bets {
		next[i] = b
		s, ok := byID[b.ID]
		if !ok || (b.Status.Terminal() && b.Status != s.Status) {
			continue
		}
		next[i] = s
	}
	c.bets = next
}

func (c *Cache) terminalByID() map[int64]cledger.Bet {
	out := make(map[int64]cledger.Bet)
	for _, b := range c.bets {
		if b.Status.Terminal() {
			out[b.ID] = b
		}
	}
	return out
}

// Bankroll retorna o último bankroll aplicado; ok=false antes do primeiro load
func (c *Cache) Bankroll() (cledger.Bankroll, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bankroll, c.loaded
}

// Balance é 0 enquanto o bankroll não foi carregado; use Bankroll para
// distinguir saldo zero de load pendente
func (c *Cache) Balance() float64 {
	br, _ := c.Bankroll()
	return br.Balance
}

func (c *Cache) Bets() []cledger.Bet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]cledger.Bet, len(c.bets))
	copy(out, c.bets)
	return out
}

func (c *Cache) TotalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// PendingGameIDs recalcula, a cada leitura, os jogos com ao menos uma aposta pending
func (c *Cache) PendingGameIDs() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{})
	for _, b := range c.bets {
		if b.Status == cledger.StatusPending {
			out[b.GameID] = struct{}{}
		}
	}
	return out
}

func (c *Cache) HasPending(gameID string) bool {
	_, ok := c.PendingGameIDs()[gameID]
	return ok
}
