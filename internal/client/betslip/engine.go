package betslip

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/client/bankroll"
	"github.com/radieske/live-odds-betting/internal/client/ledger"
	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

var (
	ErrStakeTooLow       = errors.New("stake below minimum")
	ErrStakeTooHigh      = errors.New("stake above maximum")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidStake      = errors.New("invalid stake")
	ErrSlipOpen          = errors.New("bet slip already open")
	ErrNoDraft           = errors.New("no bet slip open")
	ErrSubmitting        = errors.New("bet slip is submitting")
	ErrGameClosed        = errors.New("game is closed for betting")
	ErrOddsUnavailable   = errors.New("odds not offered")
)

// failedMsg mensagem quando o ledger não devolve detail
const failedMsg = "Failed to place bet"

// slipError carrega a mensagem exibida ao usuário e o sentinel para errors.Is
type slipError struct {
	kind error
	msg  string
}

func (e *slipError) Error() string { return e.msg }
func (e *slipError) Unwrap() error { return e.kind }

type State int

const (
	StateClosed State = iota
	StateDrafting
	StateSubmitting
	StateDraftingWithError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateDrafting:
		return "drafting"
	case StateSubmitting:
		return "submitting"
	case StateDraftingWithError:
		return "drafting_with_error"
	}
	return "unknown"
}

// Draft é o slip em edição; odds e linha ficam congeladas desde a abertura
type Draft struct {
	Selection
	Stake float64
}

// Snapshot é a visão somente leitura do engine
type Snapshot struct {
	State           State
	Draft           *Draft
	Error           string
	PotentialPayout float64
}

// Games é o que o engine lê do gamestate para saber se o jogo aceita apostas
type Games interface {
	Game(id string) (cfeed.Game, bool)
}

// Placer envia a aposta ao ledger
type Placer interface {
	PlaceBet(ctx context.Context, req cledger.PlaceBetRequest) (cledger.PlaceBetResponse, error)
}

// Engine é a máquina de estados do bet slip: Closed → Drafting → Submitting →
// (Closed | DraftingWithError). Só existe um draft por vez.
type Engine struct {
	games  Games
	cache  *bankroll.Cache
	ledger Placer
	log    *zap.Logger

	// Hooks de métricas
	OnPlaced   func()
	OnRejected func(reason string) // "validation" | "ledger"

	mu      sync.Mutex
	state   State
	draft   *Draft
	errMsg  string
	gen     uint64
	settled map[string]struct{}
}

func NewEngine(games Games, cache *bankroll.Cache, l Placer, log *zap.Logger) *Engine {
	return &Engine{
		games:   games,
		cache:   cache,
		ledger:  l,
		log:     log,
		settled: make(map[string]struct{}),
	}
}

// PotentialPayout em odds americanas, arredondado ao centavo (half-up).
// Só para exibição; a liquidação usa o valor do ledger.
func PotentialPayout(stake float64, odds int) float64 {
	return cledger.Payout(stake, odds)
}

// OpenBetSlip cria um draft com stake 0. Só vale a partir de Closed.
func (e *Engine) OpenBetSlip(sel Selection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateClosed {
		return ErrSlipOpen
	}
	if !sel.BetType.Valid() {
		return fmt.Errorf("%w: bet type %q", ErrOddsUnavailable, sel.BetType)
	}
	if err := e.gameOpenLocked(sel.GameID); err != nil {
		return err
	}

	if sel.Line != nil {
		l := *sel.Line
		sel.Line = &l
	}
	e.draft = &Draft{Selection: sel}
	e.errMsg = ""
	e.state = StateDrafting
	e.gen++
	e.log.Debug("bet slip opened", zap.String("game_id", sel.GameID), zap.String("bet_type", string(sel.BetType)))
	return nil
}

// OpenFromGame abre o slip lendo as odds atuais do jogo no gamestate
func (e *Engine) OpenFromGame(gameID string, t cledger.BetType) error {
	g, ok := e.games.Game(gameID)
	if !ok {
		return ErrGameClosed
	}
	sel, err := NewSelection(g, t)
	if err != nil {
		return err
	}
	return e.OpenBetSlip(sel)
}

// SetStake aceita qualquer valor finito >= 0 e limpa o erro atual.
// Valores inválidos não alteram o stake.
func (e *Engine) SetStake(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrInvalidStake
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrafting && e.state != StateDraftingWithError {
		return ErrNoDraft
	}
	e.draft.Stake = amount
	e.errMsg = ""
	e.state = StateDrafting
	return nil
}

// CloseBetSlip descarta o draft a partir de qualquer estado.
// Uma submissão em andamento continua e ainda atualiza o cache ao terminar.
func (e *Engine) CloseBetSlip() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = nil
	e.errMsg = ""
	e.state = StateClosed
	e.gen++
}

// PlaceBet valida e envia o draft. Sem draft ou com stake <= 0 é no-op.
// Erros de validação não chegam ao ledger.
func (e *Engine) PlaceBet(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.state == StateSubmitting:
		e.mu.Unlock()
		return ErrSubmitting
	case e.draft == nil || e.draft.Stake <= 0:
		e.mu.Unlock()
		return nil
	}

	if err := e.validateLocked(); err != nil {
		e.failLocked(err.Error())
		e.mu.Unlock()
		e.log.Info("bet rejected locally", zap.Error(err))
		if e.OnRejected != nil {
			e.OnRejected("validation")
		}
		return err
	}

	d := *e.draft
	e.state = StateSubmitting
	e.errMsg = ""
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	resp, err := e.ledger.PlaceBet(ctx, cledger.PlaceBetRequest{
		GameID:       d.GameID,
		BetType:      d.BetType,
		Stake:        d.Stake,
		Odds:         d.Odds,
		LineValue:    d.Line,
		Selection:    d.Label,
		HomeTeamAbbr: d.HomeTeamAbbr,
		AwayTeamAbbr: d.AwayTeamAbbr,
	})
	if err != nil {
		msg, ok := ledger.DetailOf(err)
		if !ok {
			msg = failedMsg
		}
		e.mu.Lock()
		if e.gen == gen && e.state == StateSubmitting {
			e.failLocked(msg)
		}
		e.mu.Unlock()

		e.log.Warn("place bet failed", zap.String("game_id", d.GameID), zap.Error(err))
		if e.OnRejected != nil {
			e.OnRejected("ledger")
		}
		return fmt.Errorf("place bet: %w", err)
	}

	e.cache.ApplyPlacement(resp.Bet, resp.Bankroll)

	e.mu.Lock()
	if e.gen == gen && e.state == StateSubmitting {
		e.draft = nil
		e.state = StateClosed
		e.gen++
	}
	e.mu.Unlock()

	e.log.Info("bet placed",
		zap.Int64("bet_id", resp.Bet.ID),
		zap.String("game_id", resp.Bet.GameID),
		zap.Float64("stake", resp.Bet.Stake),
		zap.Float64("balance", resp.Bankroll.Balance))
	if e.OnPlaced != nil {
		e.OnPlaced()
	}

	e.cache.RefreshBankroll(ctx)
	e.cache.RefreshBets(ctx, cledger.BetFilter{})
	return nil
}

func (e *Engine) validateLocked() error {
	if err := e.gameOpenLocked(e.draft.GameID); err != nil {
		return err
	}
	stake := e.draft.Stake
	switch {
	case stake < cledger.MinStake:
		return &slipError{ErrStakeTooLow, fmt.Sprintf("Minimum bet is $%.2f", cledger.MinStake)}
	case stake > cledger.MaxStake:
		return &slipError{ErrStakeTooHigh, fmt.Sprintf("Maximum bet is $%.2f", cledger.MaxStake)}
	}
	// sem bankroll carregado o saldo fica a cargo do ledger
	if br, loaded := e.cache.Bankroll(); loaded && stake > br.Balance {
		return &slipError{ErrInsufficientFunds, fmt.Sprintf("Insufficient funds. Balance: $%.2f", br.Balance)}
	}
	return nil
}

// gameOpenLocked: jogo presente no feed, não final e não liquidado nesta sessão
func (e *Engine) gameOpenLocked(gameID string) error {
	if _, ok := e.settled[gameID]; ok {
		return &slipError{ErrGameClosed, "Game has been settled"}
	}
	g, ok := e.games.Game(gameID)
	if !ok || g.Status == cfeed.StatusFinal {
		return &slipError{ErrGameClosed, "Game is no longer available for betting"}
	}
	return nil
}

func (e *Engine) failLocked(msg string) {
	e.errMsg = msg
	e.state = StateDraftingWithError
}

// MarkSettled fecha o jogo para novas apostas imediatamente
func (e *Engine) MarkSettled(gameID string) {
	e.mu.Lock()
	e.settled[gameID] = struct{}{}
	e.mu.Unlock()
}

// GameOpen indica se um novo slip pode ser aberto para o jogo
func (e *Engine) GameOpen(gameID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameOpenLocked(gameID) == nil
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{State: e.state, Error: e.errMsg}
	if e.draft != nil {
		d := *e.draft
		s.Draft = &d
		s.PotentialPayout = PotentialPayout(d.Stake, d.Odds)
	}
	return s
}
