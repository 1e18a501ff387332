package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/ledger-service/feed"
	"github.com/radieske/live-odds-betting/internal/ledger-service/repo"
	"github.com/radieske/live-odds-betting/internal/ledger-service/settle"
	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	eventTimeout = 5 * time.Second
)

// Ledger persistência de bankroll e apostas
type Ledger interface {
	GetBankroll(ctx context.Context) (cledger.Bankroll, error)
	PlaceBet(ctx context.Context, req cledger.PlaceBetRequest, payout float64) (cledger.Bet, cledger.Bankroll, error)
	ListBets(ctx context.Context, f cledger.BetFilter) ([]cledger.Bet, int, error)
	GetBet(ctx context.Context, id int64) (cledger.Bet, error)
	SettleGame(ctx context.Context, gameID string, score cledger.FinalScore, resolve repo.Resolver) ([]cledger.Bet, cledger.Bankroll, error)
}

// Games catálogo do feed
type Games interface {
	Game(id string) (cfeed.Game, bool)
	Snapshot() []cfeed.Game
	Finalize(id string, draw func() cledger.FinalScore) (cledger.FinalScore, error)
}

// Events publicação dos eventos de domínio (Kafka)
type Events interface {
	PublishBetPlaced(ctx context.Context, bet cledger.Bet, br cledger.Bankroll) error
	PublishGameSettled(ctx context.Context, gameID string, score cledger.FinalScore, bets []cledger.Bet, br cledger.Bankroll) error
}

// Feed estado do publisher de snapshots
type Feed interface {
	Status() feed.Status
	PublishNow(ctx context.Context)
	Refresh(ctx context.Context)
}

// History leitura do histórico de linhas gravado a cada publicação
type History interface {
	LineHistory(ctx context.Context, gameID string) ([]cfeed.LineMove, error)
	Games(ctx context.Context, since time.Time, limit int) ([]cfeed.Game, error)
	GameIDs(ctx context.Context) ([]string, error)
}

// API expõe o ledger HTTP em /api e o feed em /ws
type API struct {
	Ledger  Ledger
	Games   Games
	Events  Events
	Feed    Feed
	History History
	WS      http.HandlerFunc
	Clients func() int
	Draw    func() cledger.FinalScore
	Log     *zap.Logger

	// Hooks de métricas
	OnPlaced   func()
	OnRejected func(reason string)
	OnSettled  func(bets int)
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withCORS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.health)
		r.Get("/games", a.listGames)
		r.Get("/games/{id}", a.getGame)
		r.Get("/games/{id}/history", a.gameHistory)
		r.Post("/games/{id}/settle", a.settleGame)
		r.Get("/history", a.listHistory)
		r.Get("/game-ids", a.gameIDs)
		r.Post("/refresh", a.refresh)
		r.Get("/bankroll", a.getBankroll)
		r.Post("/bets", a.placeBet)
		r.Get("/bets", a.listBets)
		r.Get("/bets/{id}", a.getBet)
	})
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

// withCORS libera o front local; preflight responde 204
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, cledger.ErrorResponse{Detail: detail})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	st := a.Feed.Status()
	var last, lastErr any
	if !st.LastUpdated.IsZero() {
		last = cfeed.NewTimestamp(st.LastUpdated)
	}
	if st.LastError != "" {
		lastErr = st.LastError
	}
	clients := 0
	if a.Clients != nil {
		clients = a.Clients()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"last_updated":      last,
		"game_count":        len(a.Games.Snapshot()),
		"websocket_clients": clients,
		"fetch_count":       st.PublishCount,
		"last_error":        lastErr,
	})
}

func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	games := a.Games.Snapshot()
	var last any
	if st := a.Feed.Status(); !st.LastUpdated.IsZero() {
		last = cfeed.NewTimestamp(st.LastUpdated)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"games":        games,
		"last_updated": last,
		"count":        len(games),
	})
}

func (a *API) getGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, ok := a.Games.Game(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Game not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game": g})
}

func (a *API) gameHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	moves, err := a.History.LineHistory(r.Context(), id)
	if err != nil {
		a.Log.Error("line history failed", zap.String("game_id", id), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	if len(moves) == 0 {
		writeDetail(w, http.StatusNotFound, "No history for game: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_id": id,
		"history": moves,
		"count":   len(moves),
	})
}

func (a *API) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since time.Time
	if s := q.Get("since"); s != "" {
		t, err := cfeed.ParseTimestamp(s)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid datetime format")
			return
		}
		since = t
	}
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}

	games, err := a.History.Games(r.Context(), since, limit)
	if err != nil {
		a.Log.Error("list history failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games, "count": len(games)})
}

func (a *API) gameIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := a.History.GameIDs(r.Context())
	if err != nil {
		a.Log.Error("list game ids failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch game ids")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game_ids": ids, "count": len(ids)})
}

// refresh força um tick do feed fora do ciclo
func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	if a.Feed == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Feed publisher not running"})
		return
	}
	a.Feed.Refresh(r.Context())
	a.Log.Info("feed refresh triggered")
	writeJSON(w, http.StatusOK, map[string]any{"status": "refresh_triggered"})
}

// parseLimit aplica o default e o intervalo 1..maxLimit; escreve o 400 quando inválido
func parseLimit(w http.ResponseWriter, s string) (int, bool) {
	if s == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxLimit {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
		return 0, false
	}
	return n, true
}

func (a *API) getBankroll(w http.ResponseWriter, r *http.Request) {
	br, err := a.Ledger.GetBankroll(r.Context())
	if err != nil {
		a.Log.Error("get bankroll failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch bankroll")
		return
	}
	writeJSON(w, http.StatusOK, br)
}

func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	var req cledger.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.reject(w, "Invalid request body")
		return
	}
	if msg := a.validatePlacement(req); msg != "" {
		a.reject(w, msg)
		return
	}

	payout := cledger.Payout(req.Stake, req.Odds)
	bet, br, err := a.Ledger.PlaceBet(r.Context(), req, payout)
	if err != nil {
		var fe *repo.FundsError
		if errors.As(err, &fe) {
			a.reject(w, fmt.Sprintf("Insufficient funds. Balance: $%.2f", fe.Balance))
			return
		}
		a.Log.Error("place bet failed", zap.String("game_id", req.GameID), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to place bet")
		return
	}

	a.Log.Info("bet placed",
		zap.Int64("bet_id", bet.ID),
		zap.String("game_id", bet.GameID),
		zap.String("bet_type", string(bet.BetType)),
		zap.Float64("stake", bet.Stake),
		zap.Float64("balance", br.Balance))
	if a.OnPlaced != nil {
		a.OnPlaced()
	}
	a.emit("bet_placed", func(ctx context.Context) error { return a.Events.PublishBetPlaced(ctx, bet, br) })

	writeJSON(w, http.StatusOK, cledger.PlaceBetResponse{Bet: bet, Bankroll: br})
}

// validatePlacement devolve a mensagem exibida ao usuário; "" = válido.
// O saldo é conferido dentro da transação do ledger.
func (a *API) validatePlacement(req cledger.PlaceBetRequest) string {
	if !req.BetType.Valid() {
		return "Invalid bet type"
	}
	if req.GameID == "" {
		return "game_id is required"
	}
	g, ok := a.Games.Game(req.GameID)
	if !ok || g.Status == cfeed.StatusFinal {
		return "Game is no longer available for betting"
	}
	switch req.BetType {
	case cledger.SpreadHome, cledger.SpreadAway, cledger.TotalOver, cledger.TotalUnder:
		if req.LineValue == nil {
			return "line_value is required for spread and total bets"
		}
	}
	if req.Odds == 0 {
		return "Invalid odds"
	}
	switch {
	case req.Stake < cledger.MinStake:
		return fmt.Sprintf("Minimum bet is $%.2f", cledger.MinStake)
	case req.Stake > cledger.MaxStake:
		return fmt.Sprintf("Maximum bet is $%.2f", cledger.MaxStake)
	}
	return ""
}

func (a *API) reject(w http.ResponseWriter, msg string) {
	if a.OnRejected != nil {
		a.OnRejected("validation")
	}
	writeDetail(w, http.StatusBadRequest, msg)
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f cledger.BetFilter

	if s := q.Get("status"); s != "" {
		f.Status = cledger.BetStatus(s)
		if f.Status != cledger.StatusPending && !f.Status.Terminal() {
			writeDetail(w, http.StatusBadRequest, "Invalid status")
			return
		}
	}
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	f.Limit = limit
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeDetail(w, http.StatusBadRequest, "offset must be >= 0")
			return
		}
		f.Offset = n
	}

	bets, total, err := a.Ledger.ListBets(r.Context(), f)
	if err != nil {
		a.Log.Error("list bets failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch bets")
		return
	}
	writeJSON(w, http.StatusOK, cledger.BetsResponse{Bets: bets, TotalCount: total, Limit: f.Limit, Offset: f.Offset})
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid bet id")
		return
	}
	bet, err := a.Ledger.GetBet(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Bet not found")
		return
	}
	if err != nil {
		a.Log.Error("get bet failed", zap.Int64("bet_id", id), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to fetch bet")
		return
	}
	writeJSON(w, http.StatusOK, cledger.BetResponse{Bet: bet})
}

// settleGame fecha o jogo no catálogo com placar simulado e liquida as
// apostas pending. Repetir o settle reaproveita o mesmo placar.
func (a *API) settleGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	score, err := a.Games.Finalize(gameID, a.draw)
	if errors.Is(err, feed.ErrGameNotFound) {
		writeDetail(w, http.StatusNotFound, "Game not found: "+gameID)
		return
	}
	if err != nil {
		a.Log.Error("finalize game failed", zap.String("game_id", gameID), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to settle game")
		return
	}

	bets, br, err := a.Ledger.SettleGame(r.Context(), gameID, score, settle.Result)
	if err != nil {
		a.Log.Error("settle game failed", zap.String("game_id", gameID), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Failed to settle game")
		return
	}

	a.Log.Info("game settled",
		zap.String("game_id", gameID),
		zap.Int("home_score", score.Home),
		zap.Int("away_score", score.Away),
		zap.Int("settled_bets", len(bets)),
		zap.Float64("balance", br.Balance))
	if a.OnSettled != nil {
		a.OnSettled(len(bets))
	}
	a.emit("game_settled", func(ctx context.Context) error {
		return a.Events.PublishGameSettled(ctx, gameID, score, bets, br)
	})
	if a.Feed != nil {
		go a.Feed.PublishNow(context.Background())
	}

	writeJSON(w, http.StatusOK, cledger.SettleGameResponse{
		GameID:      gameID,
		FinalScore:  score,
		SettledBets: bets,
		Bankroll:    br,
	})
}

func (a *API) draw() cledger.FinalScore {
	if a.Draw != nil {
		return a.Draw()
	}
	return settle.MockScores(nil)
}

// emit publica o evento fora do request; falha só é logada
func (a *API) emit(name string, fn func(ctx context.Context) error) {
	if a.Events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.Log.Warn("event publish failed", zap.String("event", name), zap.Error(err))
		}
	}()
}
