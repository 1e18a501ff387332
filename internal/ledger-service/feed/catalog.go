package feed

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
	cledger "github.com/radieske/live-odds-betting/pkg/contracts/ledger"
)

var ErrGameNotFound = errors.New("game not found")

// Matchup define um jogo do catálogo e suas linhas iniciais
type Matchup struct {
	GameID   string
	Home     cfeed.Team
	Away     cfeed.Team
	StartsIn time.Duration
	Spread   float64 // linha do mandante (ex.: -3.5)
	Total    float64
	MLHome   int
	MLAway   int
}

// DefaultMatchups rodada fixa de NFL usada pelo servidor local
var DefaultMatchups = []Matchup{
	{GameID: "NFL_KC_BUF", Home: team("Kansas City Chiefs", "KC"), Away: team("Buffalo Bills", "BUF"), StartsIn: -30 * time.Minute, Spread: -3.5, Total: 47.5, MLHome: -175, MLAway: 150},
	{GameID: "NFL_PHI_DAL", Home: team("Philadelphia Eagles", "PHI"), Away: team("Dallas Cowboys", "DAL"), StartsIn: -10 * time.Minute, Spread: -6.5, Total: 44.5, MLHome: -280, MLAway: 230},
	{GameID: "NFL_SF_SEA", Home: team("San Francisco 49ers", "SF"), Away: team("Seattle Seahawks", "SEA"), StartsIn: 2 * time.Minute, Spread: -7, Total: 45.5, MLHome: -320, MLAway: 260},
	{GameID: "NFL_DET_GB", Home: team("Detroit Lions", "DET"), Away: team("Green Bay Packers", "GB"), StartsIn: 90 * time.Minute, Spread: -2.5, Total: 51.5, MLHome: -140, MLAway: 120},
	{GameID: "NFL_BAL_CIN", Home: team("Baltimore Ravens", "BAL"), Away: team("Cincinnati Bengals", "CIN"), StartsIn: 3 * time.Hour, Spread: -3, Total: 49.5, MLHome: -160, MLAway: 135},
	{GameID: "NFL_MIA_NYJ", Home: team("Miami Dolphins", "MIA"), Away: team("New York Jets", "NYJ"), StartsIn: 26 * time.Hour, Spread: 1.5, Total: 41.5, MLHome: 105, MLAway: -125},
}

func team(name, abbr string) cfeed.Team { return cfeed.Team{Name: name, Abbreviation: abbr} }

type entry struct {
	game  cfeed.Game
	score *cledger.FinalScore
}

// Catalog mantém o snapshot de jogos do servidor. Cada Tick oscila as odds dos
// jogos abertos e promove upcoming → live quando o horário chega.
type Catalog struct {
	mu    sync.RWMutex
	games map[string]*entry
	rng   *rand.Rand
	now   func() time.Time
}

// NewCatalog monta o catálogo relativo a now; rng nil usa uma fonte por horário
func NewCatalog(matchups []Matchup, rng *rand.Rand, now func() time.Time) *Catalog {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	c := &Catalog{games: make(map[string]*entry, len(matchups)), rng: rng, now: now}
	t := now().UTC()
	for _, m := range matchups {
		g := cfeed.Game{
			GameID:    m.GameID,
			HomeTeam:  m.Home,
			AwayTeam:  m.Away,
			StartTime: cfeed.Timestamp{Time: t.Add(m.StartsIn)},
			Status:    cfeed.StatusUpcoming,
			FetchedAt: cfeed.Timestamp{Time: t},
		}
		if m.StartsIn <= 0 {
			g.Status = cfeed.StatusLive
		}
		g.BettingLines = cfeed.BettingLines{
			MoneyLine: cfeed.MoneyLine{Home: intp(m.MLHome), Away: intp(m.MLAway)},
			Spread: cfeed.Spread{
				Home: cfeed.LineOdds{Line: floatp(m.Spread), Odds: intp(-110)},
				Away: cfeed.LineOdds{Line: floatp(-m.Spread), Odds: intp(-110)},
			},
			Total: cfeed.Total{
				Over:  cfeed.LineOdds{Line: floatp(m.Total), Odds: intp(-110)},
				Under: cfeed.LineOdds{Line: floatp(m.Total), Odds: intp(-110)},
			},
		}
		c.games[m.GameID] = &entry{game: g}
	}
	return c
}

// Tick avança o catálogo um passo e devolve o snapshot resultante.
// Jogos final não mudam mais.
func (c *Catalog) Tick() []cfeed.Game {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	for _, e := range c.games {
		g := &e.game
		if g.Status == cfeed.StatusFinal {
			continue
		}
		if g.Status == cfeed.StatusUpcoming && !t.Before(g.StartTime.Time) {
			g.Status = cfeed.StatusLive
		}
		bl := &g.BettingLines
		bl.MoneyLine.Home = intp(c.jitter(*bl.MoneyLine.Home, 10))
		bl.MoneyLine.Away = intp(c.jitter(*bl.MoneyLine.Away, 10))
		bl.Spread.Home.Odds = intp(c.jitter(*bl.Spread.Home.Odds, 5))
		bl.Spread.Away.Odds = intp(c.jitter(*bl.Spread.Away.Odds, 5))
		bl.Total.Over.Odds = intp(c.jitter(*bl.Total.Over.Odds, 5))
		bl.Total.Under.Odds = intp(c.jitter(*bl.Total.Under.Odds, 5))
		g.FetchedAt = cfeed.Timestamp{Time: t}
	}
	return c.snapshotLocked()
}

// jitter oscila odds americanas em ±step sem cair no intervalo (-100, 100)
func (c *Catalog) jitter(odds, step int) int {
	v := odds + c.rng.Intn(2*step+1) - step
	switch {
	case v > -100 && v < 100 && odds < 0:
		return -100
	case v > -100 && v < 100:
		return 100
	}
	return v
}

// Snapshot cópia dos jogos ordenada por horário de início
func (c *Catalog) Snapshot() []cfeed.Game {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Catalog) snapshotLocked() []cfeed.Game {
	out := make([]cfeed.Game, 0, len(c.games))
	for _, e := range c.games {
		out = append(out, e.game)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime.Time) {
			return out[i].GameID < out[j].GameID
		}
		return out[i].StartTime.Before(out[j].StartTime.Time)
	})
	return out
}

func (c *Catalog) Game(id string) (cfeed.Game, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.games[id]
	if !ok {
		return cfeed.Game{}, false
	}
	return e.game, true
}

// Finalize marca o jogo como final com o placar sorteado por draw.
// Se o jogo já é final devolve o placar registrado.
func (c *Catalog) Finalize(id string, draw func() cledger.FinalScore) (cledger.FinalScore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.games[id]
	if !ok {
		return cledger.FinalScore{}, ErrGameNotFound
	}
	if e.score != nil {
		return *e.score, nil
	}
	s := draw()
	e.score = &s
	e.game.Status = cfeed.StatusFinal
	e.game.FetchedAt = cfeed.Timestamp{Time: c.now().UTC()}
	return s, nil
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
