package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

// Store destino dos snapshots (Redis em produção)
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, bool, error)
}

// Recorder guarda as linhas de cada snapshot publicado (Postgres em produção)
type Recorder interface {
	SaveSnapshot(ctx context.Context, games []cfeed.Game) (int, error)
}

// Status estado do publisher exposto em /api/health
type Status struct {
	LastUpdated  time.Time
	LastError    string
	PublishCount int
}

// Publisher avança o catálogo a cada tick e publica o snapshot no Store.
// Se o Store falha, os clientes do hub recebem um frame de erro direto.
type Publisher struct {
	catalog *Catalog
	store   Store
	hub     *Hub
	tick    time.Duration
	log     *zap.Logger

	// History opcional; falha ao gravar só é logada
	History Recorder

	// Hooks de métricas
	OnPublished    func()
	OnError        func()
	OnHistorySaved func(rows int)
	OnHistoryError func()

	// pubMu cobre da leitura do catálogo até o Save: snapshots chegam ao
	// Store na mesma ordem em que foram tirados
	pubMu sync.Mutex

	mu     sync.RWMutex
	last   Snapshot
	hasRun bool
	status Status
}

func NewPublisher(c *Catalog, s Store, hub *Hub, tick time.Duration, log *zap.Logger) *Publisher {
	return &Publisher{catalog: c, store: s, hub: hub, tick: tick, log: log}
}

// Run publica imediatamente e depois a cada tick, até ctx ser cancelado
func (p *Publisher) Run(ctx context.Context) {
	p.step(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.step(ctx)
		}
	}
}

func (p *Publisher) step(ctx context.Context) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.publish(ctx, p.catalog.Tick())
}

// Refresh força um tick fora do ciclo (POST /api/refresh)
func (p *Publisher) Refresh(ctx context.Context) {
	p.step(ctx)
}

// PublishNow publica o catálogo atual sem oscilar odds (ex.: após um settle)
func (p *Publisher) PublishNow(ctx context.Context) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.publish(ctx, p.catalog.Snapshot())
}

func (p *Publisher) publish(ctx context.Context, games []cfeed.Game) {
	snap := Snapshot{Games: games, LastUpdated: time.Now().UTC()}

	p.mu.Lock()
	p.last = snap
	p.hasRun = true
	p.mu.Unlock()

	p.record(ctx, games)

	if err := p.store.Save(ctx, snap); err != nil {
		p.mu.Lock()
		p.status.LastError = err.Error()
		p.mu.Unlock()

		p.log.Warn("snapshot publish failed", zap.Error(err))
		if p.OnError != nil {
			p.OnError()
		}
		p.hub.Broadcast(ErrorMessage(err.Error()))
		return
	}

	p.mu.Lock()
	p.status.LastUpdated = snap.LastUpdated
	p.status.LastError = ""
	p.status.PublishCount++
	p.mu.Unlock()

	p.log.Debug("snapshot published", zap.Int("games", len(games)))
	if p.OnPublished != nil {
		p.OnPublished()
	}
}

func (p *Publisher) record(ctx context.Context, games []cfeed.Game) {
	if p.History == nil {
		return
	}
	n, err := p.History.SaveSnapshot(ctx, games)
	if err != nil {
		p.log.Warn("lines history save failed", zap.Error(err))
		if p.OnHistoryError != nil {
			p.OnHistoryError()
		}
		return
	}
	if p.OnHistorySaved != nil {
		p.OnHistorySaved(n)
	}
}

// Current snapshot para novas conexões: o do Redis, ou o último local se o
// Redis não responder
func (p *Publisher) Current(ctx context.Context) (Snapshot, bool) {
	snap, ok, err := p.store.Latest(ctx)
	if err == nil && ok {
		return snap, true
	}
	if err != nil {
		p.log.Warn("snapshot read failed", zap.Error(err))
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasRun
}

func (p *Publisher) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}
