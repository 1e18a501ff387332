package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-betting/internal/client/gamestate"
	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

// State do ciclo de vida da conexão push
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateStopped // saída terminal, só via cancelamento do contexto
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultPingInterval = 30 * time.Second
	DefaultBackoffBase  = time.Second
	DefaultBackoffMax   = 30 * time.Second

	writeTimeout = 5 * time.Second
)

// ReconnectDelay = min(base * 2^attempt, max), sem jitter
func ReconnectDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

type Options struct {
	PingInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	Dialer       *websocket.Dialer
}

func (o *Options) withDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Status é o que o conector expõe para observação
type Status struct {
	State       State
	Connected   bool
	LastUpdated *time.Time
	LastError   string
	Attempt     int
}

// Connector mantém uma única conexão com o feed e substitui o snapshot
// do gamestate.Store a cada frame de jogos. Toda transição de estado acontece
// na goroutine de Run; as goroutines de dial/leitura só enviam eventos.
type Connector struct {
	url   string
	log   *zap.Logger
	store *gamestate.Store
	opts  Options

	// Callbacks de métricas, chamados na goroutine de Run
	OnStateChange        func(State)
	OnFrame              func(msgType string)
	OnMalformed          func()
	OnReconnectScheduled func(delay time.Duration)

	events      chan event
	reconnectCh chan struct{}

	mu     sync.RWMutex
	status Status
}

func NewConnector(url string, store *gamestate.Store, log *zap.Logger, opts Options) *Connector {
	opts.withDefaults()
	return &Connector{
		url:         url,
		log:         log,
		store:       store,
		opts:        opts,
		events:      make(chan event, 16),
		reconnectCh: make(chan struct{}, 1),
		status:      Status{State: StateClosed},
	}
}

func (c *Connector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.status
	if st.LastUpdated != nil {
		t := *st.LastUpdated
		st.LastUpdated = &t
	}
	return st
}

func (c *Connector) Connected() bool { return c.Status().Connected }

func (c *Connector) LastUpdated() *time.Time { return c.Status().LastUpdated }

func (c *Connector) LastError() string { return c.Status().LastError }

// Reconnect cancela o retry agendado, zera as tentativas e força Closed→Connecting.
// Chamadas repetidas antes de serem processadas colapsam numa só.
func (c *Connector) Reconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

type eventKind int

const (
	evDialed eventKind = iota
	evDialFailed
	evFrame
	evReadFailed
)

type event struct {
	kind eventKind
	gen  uint64
	conn *websocket.Conn
	data []byte
	err  error
}

// loop guarda o estado mutável da máquina; só a goroutine de Run o acessa
type loop struct {
	c       *Connector
	ctx     context.Context
	state   State
	gen     uint64
	attempt int
	conn    *websocket.Conn
	ping    *time.Ticker
	retry   *time.Timer
}

// Run bloqueia até o contexto ser cancelado
func (c *Connector) Run(ctx context.Context) {
	l := &loop{c: c, ctx: ctx, state: StateClosed}
	l.transition(StateConnecting)

	for {
		select {
		case <-ctx.Done():
			l.transition(StateStopped)
			return
		case <-c.reconnectCh:
			l.forceReconnect()
		case ev := <-c.events:
			l.handle(ev)
		case <-l.pingC():
			l.sendPing()
		case <-l.retryC():
			l.retry = nil
			l.transition(StateConnecting)
		}
	}
}

func (l *loop) pingC() <-chan time.Time {
	if l.ping == nil {
		return nil
	}
	return l.ping.C
}

func (l *loop) retryC() <-chan time.Time {
	if l.retry == nil {
		return nil
	}
	return l.retry.C
}

// transition é a única função que muda l.state
func (l *loop) transition(to State) {
	from := l.state
	l.state = to

	switch to {
	case StateConnecting:
		l.stopRetry()
		l.gen++
		l.dial(l.gen)

	case StateOpen:
		l.attempt = 0
		l.c.setLastError("")
		l.ping = time.NewTicker(l.c.opts.PingInterval)

	case StateClosed:
		l.dropConn()
		delay := ReconnectDelay(l.attempt, l.c.opts.BackoffBase, l.c.opts.BackoffMax)
		l.attempt++
		l.retry = time.NewTimer(delay)
		l.c.log.Info("feed disconnected, reconnect scheduled",
			zap.Duration("delay", delay), zap.Int("attempt", l.attempt))
		if l.c.OnReconnectScheduled != nil {
			l.c.OnReconnectScheduled(delay)
		}

	case StateStopped:
		l.stopRetry()
		l.dropConn()
	}

	l.c.setState(to, l.attempt)
	l.c.log.Debug("feed state", zap.Stringer("from", from), zap.Stringer("to", to))
	if l.c.OnStateChange != nil {
		l.c.OnStateChange(to)
	}
}

func (l *loop) forceReconnect() {
	l.c.log.Info("feed reconnect requested", zap.Stringer("state", l.state))
	l.dropConn()
	l.stopRetry()
	l.attempt = 0
	l.transition(StateConnecting)
}

func (l *loop) handle(ev event) {
	if ev.gen != l.gen {
		// evento de uma conexão anterior
		if ev.kind == evDialed && ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case evDialed:
		if l.state != StateConnecting {
			_ = ev.conn.Close()
			return
		}
		l.conn = ev.conn
		l.c.log.Info("feed connected", zap.String("url", l.c.url))
		l.transition(StateOpen)
		go l.c.readLoop(l.ctx, ev.conn, ev.gen)

	case evDialFailed:
		if l.state != StateConnecting {
			return
		}
		l.c.log.Warn("feed dial failed", zap.Error(ev.err))
		l.c.setLastError(fmt.Sprintf("websocket connection error: %v", ev.err))
		l.transition(StateClosed)

	case evFrame:
		if l.state != StateOpen {
			return
		}
		l.c.dispatch(ev.data)

	case evReadFailed:
		if l.state != StateOpen || ev.conn != l.conn {
			return
		}
		if !websocket.IsCloseError(ev.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			l.c.log.Warn("feed read failed", zap.Error(ev.err))
			l.c.setLastError(fmt.Sprintf("websocket connection error: %v", ev.err))
		}
		l.transition(StateClosed)
	}
}

func (l *loop) sendPing() {
	if l.state != StateOpen || l.conn == nil {
		return
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteJSON(cfeed.Message{Type: cfeed.TypePing}); err != nil {
		l.c.log.Warn("feed ping failed", zap.Error(err))
		l.c.setLastError(fmt.Sprintf("websocket connection error: %v", err))
		l.transition(StateClosed)
	}
}

func (l *loop) dial(gen uint64) {
	c := l.c
	ctx := l.ctx
	c.log.Info("connecting to feed", zap.String("url", c.url))
	go func() {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, nil)
		ev := event{kind: evDialed, gen: gen, conn: conn}
		if err != nil {
			ev = event{kind: evDialFailed, gen: gen, err: err}
		}
		c.send(ctx, ev)
	}()
}

func (l *loop) dropConn() {
	if l.ping != nil {
		l.ping.Stop()
		l.ping = nil
	}
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

func (l *loop) stopRetry() {
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
}

// readLoop repassa cada frame para a goroutine de Run até a leitura falhar
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.send(ctx, event{kind: evReadFailed, gen: gen, conn: conn, err: err})
			return
		}
		if !c.send(ctx, event{kind: evFrame, gen: gen, conn: conn, data: data}) {
			return
		}
	}
}

func (c *Connector) send(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		if ev.kind == evDialed && ev.conn != nil {
			_ = ev.conn.Close()
		}
		return false
	}
}

// dispatch decodifica um frame e aplica ao store/status.
// Frames inválidos são logados e descartados sem mexer na conexão.
func (c *Connector) dispatch(data []byte) {
	var msg cfeed.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("malformed feed frame", zap.Error(err), zap.Int("bytes", len(data)))
		if c.OnMalformed != nil {
			c.OnMalformed()
		}
		return
	}
	if c.OnFrame != nil {
		c.OnFrame(msg.Type)
	}

	switch msg.Type {
	case cfeed.TypeConnectionEstablished, cfeed.TypeGamesUpdate:
		var ts time.Time
		if msg.Timestamp != nil {
			ts = msg.Timestamp.Time
		}
		if msg.Games != nil {
			c.store.Replace(msg.Games, ts)
			c.log.Debug("games snapshot replaced", zap.String("type", msg.Type), zap.Int("games", len(msg.Games)))
		}
		c.mu.Lock()
		if !ts.IsZero() {
			c.status.LastUpdated = &ts
		}
		c.status.LastError = ""
		c.mu.Unlock()

	case cfeed.TypeError:
		m := msg.Error
		if m == "" {
			m = "Unknown error"
		}
		c.log.Warn("feed reported error", zap.String("error", m))
		c.setLastError(m)

	case cfeed.TypePong:
		// resposta do keepalive

	default:
		c.log.Debug("unknown feed frame type", zap.String("type", msg.Type))
	}
}

func (c *Connector) setState(s State, attempt int) {
	c.mu.Lock()
	c.status.State = s
	c.status.Connected = s == StateOpen
	c.status.Attempt = attempt
	c.mu.Unlock()
}

func (c *Connector) setLastError(msg string) {
	c.mu.Lock()
	c.status.LastError = msg
	c.mu.Unlock()
}
