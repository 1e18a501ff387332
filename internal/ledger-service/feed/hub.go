package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	cfeed "github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

const writeWait = 2 * time.Second

// clientConn conexão /ws; writes serializados por wmu (broadcast e pong concorrem)
type clientConn struct {
	id   string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *clientConn) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeLocked(b)
}

// writeLocked exige wmu já adquirido
func (c *clientConn) writeLocked(b []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia os clientes /ws e faz broadcast dos frames do feed
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	current  func() (Snapshot, bool)

	// Hooks de métricas
	OnClients func(n int)
	OnSent    func()

	mu      sync.RWMutex
	clients map[string]*clientConn
}

// NewHub recebe a fonte do snapshot enviado em connection_established
func NewHub(current func() (Snapshot, bool), log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log,
		current: current,
		clients: make(map[string]*clientConn),
	}
}

func (h *Hub) add(c *clientConn) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client connected", zap.String("client_id", c.id), zap.Int("clients", n))
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = c.conn.Close()
	h.log.Info("ws client disconnected", zap.String("client_id", id), zap.Int("clients", n))
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// Count número de clientes conectados
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS envia connection_established com o snapshot atual e responde ping
// com pong até o cliente desconectar. Frames inválidos são ignorados.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &clientConn{id: uuid.NewString(), conn: conn}
	defer h.remove(c.id)

	// registra antes de ler o snapshot e segura wmu até o established sair:
	// broadcasts concorrentes ficam na fila e chegam depois dele
	c.wmu.Lock()
	h.add(c)
	snap, ok := h.current()
	err = h.sendWith(c, EstablishedMessage(snap, ok), c.writeLocked)
	c.wmu.Unlock()
	if err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg cfeed.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("ws client frame ignored", zap.String("client_id", c.id), zap.Error(err))
			continue
		}
		if msg.Type == cfeed.TypePing {
			if err := h.send(c, cfeed.Message{Type: cfeed.TypePong, Timestamp: cfeed.NewTimestamp(time.Now())}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(c *clientConn, m cfeed.Message) error {
	return h.sendWith(c, m, c.write)
}

func (h *Hub) sendWith(c *clientConn, m cfeed.Message, write func([]byte) error) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := write(b); err != nil {
		h.log.Warn("ws write failed", zap.String("client_id", c.id), zap.Error(err))
		return err
	}
	if h.OnSent != nil {
		h.OnSent()
	}
	return nil
}

// Broadcast envia o frame a todos os clientes; quem falha é desconectado
func (h *Hub) Broadcast(m cfeed.Message) {
	b, err := json.Marshal(m)
	if err != nil {
		h.log.Error("ws broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*clientConn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(b); err != nil {
			h.log.Warn("ws write failed", zap.String("client_id", c.id), zap.Error(err))
			h.remove(c.id)
			continue
		}
		if h.OnSent != nil {
			h.OnSent()
		}
	}
}

// EstablishedMessage primeiro frame de cada conexão; sem snapshot vai games [] e last_updated null
func EstablishedMessage(snap Snapshot, ok bool) cfeed.Message {
	games := []cfeed.Game{}
	var last *cfeed.Timestamp
	if ok {
		if snap.Games != nil {
			games = snap.Games
		}
		last = cfeed.NewTimestamp(snap.LastUpdated)
	}
	n := len(games)
	return cfeed.Message{
		Type:        cfeed.TypeConnectionEstablished,
		Timestamp:   cfeed.NewTimestamp(time.Now()),
		Games:       games,
		GameCount:   &n,
		LastUpdated: last,
	}
}

func UpdateMessage(snap Snapshot) cfeed.Message {
	games := snap.Games
	if games == nil {
		games = []cfeed.Game{}
	}
	n := len(games)
	return cfeed.Message{
		Type:        cfeed.TypeGamesUpdate,
		Timestamp:   cfeed.NewTimestamp(snap.LastUpdated),
		Games:       games,
		GameCount:   &n,
		LastUpdated: cfeed.NewTimestamp(snap.LastUpdated),
	}
}

func ErrorMessage(detail string) cfeed.Message {
	return cfeed.Message{
		Type:      cfeed.TypeError,
		Timestamp: cfeed.NewTimestamp(time.Now()),
		Error:     detail,
	}
}
