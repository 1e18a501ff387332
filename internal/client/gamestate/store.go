package gamestate

import (
	"sync"
	"time"

	"github.com/radieske/live-odds-betting/pkg/contracts/feed"
)

// Store guarda o último snapshot completo de jogos recebido do feed.
// Escritor único (feed connector); leitores sempre veem a última substituição completa.
type Store struct {
	mu        sync.RWMutex
	games     []feed.Game
	byID      map[string]int
	updatedAt time.Time
	version   uint64
}

func NewStore() *Store {
	return &Store{byID: map[string]int{}}
}

// Replace troca o snapshot inteiro. Nunca mescla com o anterior.
func (s *Store) Replace(games []feed.Game, ts time.Time) {
	snap := make([]feed.Game, len(games))
	copy(snap, games)
	idx := make(map[string]int, len(snap))
	for i, g := range snap {
		idx[g.GameID] = i
	}

	s.mu.Lock()
	s.games = snap
	s.byID = idx
	s.updatedAt = ts
	s.version++
	s.mu.Unlock()
}

// Games retorna uma cópia do snapshot atual
func (s *Store) Games() []feed.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Game, len(s.games))
	copy(out, s.games)
	return out
}

func (s *Store) Game(id string) (feed.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return feed.Game{}, false
	}
	return s.games[i], true
}

// UpdatedAt timestamp da última substituição (zero se o frame não trouxe)
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Version conta substituições; útil pra detectar snapshot novo sem comparar conteúdo
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
