package game

import (
	"sync"
	"time"

	"github.com/victornm/quizarena/internal/domain"
)

// game is one lobby's active game. Every field is guarded by mu.
type game struct {
	mu sync.Mutex

	state        *domain.GameState
	ended        bool
	questionOpen bool
	timer        *countdown
	startedAt    time.Time
	setIDs       []int64
}

// Registry holds the active games keyed by lobby code.
type Registry struct {
	mu    sync.RWMutex
	games map[string]*game
}

func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]*game),
	}
}

// reserve adds g under code unless another game already holds it.
func (r *Registry) reserve(code string, g *game) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.games[code]; ok {
		return false
	}
	r.games[code] = g
	return true
}

func (r *Registry) get(code string) (*game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.games[code]
	return g, ok
}

// remove deletes code only while it still maps to g.
func (r *Registry) remove(code string, g *game) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.games[code] == g {
		delete(r.games, code)
	}
}

func (r *Registry) all() map[string]*game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[string]*game, len(r.games))
	for code, g := range r.games {
		m[code] = g
	}
	return m
}

// Len returns the number of registered games, including ones still starting.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.games)
}
