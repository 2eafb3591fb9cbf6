package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/domain"
)

// memrepo is the in-process Repository used when no database is configured.
type memrepo struct {
	mu        sync.RWMutex
	nextID    int64
	bySession map[string]*domain.FinishedGame
}

func NewMemoryRepository() Repository {
	return &memrepo{bySession: make(map[string]*domain.FinishedGame)}
}

func (m *memrepo) Save(_ context.Context, g *domain.FinishedGame) (int64, error) {
	if g == nil {
		return 0, nil
	}
	key := strings.TrimSpace(g.SessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyGame(g)
	if prev, ok := m.bySession[key]; ok {
		cp.ID = prev.ID
	} else {
		m.nextID++
		cp.ID = m.nextID
	}
	m.bySession[key] = cp
	return cp.ID, nil
}

func (m *memrepo) Get(_ context.Context, sessionID string) (*domain.FinishedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.bySession[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, ErrGameNotFound
	}
	return copyGame(g), nil
}

func (m *memrepo) Recent(_ context.Context, limit int) ([]*domain.FinishedGame, error) {
	m.mu.RLock()
	items := make([]*domain.FinishedGame, 0, len(m.bySession))
	for _, g := range m.bySession {
		items = append(items, copyGame(g))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit <= 0 {
		limit = 10
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) Close() error { return nil }

func copyGame(g *domain.FinishedGame) *domain.FinishedGame {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
