package repo

import (
	"context"
	"sync"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/model"
)

// MemoryHistoryRepository is the process-local history store used when no
// Redis URL is configured. Each owner's items are kept newest first.
type MemoryHistoryRepository struct {
	mu       sync.RWMutex
	owners   map[string][]*model.HistoryItem
	maxItems int
}

func NewMemoryHistoryRepository(maxItems int) *MemoryHistoryRepository {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &MemoryHistoryRepository{owners: make(map[string][]*model.HistoryItem), maxItems: maxItems}
}

func (m *MemoryHistoryRepository) AddItem(_ context.Context, owner string, item *model.HistoryItem) error {
	if item == nil || item.ID == "" {
		return errx.InvalidInput("history item without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.remove(owner, item.ID)
	items := append([]*model.HistoryItem{cloneItem(item)}, m.owners[owner]...)
	if len(items) > m.maxItems {
		items = items[:m.maxItems]
	}
	m.owners[owner] = items
	return nil
}

func (m *MemoryHistoryRepository) UpdateItem(_ context.Context, owner string, item *model.HistoryItem) error {
	if item == nil || item.ID == "" {
		return errx.InvalidInput("history item without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.remove(owner, item.ID) {
		return errx.NotFound("history item " + item.ID)
	}
	m.owners[owner] = append([]*model.HistoryItem{cloneItem(item)}, m.owners[owner]...)
	return nil
}

func (m *MemoryHistoryRepository) GetItem(_ context.Context, owner, id string) (*model.HistoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.owners[owner] {
		if it.ID == id {
			return cloneItem(it), nil
		}
	}
	return nil, errx.NotFound("history item " + id)
}

func (m *MemoryHistoryRepository) ListItems(_ context.Context, owner string) ([]*model.HistoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.owners[owner]
	out := make([]*model.HistoryItem, 0, len(items))
	for _, it := range items {
		out = append(out, cloneItem(it))
	}
	return out, nil
}

func (m *MemoryHistoryRepository) DeleteItem(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(owner, id)
	return nil
}

// remove deletes id from the owner's slice; callers hold the write lock.
func (m *MemoryHistoryRepository) remove(owner, id string) bool {
	items := m.owners[owner]
	for i, it := range items {
		if it.ID == id {
			m.owners[owner] = append(items[:i], items[i+1:]...)
			return true
		}
	}
	return false
}

func cloneItem(it *model.HistoryItem) *model.HistoryItem {
	c := *it
	c.Messages = append(c.Messages[:0:0], it.Messages...)
	return &c
}

var _ model.HistoryRepository = (*MemoryHistoryRepository)(nil)
