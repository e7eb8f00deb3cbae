package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/annel0/landblock/internal/world/entity"
)

// MemoryStore реализует Store в памяти.
// Используется в тестах и для локальной разработки без БД.
// ВНИМАНИЕ: данные теряются при перезапуске сервера!
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[entity.ObjectGuid]entity.Biota
	closed bool
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[entity.ObjectGuid]entity.Biota)}
}

// SaveBiotas сохраняет копии снимков
func (s *MemoryStore) SaveBiotas(ctx context.Context, biotas []entity.Biota) error {
	// Проверяем контекст на отмену
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, b := range biotas {
		s.data[b.Guid] = cloneBiota(b)
	}
	return nil
}

func (s *MemoryStore) LoadLandblock(ctx context.Context, landblock uint16) ([]entity.Biota, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]entity.Biota, 0)
	for _, b := range s.data {
		if b.Landblock == landblock {
			out = append(out, cloneBiota(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Guid < out[j].Guid })
	return out, nil
}

func (s *MemoryStore) LoadBiota(ctx context.Context, guid entity.ObjectGuid) (entity.Biota, error) {
	if err := ctx.Err(); err != nil {
		return entity.Biota{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return entity.Biota{}, ErrClosed
	}
	b, ok := s.data[guid]
	if !ok {
		return entity.Biota{}, ErrNotFound
	}
	return cloneBiota(b), nil
}

// Len возвращает число сохранённых объектов
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func cloneBiota(b entity.Biota) entity.Biota {
	if b.Properties != nil {
		props := make(map[string]string, len(b.Properties))
		for k, v := range b.Properties {
			props[k] = v
		}
		b.Properties = props
	}
	return b
}
