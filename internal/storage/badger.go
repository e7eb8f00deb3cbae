package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/annel0/landblock/internal/world/entity"
	"github.com/dgraph-io/badger/v3"
)

// Ключи badger:
//   biota:<guid>          -> сжатый снимок
//   loc:<guid>            -> ландблок последнего сохранения (2 байта)
//   lb:<landblock>:<guid> -> пустое значение, индекс по ландблоку
const (
	biotaPrefix = "biota:"
	locPrefix   = "loc:"
)

// BadgerStore — встроенное хранилище снимков на BadgerDB
type BadgerStore struct {
	db      *badger.DB
	codec   *Codec
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) базу в каталоге path
func NewBadgerStore(path string, codec *Codec) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		codec:   codec,
		isReady: true,
	}, nil
}

func biotaKey(guid entity.ObjectGuid) []byte {
	return []byte(fmt.Sprintf("%s%08X", biotaPrefix, uint32(guid)))
}

func locKey(guid entity.ObjectGuid) []byte {
	return []byte(fmt.Sprintf("%s%08X", locPrefix, uint32(guid)))
}

func landblockPrefix(landblock uint16) []byte {
	return []byte(fmt.Sprintf("lb:%04X:", landblock))
}

func indexKey(landblock uint16, guid entity.ObjectGuid) []byte {
	return append(landblockPrefix(landblock), fmt.Sprintf("%08X", uint32(guid))...)
}

// SaveBiotas пишет пакет одной транзакцией и переносит индекс,
// если объект сменил ландблок
func (s *BadgerStore) SaveBiotas(ctx context.Context, biotas []entity.Biota) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return ErrClosed
	}

	encoded := make([][]byte, len(biotas))
	for i, b := range biotas {
		data, err := s.codec.Encode(b)
		if err != nil {
			return err
		}
		encoded[i] = data
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for i, b := range biotas {
			item, err := txn.Get(locKey(b.Guid))
			switch {
			case err == nil:
				prev, verr := item.ValueCopy(nil)
				if verr != nil {
					return verr
				}
				if len(prev) == 2 {
					if old := binary.BigEndian.Uint16(prev); old != b.Landblock {
						if err := txn.Delete(indexKey(old, b.Guid)); err != nil {
							return err
						}
					}
				}
			case errors.Is(err, badger.ErrKeyNotFound):
			default:
				return err
			}

			loc := make([]byte, 2)
			binary.BigEndian.PutUint16(loc, b.Landblock)
			if err := txn.Set(locKey(b.Guid), loc); err != nil {
				return err
			}
			if err := txn.Set(indexKey(b.Landblock, b.Guid), []byte{}); err != nil {
				return err
			}
			if err := txn.Set(biotaKey(b.Guid), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

func (s *BadgerStore) LoadLandblock(ctx context.Context, landblock uint16) ([]entity.Biota, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return nil, ErrClosed
	}

	out := make([]entity.Biota, 0)
	prefix := landblockPrefix(landblock)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := it.Item().Key()[len(prefix):]
			guid, err := strconv.ParseUint(string(raw), 16, 32)
			if err != nil {
				return fmt.Errorf("битый ключ индекса %q: %w", it.Item().Key(), err)
			}

			item, err := txn.Get(biotaKey(entity.ObjectGuid(guid)))
			if err != nil {
				return fmt.Errorf("biota %08X из индекса: %w", guid, err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			b, err := s.codec.Decode(data)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки ландблока %04X: %w", landblock, err)
	}
	return out, nil
}

func (s *BadgerStore) LoadBiota(ctx context.Context, guid entity.ObjectGuid) (entity.Biota, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return entity.Biota{}, ErrClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(biotaKey(guid))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entity.Biota{}, ErrNotFound
	}
	if err != nil {
		return entity.Biota{}, fmt.Errorf("ошибка чтения biota %s: %w", guid, err)
	}
	return s.codec.Decode(data)
}

// Close закрывает хранилище
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	s.codec.Close()
	return s.db.Close()
}
