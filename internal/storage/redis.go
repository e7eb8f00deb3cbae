package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/annel0/landblock/internal/world/entity"
	"github.com/go-redis/redis/v8"
)

// RedisOptions содержит настройки подключения к Redis
type RedisOptions struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
}

// RedisStore хранит снимки в Redis: строка на объект и множество guid на ландблок
type RedisStore struct {
	client    *redis.Client
	codec     *Codec
	keyPrefix string
	closed    atomic.Bool
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, opts RedisOptions, codec *Codec) (*RedisStore, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "landblock:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, codec: codec, keyPrefix: opts.KeyPrefix}, nil
}

func (s *RedisStore) biotaKey(guid entity.ObjectGuid) string {
	return fmt.Sprintf("%sbiota:%08X", s.keyPrefix, uint32(guid))
}

func (s *RedisStore) locKey(guid entity.ObjectGuid) string {
	return fmt.Sprintf("%sloc:%08X", s.keyPrefix, uint32(guid))
}

func (s *RedisStore) setKey(landblock uint16) string {
	return fmt.Sprintf("%slb:%04X", s.keyPrefix, landblock)
}

// SaveBiotas сначала читает прежние ландблоки пайплайном, затем
// в транзакции MULTI/EXEC пишет снимки и переносит индексы
func (s *RedisStore) SaveBiotas(ctx context.Context, biotas []entity.Biota) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(biotas) == 0 {
		return nil
	}

	encoded := make([][]byte, len(biotas))
	for i, b := range biotas {
		data, err := s.codec.Encode(b)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	pipe := s.client.Pipeline()
	prev := make([]*redis.StringCmd, len(biotas))
	for i, b := range biotas {
		prev[i] = pipe.Get(ctx, s.locKey(b.Guid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read locations: %w", err)
	}

	_, err := s.client.TxPipelined(ctx, func(tx redis.Pipeliner) error {
		for i, b := range biotas {
			if old, err := prev[i].Int(); err == nil && uint16(old) != b.Landblock {
				tx.SRem(ctx, s.setKey(uint16(old)), uint32(b.Guid))
			}
			tx.Set(ctx, s.biotaKey(b.Guid), encoded[i], 0)
			tx.Set(ctx, s.locKey(b.Guid), int(b.Landblock), 0)
			tx.SAdd(ctx, s.setKey(b.Landblock), uint32(b.Guid))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadLandblock(ctx context.Context, landblock uint16) ([]entity.Biota, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	members, err := s.client.SMembers(ctx, s.setKey(landblock)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read landblock %04X: %w", landblock, err)
	}
	out := make([]entity.Biota, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		guid, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("битый guid %q в индексе: %w", m, err)
		}
		keys = append(keys, s.biotaKey(entity.ObjectGuid(guid)))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get biotas: %w", err)
	}
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // Пропускаем отсутствующие
		}
		b, err := s.codec.Decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Guid < out[j].Guid })
	return out, nil
}

func (s *RedisStore) LoadBiota(ctx context.Context, guid entity.ObjectGuid) (entity.Biota, error) {
	if s.closed.Load() {
		return entity.Biota{}, ErrClosed
	}

	data, err := s.client.Get(ctx, s.biotaKey(guid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.Biota{}, ErrNotFound
	}
	if err != nil {
		return entity.Biota{}, fmt.Errorf("failed to get biota %s: %w", guid, err)
	}
	return s.codec.Decode(data)
}

// Close закрывает соединение с Redis
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.codec.Close()
	return s.client.Close()
}
