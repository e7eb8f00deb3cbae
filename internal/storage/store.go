package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/annel0/landblock/internal/config"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/world/entity"
)

var (
	// ErrClosed — хранилище уже закрыто
	ErrClosed = errors.New("storage: closed")
	// ErrNotFound — объект с таким guid не сохранялся
	ErrNotFound = errors.New("storage: biota not found")
)

// Store определяет интерфейс сохранения снимков объектов (biota).
// Снимки привязаны к guid объекта и индексируются по ландблоку,
// в котором объект находился при последнем сохранении.
type Store interface {
	// SaveBiotas сохраняет пакет снимков.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   biotas - снимки; повторное сохранение guid перезаписывает запись
	//            и переносит её в индекс нового ландблока
	// Возвращает:
	//   error - ошибка при сохранении
	SaveBiotas(ctx context.Context, biotas []entity.Biota) error

	// LoadLandblock загружает все объекты ландблока, включая содержимое контейнеров.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   landblock - идентификатор ландблока
	// Возвращает:
	//   []entity.Biota - снимки в порядке guid; пустой срез, если ничего нет
	//   error - ошибка при загрузке
	LoadLandblock(ctx context.Context, landblock uint16) ([]entity.Biota, error)

	// LoadBiota загружает один объект.
	// Возвращает ErrNotFound, если объект не сохранялся.
	LoadBiota(ctx context.Context, guid entity.ObjectGuid) (entity.Biota, error)

	// Close освобождает ресурсы хранилища
	Close() error
}

// Open создаёт хранилище по конфигурации.
// Backend: badger (по умолчанию), mysql, postgres, sqlite, redis, mongo, memory.
func Open(ctx context.Context, cfg config.StorageConfig, log *logging.Logger) (Store, error) {
	if log == nil {
		log = logging.NewNop()
	}

	backend := strings.ToLower(cfg.Backend)
	if backend == "" {
		backend = "badger"
	}
	if backend == "memory" {
		log.Warn("хранилище в памяти: данные теряются при перезапуске")
		return NewMemoryStore(), nil
	}

	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}

	var store Store
	switch backend {
	case "badger":
		store, err = NewBadgerStore(filepath.Join(cfg.Path, "biotas"), codec)
	case "mysql", "postgres", "sqlite":
		dsn := cfg.DSN
		if backend == "sqlite" && dsn == "" {
			dsn = filepath.Join(cfg.Path, "biotas.db")
		}
		store, err = OpenSQL(ctx, backend, dsn, codec)
	case "redis":
		store, err = NewRedisStore(ctx, RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, codec)
	case "mongo":
		store, err = NewMongoStore(ctx, MongoOptions{URI: cfg.DSN, Database: cfg.Database}, codec)
	default:
		err = fmt.Errorf("неизвестный backend хранилища %q", cfg.Backend)
	}
	if err != nil {
		codec.Close()
		return nil, err
	}

	log.Info("хранилище %s открыто", backend)
	return store, nil
}
