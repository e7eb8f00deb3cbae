package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/landblock/internal/world/entity"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

// goose хранит диалект и FS в глобальных переменных
var migrateMu sync.Mutex

type sqlDialect struct {
	goose  string
	upsert string
	byLB   string
	byGuid string
}

var dialects = map[string]sqlDialect{
	"mysql": {
		goose: "mysql",
		upsert: `INSERT INTO biotas (guid, landblock, kind, data, saved_at) VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE landblock = VALUES(landblock), kind = VALUES(kind),
			data = VALUES(data), saved_at = VALUES(saved_at)`,
		byLB:   `SELECT data FROM biotas WHERE landblock = ? ORDER BY guid`,
		byGuid: `SELECT data FROM biotas WHERE guid = ?`,
	},
	"postgres": {
		goose: "postgres",
		upsert: `INSERT INTO biotas (guid, landblock, kind, data, saved_at) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (guid) DO UPDATE SET landblock = EXCLUDED.landblock, kind = EXCLUDED.kind,
			data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`,
		byLB:   `SELECT data FROM biotas WHERE landblock = $1 ORDER BY guid`,
		byGuid: `SELECT data FROM biotas WHERE guid = $1`,
	},
	"sqlite": {
		goose: "sqlite3",
		upsert: `INSERT INTO biotas (guid, landblock, kind, data, saved_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (guid) DO UPDATE SET landblock = excluded.landblock, kind = excluded.kind,
			data = excluded.data, saved_at = excluded.saved_at`,
		byLB:   `SELECT data FROM biotas WHERE landblock = ? ORDER BY guid`,
		byGuid: `SELECT data FROM biotas WHERE guid = ?`,
	},
}

// SQLStore реализует Store поверх database/sql: MySQL/MariaDB, PostgreSQL (pgx) и SQLite.
// Схема создаётся миграциями goose при открытии.
type SQLStore struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	backend string
	dialect sqlDialect
	codec   *Codec

	mu     sync.RWMutex
	closed bool
}

// OpenSQL подключается к базе и применяет миграции.
//
// Параметры:
//
//	backend - mysql | postgres | sqlite
//	dsn - строка подключения (для sqlite — путь к файлу)
func OpenSQL(ctx context.Context, backend, dsn string, codec *Codec) (*SQLStore, error) {
	d, ok := dialects[backend]
	if !ok {
		return nil, fmt.Errorf("неизвестный SQL backend %q", backend)
	}
	s := &SQLStore{backend: backend, dialect: d, codec: codec}

	switch backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.pool = pool
		s.db = stdlib.OpenDBFromPool(pool)
	case "sqlite":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
		}
		// один писатель, иначе SQLITE_BUSY
		db.SetMaxOpenConns(1)
		s.db = db
	default:
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		s.db = db
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		s.closeConn()
		return nil, fmt.Errorf("ping %s: %w", backend, err)
	}

	if backend == "sqlite" {
		if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
			s.closeConn()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	if err := s.migrate(ctx); err != nil {
		s.closeConn()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(s.dialect.goose); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations/"+s.backend); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// SaveBiotas выполняет upsert пакета в одной транзакции
func (s *SQLStore) SaveBiotas(ctx context.Context, biotas []entity.Biota) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range biotas {
		data, err := s.codec.Encode(b)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, int64(b.Guid), int64(b.Landblock), int64(b.Kind), data, b.SavedAt.UnixNano()); err != nil {
			return fmt.Errorf("upsert biota %s: %w", b.Guid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) LoadLandblock(ctx context.Context, landblock uint16) ([]entity.Biota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.byLB, int64(landblock))
	if err != nil {
		return nil, fmt.Errorf("query landblock %04X: %w", landblock, err)
	}
	defer rows.Close()

	out := make([]entity.Biota, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan biota: %w", err)
		}
		b, err := s.codec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLStore) LoadBiota(ctx context.Context, guid entity.ObjectGuid) (entity.Biota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return entity.Biota{}, ErrClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.byGuid, int64(guid)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Biota{}, ErrNotFound
	}
	if err != nil {
		return entity.Biota{}, fmt.Errorf("query biota %s: %w", guid, err)
	}
	return s.codec.Decode(data)
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.codec.Close()
	return s.closeConn()
}

func (s *SQLStore) closeConn() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
