package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WriterOptions задаёт параллелизм асинхронной записи
type WriterOptions struct {
	Workers   int           // одновременных записей в хранилище
	ChunkSize int           // снимков в одной транзакции
	Timeout   time.Duration // на весь пакет
}

// WriterStats — счётчики записи для админки
type WriterStats struct {
	Batches  uint64 `json:"batches"`
	Biotas   uint64 `json:"biotas"`
	Failures uint64 `json:"failures"`
	InFlight int64  `json:"in_flight"`
}

// Writer принимает пакеты снимков от ландблоков и пишет их в фоне,
// не задерживая тик. Пакет режется на части, части пишутся параллельно,
// общее число одновременных записей ограничено Workers.
type Writer struct {
	store Store
	opts  WriterOptions
	log   *logging.Logger

	slots chan struct{}
	mu    sync.Mutex
	wg    sync.WaitGroup

	closed   bool
	batches  atomic.Uint64
	biotas   atomic.Uint64
	failures atomic.Uint64
	inFlight atomic.Int64
}

func NewWriter(store Store, opts WriterOptions, log *logging.Logger) *Writer {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Writer{
		store: store,
		opts:  opts,
		log:   log,
		slots: make(chan struct{}, opts.Workers),
	}
}

// SaveBiotasInParallel ставит пакет на запись и сразу возвращается.
// done вызывается из фоновой горутины с результатом записи всего пакета.
// Отмена ctx не прерывает запись: пакет, принятый до остановки, дописывается.
func (w *Writer) SaveBiotasInParallel(ctx context.Context, batch []entity.BiotaEntry, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if len(batch) == 0 {
		done(nil)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		done(ErrClosed)
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	w.inFlight.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.inFlight.Add(-1)

		start := time.Now()
		err := w.write(context.WithoutCancel(ctx), batch)
		w.batches.Add(1)
		if err != nil {
			w.failures.Add(1)
		} else {
			w.biotas.Add(uint64(len(batch)))
			w.log.Zap().Debug("пакет записан", zap.Int("biotas", len(batch)), zap.Duration("took", time.Since(start)))
		}
		done(err)
	}()
}

func (w *Writer) write(ctx context.Context, batch []entity.BiotaEntry) error {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(batch); start += w.opts.ChunkSize {
		end := min(start+w.opts.ChunkSize, len(batch))
		chunk := batch[start:end]
		g.Go(func() error {
			return w.writeChunk(gctx, chunk)
		})
	}
	return g.Wait()
}

// writeChunk держит токены блокировки объектов на чтение, пока часть пишется
func (w *Writer) writeChunk(ctx context.Context, chunk []entity.BiotaEntry) error {
	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.slots }()

	biotas := make([]entity.Biota, len(chunk))
	for i, e := range chunk {
		if e.Lock != nil {
			e.Lock.RLock()
		}
		biotas[i] = e.Biota
	}
	defer func() {
		for _, e := range chunk {
			if e.Lock != nil {
				e.Lock.RUnlock()
			}
		}
	}()

	if err := w.store.SaveBiotas(ctx, biotas); err != nil {
		return fmt.Errorf("save %d biotas (first %s): %w", len(biotas), biotas[0].Guid, err)
	}
	return nil
}

// Stats возвращает счётчики записи
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Batches:  w.batches.Load(),
		Biotas:   w.biotas.Load(),
		Failures: w.failures.Load(),
		InFlight: w.inFlight.Load(),
	}
}

// Close перестаёт принимать пакеты и ждёт уже принятые
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("writer: %d пакетов не дописано: %w", w.inFlight.Load(), ctx.Err())
	}
}
