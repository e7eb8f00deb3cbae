package world

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/eventbus"
	"github.com/annel0/landblock/internal/landblock"
	"github.com/annel0/landblock/internal/logging"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options — параметры менеджера мира
type Options struct {
	Services      landblock.Services
	Loader        Loader
	MaxParallel   int // групп, тикаемых одновременно; 0 — по числу CPU
	TickRate      time.Duration
	StatsInterval time.Duration
	Permaload     []landblock.ID
	Dungeons      []landblock.ID
	Registerer    prometheus.Registerer
}

// Manager владеет загруженными ландблоками, связывает соседей,
// делит мир на группы и ведёт трёхфазный тик
type Manager struct {
	svc         landblock.Services
	loader      Loader
	log         *logging.Logger
	maxParallel int
	tickRate    time.Duration
	statsEvery  time.Duration
	permaload   map[landblock.ID]bool
	dungeons    map[landblock.ID]bool

	// tickMu сериализует тик и внешние изменения состава мира
	tickMu sync.Mutex

	mu          sync.RWMutex
	landblocks  map[landblock.ID]*landblock.Landblock
	groups      [][]*landblock.Landblock
	groupsDirty bool
	unloadReq   map[landblock.ID]struct{}

	metrics    *worldMetrics
	stats      tickStats
	procSample atomic.Pointer[procSample]
}

// NewManager создаёт пустой мир
func NewManager(opts Options) *Manager {
	svc := opts.Services
	if svc.Clock == nil {
		svc.Clock = landblock.SystemClock{}
	}
	if svc.State == nil {
		svc.State = &landblock.TickState{}
	}
	if svc.Metrics == nil {
		svc.Metrics = landblock.NewMetrics(nil)
	}
	if svc.Log == nil {
		svc.Log = logging.NewNop()
	}

	if opts.MaxParallel <= 0 {
		opts.MaxParallel = runtime.NumCPU()
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 50 * time.Millisecond
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 30 * time.Second
	}

	m := &Manager{
		svc:         svc,
		loader:      opts.Loader,
		log:         svc.Log,
		maxParallel: opts.MaxParallel,
		tickRate:    opts.TickRate,
		statsEvery:  opts.StatsInterval,
		permaload:   make(map[landblock.ID]bool),
		dungeons:    make(map[landblock.ID]bool),
		landblocks:  make(map[landblock.ID]*landblock.Landblock),
		unloadReq:   make(map[landblock.ID]struct{}),
		metrics:     newWorldMetrics(opts.Registerer),
	}
	for _, id := range opts.Permaload {
		m.permaload[id] = true
	}
	for _, id := range opts.Dungeons {
		m.dungeons[id] = true
	}
	return m
}

// Services возвращает общие зависимости ландблоков
func (m *Manager) Services() landblock.Services { return m.svc }

// GetLandblock возвращает загруженный ландблок или загружает его
func (m *Manager) GetLandblock(ctx context.Context, id landblock.ID, permaload bool) (*landblock.Landblock, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.getOrLoad(ctx, id, permaload)
}

// Landblock возвращает уже загруженный ландблок
func (m *Manager) Landblock(id landblock.ID) (*landblock.Landblock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.landblocks[id]
	return l, ok
}

// Landblocks возвращает загруженные ландблоки в порядке идентификаторов
func (m *Manager) Landblocks() []*landblock.Landblock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// Inspect выполняет fn между тиками: объекты мира в это время не меняются.
// fn не должен вызывать методы менеджера, берущие tickMu.
func (m *Manager) Inspect(fn func()) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	fn()
}

// AddObject кладёт объект в ландблок по его позиции, загружая ландблок при необходимости
func (m *Manager) AddObject(ctx context.Context, obj entity.WorldObject) (*landblock.Landblock, error) {
	base := obj.Base()
	if base.Location == nil {
		return nil, fmt.Errorf("object %s has no location", base.Guid())
	}
	id, ok := landblock.IDFromPosition(*base.Location)
	if !ok {
		return nil, fmt.Errorf("object %s is outside the world", base.Guid())
	}

	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	l, err := m.getOrLoad(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !l.AddWorldObject(ctx, obj) {
		return nil, fmt.Errorf("object %s: placement in %s failed", base.Guid(), id)
	}
	return l, nil
}

// RequestUnload ставит ландблок в очередь на выгрузку в конце ближайшего тика
func (m *Manager) RequestUnload(id landblock.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.landblocks[id]; !ok {
		return false
	}
	m.unloadReq[id] = struct{}{}
	return true
}

func (m *Manager) getOrLoad(ctx context.Context, id landblock.ID, permaload bool) (*landblock.Landblock, error) {
	m.mu.RLock()
	l, ok := m.landblocks[id]
	m.mu.RUnlock()
	if ok {
		return l, nil
	}

	l = landblock.New(id, m.svc, landblock.Options{
		Permaload: permaload || m.permaload[id],
		Dungeon:   m.dungeons[id],
	})

	if m.loader != nil {
		objs, err := m.loader.LoadLandblock(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			if !l.AddWorldObject(ctx, obj) {
				m.log.Zap().Warn("сохранённый объект не размещён",
					zap.Stringer("landblock", id), zap.Stringer("guid", obj.Base().Guid()))
			}
		}
		l.ApplyPendingMutations()
	}

	m.mu.Lock()
	m.landblocks[id] = l
	m.groupsDirty = true
	m.mu.Unlock()
	m.wireAdjacency(l)

	m.metrics.loaded.Set(float64(m.count()))
	m.log.Zap().Info("ландблок загружен", zap.Stringer("landblock", id),
		zap.Int("objects", l.ObjectCount()), zap.Bool("permaload", l.Permaload()))
	m.publish(ctx, id, eventbus.EventLandblockLoaded, eventbus.LandblockEvent{Objects: l.ObjectCount()})
	return l, nil
}

// wireAdjacency связывает l с загруженными соседями; подземелья соседей не имеют
func (m *Manager) wireAdjacency(l *landblock.Landblock) {
	l.SetAdjacents(m.loadedNeighbours(l))
	for _, n := range l.Adjacents() {
		n.SetAdjacents(m.loadedNeighbours(n))
	}
}

func (m *Manager) loadedNeighbours(l *landblock.Landblock) []*landblock.Landblock {
	if l.IsDungeon() {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*landblock.Landblock
	for _, nid := range l.ID().Neighbours() {
		if n, ok := m.landblocks[nid]; ok && !n.IsDungeon() {
			out = append(out, n)
		}
	}
	return out
}

// unload выгружает ландблок и перевязывает его бывших соседей
func (m *Manager) unload(ctx context.Context, l *landblock.Landblock) {
	neighbours := l.Adjacents()
	l.Unload(ctx)

	m.mu.Lock()
	delete(m.landblocks, l.ID())
	delete(m.unloadReq, l.ID())
	m.groupsDirty = true
	m.mu.Unlock()

	for _, n := range neighbours {
		n.SetAdjacents(m.loadedNeighbours(n))
	}
	m.metrics.loaded.Set(float64(m.count()))
}

// Shutdown выгружает все ландблоки. Run к этому моменту должен быть остановлен.
func (m *Manager) Shutdown(ctx context.Context) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	all := m.Landblocks()
	for _, l := range all {
		m.unload(ctx, l)
	}
	m.log.Zap().Info("мир остановлен", zap.Int("unloaded", len(all)))
}

func (m *Manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.landblocks)
}

func (m *Manager) sortedLocked() []*landblock.Landblock {
	out := make([]*landblock.Landblock, 0, len(m.landblocks))
	for _, l := range m.landblocks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (m *Manager) publish(ctx context.Context, id landblock.ID, eventType string, ev eventbus.LandblockEvent) {
	if m.svc.Bus == nil {
		return
	}
	ev.Landblock = id.String()
	env, err := eventbus.NewEnvelope(id.String(), eventType, 1, ev)
	if err == nil {
		err = m.svc.Bus.Publish(ctx, env)
	}
	if err != nil {
		m.log.Zap().Warn("публикация события не удалась", zap.String("type", eventType), zap.Error(err))
	}
}
