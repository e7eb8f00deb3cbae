package world

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/landblock/internal/landblock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

type worldMetrics struct {
	loaded prometheus.Gauge
	groups prometheus.Gauge
	tick   prometheus.Histogram
}

func newWorldMetrics(reg prometheus.Registerer) *worldMetrics {
	m := &worldMetrics{
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "world_landblocks_loaded",
			Help: "Загруженные ландблоки",
		}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "world_groups",
			Help: "Группы ландблоков, тикаемые параллельно",
		}),
		tick: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "world_tick_duration_seconds",
			Help:    "Длительность полного тика мира",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.loaded, m.groups, m.tick)
	}
	return m
}

// tickStats — счётчики тиков
type tickStats struct {
	ticks atomic.Uint64
	last  atomic.Int64
	max   atomic.Int64
}

func (s *tickStats) record(d time.Duration) {
	s.ticks.Add(1)
	s.last.Store(int64(d))
	for {
		cur := s.max.Load()
		if int64(d) <= cur || s.max.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Stats — сводка состояния мира
type Stats struct {
	Landblocks int           `json:"landblocks"`
	Dormant    int           `json:"dormant"`
	Groups     int           `json:"groups"`
	Objects    int           `json:"objects"`
	Ticks      uint64        `json:"ticks"`
	LastTick   time.Duration `json:"last_tick"`
	MaxTick    time.Duration `json:"max_tick"`
	Goroutines int           `json:"goroutines"`
	CPUPercent float64       `json:"cpu_percent"`
	RSSMB      float64       `json:"rss_mb"`
}

// Stats собирает сводку; показатели процесса берутся из последнего замера коллектора
func (m *Manager) Stats() Stats {
	all := m.Landblocks()
	s := Stats{
		Landblocks: len(all),
		Groups:     len(m.Groups()),
		Ticks:      m.stats.ticks.Load(),
		LastTick:   time.Duration(m.stats.last.Load()),
		MaxTick:    time.Duration(m.stats.max.Load()),
		Goroutines: runtime.NumGoroutine(),
	}
	for _, l := range all {
		s.Objects += l.ObjectCount()
		if l.State() == landblock.StateDormant {
			s.Dormant++
		}
	}
	proc := m.procSample.Load()
	if proc != nil {
		s.CPUPercent = proc.cpu
		s.RSSMB = proc.rssMB
	}
	return s
}

type procSample struct {
	cpu   float64
	rssMB float64
}

// Run тикает мир с частотой TickRate до отмены ctx
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tickRate)
	defer ticker.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.statsCollector(ctx)
	}()
	defer wg.Wait()

	m.log.Zap().Info("мир запущен", zap.Duration("tick_rate", m.tickRate), zap.Int("max_parallel", m.maxParallel))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Tick(ctx, m.svc.Clock.Now()); err != nil && ctx.Err() == nil {
				m.log.Zap().Error("тик мира прерван", zap.Error(err))
			}
		}
	}
}

// statsCollector раз в StatsInterval снимает нагрузку процесса и пишет сводку в лог
func (m *Manager) statsCollector(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Zap().Warn("метрики процесса недоступны", zap.Error(err))
	}

	ticker := time.NewTicker(m.statsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if proc != nil {
				sample := &procSample{}
				if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
					sample.cpu = cpu
				}
				if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
					sample.rssMB = float64(mem.RSS) / 1024 / 1024
				}
				m.procSample.Store(sample)
			}

			s := m.Stats()
			m.log.Zap().Info("📊 мир",
				zap.Int("landblocks", s.Landblocks),
				zap.Int("dormant", s.Dormant),
				zap.Int("groups", s.Groups),
				zap.Int("objects", s.Objects),
				zap.Duration("last_tick", s.LastTick),
				zap.Float64("cpu_percent", s.CPUPercent),
				zap.Float64("rss_mb", s.RSSMB),
			)
		}
	}
}
