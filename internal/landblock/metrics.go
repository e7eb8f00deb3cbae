package landblock

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — Prometheus-метрики ландблоков
type Metrics struct {
	PhaseDuration     *prometheus.HistogramVec
	Transitions       *prometheus.CounterVec
	GuardViolations   *prometheus.CounterVec
	Objects           *prometheus.GaugeVec
	TickAverage       *prometheus.GaugeVec
	PlacementFailures prometheus.Counter
	SaveBatches       prometheus.Counter
	SavedBiotas       prometheus.Counter
	SaveFailures      prometheus.Counter
	DroppedActions    prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg; nil — без регистрации
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "landblock",
			Name:      "phase_duration_seconds",
			Help:      "Длительность фаз тика одного ландблока.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"phase"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "state_transitions_total",
			Help:      "Переходы жизненного цикла ландблоков.",
		}, []string{"to"}),
		GuardViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "guard_violations_total",
			Help:      "Мутации ландблока из чужой группы.",
		}, []string{"op"}),
		Objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "landblock",
			Name:      "objects",
			Help:      "Число объектов в ландблоке.",
		}, []string{"landblock"}),
		TickAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "landblock",
			Name:      "tick_average_seconds",
			Help:      "Скользящее среднее однопоточной фазы за окно монитора.",
		}, []string{"landblock"}),
		PlacementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "placement_failures_total",
			Help:      "Объекты, которые не удалось разместить.",
		}),
		SaveBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "save_batches_total",
			Help:      "Пакеты снимков, отданные на запись.",
		}),
		SavedBiotas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "saved_biotas_total",
			Help:      "Снимки объектов, отданные на запись.",
		}),
		SaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "save_failures_total",
			Help:      "Пакеты, запись которых завершилась ошибкой.",
		}),
		DroppedActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landblock",
			Name:      "dropped_actions_total",
			Help:      "Команды, выброшенные при выгрузке.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PhaseDuration, m.Transitions, m.GuardViolations, m.Objects, m.TickAverage,
			m.PlacementFailures, m.SaveBatches, m.SavedBiotas, m.SaveFailures, m.DroppedActions,
		)
	}
	return m
}

// PerfStats — сводка скользящего монитора однопоточной фазы
type PerfStats struct {
	Samples int           `json:"samples"`
	Average time.Duration `json:"average"`
	Max     time.Duration `json:"max"`
	Last    time.Duration `json:"last"`
}

// perfMonitor копит длительности до конца окна, затем публикует сводку
type perfMonitor struct {
	mu        sync.Mutex
	window    PerfStats
	total     time.Duration
	published PerfStats
	started   time.Time
}

func (m *perfMonitor) record(d time.Duration) {
	m.mu.Lock()
	m.window.Samples++
	m.window.Last = d
	m.total += d
	if d > m.window.Max {
		m.window.Max = d
	}
	m.mu.Unlock()
}

// roll закрывает окно, если оно длиннее interval; true — окно закрыто
func (m *perfMonitor) roll(now time.Time, interval time.Duration) (PerfStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started.IsZero() {
		m.started = now
	}
	if now.Sub(m.started) < interval {
		return m.published, false
	}
	if m.window.Samples > 0 {
		m.window.Average = m.total / time.Duration(m.window.Samples)
	}
	m.published = m.window
	m.window = PerfStats{}
	m.total = 0
	m.started = now
	return m.published, true
}

func (m *perfMonitor) stats() PerfStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published
}
