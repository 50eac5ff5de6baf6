package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quizarena"

// GameMetrics records the game lifecycle in prometheus.
type GameMetrics struct {
	started  prometheus.Counter
	ended    prometheus.Counter
	duration prometheus.Histogram
	answers  *prometheus.CounterVec
}

// NewGameMetrics registers the game metrics on reg. activeGames reports the
// number of games currently in memory.
func NewGameMetrics(reg prometheus.Registerer, activeGames func() int) *GameMetrics {
	m := &GameMetrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Number of games started.",
		}),
		ended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Number of games ended.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "game_duration_seconds",
			Help:      "Wall time of finished games.",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800},
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Number of scored answers.",
		}, []string{"correct"}),
	}

	reg.MustRegister(m.started, m.ended, m.duration, m.answers)
	if activeGames != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Number of games in progress.",
		}, func() float64 { return float64(activeGames()) }))
	}

	return m
}

func (m *GameMetrics) GameStarted() {
	m.started.Inc()
}

func (m *GameMetrics) GameEnded(d time.Duration) {
	m.ended.Inc()
	m.duration.Observe(d.Seconds())
}

func (m *GameMetrics) AnswerScored(correct bool) {
	if correct {
		m.answers.WithLabelValues("true").Inc()
		return
	}
	m.answers.WithLabelValues("false").Inc()
}
