package telemetry_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizarena/internal/telemetry"
)

func TestGameMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	active := 3
	m := telemetry.NewGameMetrics(reg, func() int { return active })

	m.GameStarted()
	m.GameStarted()
	m.GameEnded(90 * time.Second)
	m.AnswerScored(true)
	m.AnswerScored(true)
	m.AnswerScored(false)

	n, err := testutil.GatherAndCount(reg, "quizarena_games_started_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	families, err := reg.Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				key := f.GetName()
				for _, l := range metric.GetLabel() {
					key += "/" + l.GetValue()
				}
				got[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				got[f.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				got[f.GetName()] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, map[string]float64{
		"quizarena_games_started_total":   2,
		"quizarena_games_ended_total":     1,
		"quizarena_game_duration_seconds": 1,
		"quizarena_answers_total/true":    2,
		"quizarena_answers_total/false":   1,
		"quizarena_active_games":          3,
	}, got)
}
