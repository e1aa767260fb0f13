package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lesson-quiz-service/internal/domain"
)

const namespace = "quiz"

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Quiz submissions started, by trigger (manual or timeout).",
	}, []string{"trigger"})

	SessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_failures_total",
		Help:      "Repository failures surfaced to players, by phase.",
	}, []string{"phase"})

	StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_responses_total",
		Help:      "Repository responses dropped because the session moved on.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Quiz sessions currently attached to a connection.",
	})

	attemptScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "attempt_score_percent",
		Help:      "Distribution of recorded attempt scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	attemptsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_recorded_total",
		Help:      "Attempts recorded by the scoring service.",
	})
)

// ObserveAttempt records a scored attempt.
func ObserveAttempt(e domain.EventAttemptRecorded) {
	attemptsRecorded.Inc()
	attemptScores.Observe(float64(e.Attempt.Score))
}
