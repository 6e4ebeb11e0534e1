/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repeditor_stage_total",
			Help: "Pipeline stages executed, by outcome",
		},
		[]string{"operation", "stage", "outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repeditor_stage_duration_seconds",
			Help:    "Wall time of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"operation", "stage"},
	)

	patchStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repeditor_patch_strategy_total",
			Help: "Diffs applied, by the strategy that succeeded",
		},
		[]string{"strategy"},
	)
)

// Stage reports one pipeline stage of operation. Call Done with the stage's
// error when it finishes.
type Stage struct {
	operation string
	stage     string
	start     time.Time
}

// StartStage begins timing stage.
func StartStage(operation, stage string) *Stage {
	return &Stage{operation: operation, stage: stage, start: time.Now()}
}

// Done records the outcome of the stage.
func (s *Stage) Done(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	stageCounter.With(prometheus.Labels{
		"operation": s.operation,
		"stage":     s.stage,
		"outcome":   outcome,
	}).Inc()
	stageDuration.With(prometheus.Labels{
		"operation": s.operation,
		"stage":     s.stage,
	}).Observe(time.Since(s.start).Seconds())
}

// RecordPatchStrategy counts a successful apply by strategy.
func RecordPatchStrategy(strategy string) {
	patchStrategy.With(prometheus.Labels{"strategy": strategy}).Inc()
}
