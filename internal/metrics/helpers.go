package metrics

import (
	"strconv"
	"time"
)

// Metric names recorded during a calibration run
const (
	MetricEvaluationSeconds   = "evaluation_seconds"
	MetricEvaluationFailures  = "evaluation_failures"
	MetricGenerationBest      = "generation_best_fitness"
	MetricGenerationSpread    = "generation_fitness_std"
	MetricGenerationFailures  = "generation_failures"
	MetricGenerationEvaluated = "generation_evaluations"
	MetricQueueWaitSeconds    = "queue_wait_seconds"
)

// RecordEvaluation records the latency of one evaluation. A non-empty
// failureKind also counts a failure under that kind.
func RecordEvaluation(collector *Collector, elapsed time.Duration, failureKind string, timestamp time.Time) {
	collector.Record(MetricEvaluationSeconds, elapsed.Seconds(), timestamp, nil)
	if failureKind != "" {
		collector.Record(MetricEvaluationFailures, 1, timestamp, FailureLabels(failureKind))
	}
}

// RecordGeneration records the per-generation fitness trace
func RecordGeneration(collector *Collector, generation int, bestFitness, spread float64, failures, evaluations int, timestamp time.Time) {
	labels := GenerationLabels(generation)
	collector.Record(MetricGenerationBest, bestFitness, timestamp, nil)
	collector.Record(MetricGenerationSpread, spread, timestamp, nil)
	collector.Record(MetricGenerationFailures, float64(failures), timestamp, labels)
	collector.Record(MetricGenerationEvaluated, float64(evaluations), timestamp, nil)
}

// FailureLabels creates labels for a simulation failure kind
func FailureLabels(kind string) map[string]string {
	return map[string]string{"kind": kind}
}

// GenerationLabels creates labels for a generation index
func GenerationLabels(generation int) map[string]string {
	return map[string]string{"generation": strconv.Itoa(generation)}
}

// FailureCounts sums recorded failures per kind
func FailureCounts(collector *Collector) map[string]int {
	out := make(map[string]int)
	for _, labels := range collector.GetLabelsForMetric(MetricEvaluationFailures) {
		if agg := collector.GetAggregation(MetricEvaluationFailures, labels); agg != nil {
			out[labels["kind"]] = int(agg.Sum)
		}
	}
	return out
}

// BestTrace returns the recorded best fitness per generation in order
func BestTrace(collector *Collector) []float64 {
	points := collector.GetTimeSeries(MetricGenerationBest, nil)
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
