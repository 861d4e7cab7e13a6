package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/models"
)

// Collector collects time-series metrics for a calibration run
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	// metric name -> label key -> points
	series map[string]map[string][]models.MetricPoint
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		series:    make(map[string]map[string][]models.MetricPoint),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a metric value at a specific timestamp
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.series[name] == nil {
		c.series[name] = make(map[string][]models.MetricPoint)
	}
	c.series[name][key] = append(c.series[name][key], models.MetricPoint{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    copyLabels(labels),
	})
}

// RecordNow records a metric value at the current time
func (c *Collector) RecordNow(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// GetTimeSeries returns a copy of the points recorded for a metric and label set
func (c *Collector) GetTimeSeries(name string, labels map[string]string) []models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name][labelKey(labels)]
	if len(points) == 0 {
		return nil
	}
	out := make([]models.MetricPoint, len(points))
	for i, p := range points {
		p.Labels = copyLabels(p.Labels)
		out[i] = p
	}
	return out
}

// GetAggregation returns aggregated statistics for a metric and label set, or nil if empty
func (c *Collector) GetAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return aggregate(c.series[name][labelKey(labels)])
}

// GetSummary aggregates every metric across all of its label sets
func (c *Collector) GetSummary() *models.MetricsSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := &models.MetricsSummary{
		StartTime:    c.startTime,
		EndTime:      c.endTime,
		Duration:     end.Sub(c.startTime),
		Aggregations: make(map[string]*models.Aggregation, len(c.series)),
	}
	for name, byLabels := range c.series {
		var all []models.MetricPoint
		for _, points := range byLabels {
			all = append(all, points...)
		}
		if agg := aggregate(all); agg != nil {
			summary.Aggregations[name] = agg
		}
	}
	return summary
}

// GetMetricNames returns all metric names in sorted order
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLabelsForMetric returns every label combination recorded for a metric
func (c *Collector) GetLabelsForMetric(name string) []map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]map[string]string, 0, len(c.series[name]))
	for _, points := range c.series[name] {
		if len(points) > 0 {
			out = append(out, copyLabels(points[0].Labels))
		}
	}
	return out
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// aggregate computes count, sum, extrema, mean and empirical quantiles.
func aggregate(points []models.MetricPoint) *models.Aggregation {
	if len(points) == 0 {
		return nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	return &models.Aggregation{
		Count: int64(len(values)),
		Sum:   sum,
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  stat.Mean(values, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, values, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, values, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, values, nil),
	}
}
