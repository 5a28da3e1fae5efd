package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type dispatchKey struct {
	role    string
	outcome string
}

type dispatchLatencyKey struct {
	role string
}

type dispatchMetrics struct {
	mu      sync.Mutex
	totals  map[dispatchKey]uint64
	latency map[dispatchLatencyKey]*histogram
}

var dispatchCollector = &dispatchMetrics{
	totals:  make(map[dispatchKey]uint64),
	latency: make(map[dispatchLatencyKey]*histogram),
}

// ObserveDispatch records the outcome and latency of a single agent dispatch.
func ObserveDispatch(role string, success bool, duration time.Duration) {
	dispatchCollector.observe(role, success, duration)
}

func (c *dispatchMetrics) observe(role string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.totals[dispatchKey{role: role, outcome: outcome}]++

	latKey := dispatchLatencyKey{role: role}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *dispatchMetrics) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type totalMetric struct {
		dispatchKey
		value uint64
	}
	type latencyMetric struct {
		role    string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	totals := make([]totalMetric, 0, len(c.totals))
	for key, value := range c.totals {
		totals = append(totals, totalMetric{dispatchKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for key, hist := range c.latency {
		lats = append(lats, latencyMetric{
			role:    key.role,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(totals, func(i, j int) bool {
		if totals[i].role == totals[j].role {
			return totals[i].outcome < totals[j].outcome
		}
		return totals[i].role < totals[j].role
	})
	sort.Slice(lats, func(i, j int) bool {
		return lats[i].role < lats[j].role
	})

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP agentrelay_dispatch_total Total number of agent dispatches by role and outcome.\n")
	builder.WriteString("# TYPE agentrelay_dispatch_total counter\n")
	for _, metric := range totals {
		builder.WriteString(fmt.Sprintf("agentrelay_dispatch_total{role=\"%s\",outcome=\"%s\"} %d\n",
			escape(metric.role), escape(metric.outcome), metric.value))
	}

	builder.WriteString("# HELP agentrelay_dispatch_duration_seconds Agent dispatch duration in seconds.\n")
	builder.WriteString("# TYPE agentrelay_dispatch_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("agentrelay_dispatch_duration_seconds_bucket{role=\"%s\",le=\"%s\"} %d\n",
				escape(metric.role), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("agentrelay_dispatch_duration_seconds_bucket{role=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.role), metric.count))
		builder.WriteString(fmt.Sprintf("agentrelay_dispatch_duration_seconds_sum{role=\"%s\"} %s\n",
			escape(metric.role), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("agentrelay_dispatch_duration_seconds_count{role=\"%s\"} %d\n",
			escape(metric.role), metric.count))
	}

	return builder.String()
}
