// Package metrics exposes Prometheus counters and gauges driven by the
// operator event bus: hash throughput, submission outcomes, registration
// progress and Coordinator state, all labeled by address where useful.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bardlex/powminer/internal/events"
)

var (
	hashesComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powminer_hashes_computed_total",
		Help: "Total hashes computed, labeled by mining address and worker id.",
	}, []string{"address", "worker"})

	solutionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powminer_solutions_submitted_total",
		Help: "Total submission outcomes, labeled by acceptance and dev-fee flag.",
	}, []string{"accepted", "is_dev_fee"})

	registrationProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powminer_registration_progress_ratio",
		Help: "Fraction of addresses registered so far in the current startup pass.",
	})

	coordinatorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powminer_coordinator_state",
		Help: "Current Coordinator lifecycle state (0=idle, 1=registering, 2=running, 3=draining).",
	})

	miningStartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "powminer_mining_starts_total",
		Help: "Number of times the Coordinator entered the running state.",
	})
)

var coordinatorStateValue = map[string]float64{
	"idle":        0,
	"registering": 1,
	"running":     2,
	"draining":    3,
}

// Collector drains an events.Bus subscription for the process lifetime,
// translating each Event into the matching Prometheus update.
type Collector struct {
	bus *events.Bus

	hashesMu sync.Mutex
	lastHash map[hashKey]uint64
}

// hashKey identifies one worker's running hash count, so a
// KindWorkerUpdate's cumulative total can be turned into the per-tick
// delta the counter actually wants.
type hashKey struct {
	address  string
	workerID int
}

// New creates a Collector over bus. bus must not be nil.
func New(bus *events.Bus) *Collector {
	return &Collector{bus: bus, lastHash: make(map[hashKey]uint64)}
}

// Run subscribes to the bus and applies updates until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	sub := c.bus.Subscribe()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Chan:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) apply(evt events.Event) {
	switch evt.Kind {
	case events.KindWorkerUpdate:
		if n, ok := fieldUint(evt.Fields, "hashes_computed"); ok {
			if delta, ok := c.hashDelta(evt.Address, evt.WorkerID, n); ok {
				hashesComputed.WithLabelValues(evt.Address, workerLabel(evt.WorkerID)).Add(float64(delta))
			}
		}
	case events.KindSolutionResult:
		accepted := fieldBool(evt.Fields, "accepted")
		isDevFee := fieldBool(evt.Fields, "is_dev_fee")
		solutionsSubmitted.WithLabelValues(boolLabel(accepted), boolLabel(isDevFee)).Inc()
	case events.KindRegistrationProgress:
		index, _ := fieldUint(evt.Fields, "index")
		total, _ := fieldUint(evt.Fields, "total")
		if total > 0 {
			registrationProgress.Set(float64(index) / float64(total))
		}
	case events.KindMiningStart:
		miningStartsTotal.Inc()
	case events.KindStatus:
		if state, ok := evt.Fields["state"].(string); ok {
			if v, known := coordinatorStateValue[state]; known {
				coordinatorState.Set(v)
			}
		}
	}
}

// hashDelta turns a worker's cumulative hashes-computed count into the
// increment since its last reported sample, since worker.Cohort reports
// a running total rather than a per-tick delta. The first sample for a
// worker, or one that regresses (a fresh cohort restarting its count),
// has no usable baseline and is dropped.
func (c *Collector) hashDelta(address string, workerID int, count uint64) (uint64, bool) {
	key := hashKey{address: address, workerID: workerID}

	c.hashesMu.Lock()
	defer c.hashesMu.Unlock()

	prev, ok := c.lastHash[key]
	c.lastHash[key] = count
	if !ok || count < prev {
		return 0, false
	}
	return count - prev, true
}

// Handler returns the HTTP handler exposing the default Prometheus
// registry, mounted by cmd/miner at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func fieldUint(fields map[string]interface{}, key string) (uint64, bool) {
	switch v := fields[key].(type) {
	case uint64:
		return v, true
	case int:
		return uint64(v), true
	}
	return 0, false
}

func fieldBool(fields map[string]interface{}, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func workerLabel(id int) string {
	if id < 0 {
		return "dev_fee"
	}
	return strconv.Itoa(id)
}
