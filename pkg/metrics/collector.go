package metrics

import (
	"time"

	"github.com/cuemby/citadel/pkg/registry"
	"github.com/cuemby/citadel/pkg/types"
)

// Collector periodically samples the Registry and republishes its
// state as gauges. It never mutates the Registry, so it's safe to run
// from its own goroutine even though the Registry itself is only
// mutated from the Master's mailbox — every read here is a point-in-
// time snapshot, not a consistent one, which is fine for a metrics
// sampler sampling every few seconds.
type Collector struct {
	registry *registry.Registry
	stopCh   chan struct{}
}

// NewCollector creates a metrics collector over reg.
func NewCollector(reg *registry.Registry) *Collector {
	return &Collector{
		registry: reg,
		stopCh:   make(chan struct{}),
	}
}

// Start begins sampling on a 15 second interval, collecting once
// immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectFrameworkMetrics()
	c.collectSlaveMetrics()
	c.collectTaskMetrics()
}

func (c *Collector) collectFrameworkMetrics() {
	counts := map[types.FrameworkLifecycle]int{}
	for _, f := range c.registry.Frameworks() {
		counts[f.State]++
	}
	for state, count := range counts {
		FrameworksTotal.WithLabelValues(frameworkStateLabel(state)).Set(float64(count))
	}
}

func (c *Collector) collectSlaveMetrics() {
	counts := map[types.SlaveLifecycle]int{}
	for _, s := range c.registry.Slaves() {
		counts[s.State]++
	}
	for state, count := range counts {
		SlavesTotal.WithLabelValues(slaveStateLabel(state)).Set(float64(count))
	}
}

func (c *Collector) collectTaskMetrics() {
	counts := map[types.TaskState]int{}
	for _, f := range c.registry.Frameworks() {
		for _, t := range c.registry.Tasks(f.ID) {
			counts[t.State]++
		}
	}
	for state, count := range counts {
		TasksTotal.WithLabelValues(state.String()).Set(float64(count))
	}
}

func frameworkStateLabel(s types.FrameworkLifecycle) string {
	switch s {
	case types.FrameworkRegistered:
		return "registered"
	case types.FrameworkActive:
		return "active"
	case types.FrameworkDeactivated:
		return "deactivated"
	case types.FrameworkRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

func slaveStateLabel(s types.SlaveLifecycle) string {
	switch s {
	case types.SlaveAdmitted:
		return "admitted"
	case types.SlaveActive:
		return "active"
	case types.SlaveDisconnected:
		return "disconnected"
	case types.SlaveRemoved:
		return "removed"
	default:
		return "unknown"
	}
}
