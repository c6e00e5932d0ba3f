// Package allocator implements the Dominant Resource Fairness policy
// that decides which framework gets offered a slave's free resources.
// It never touches the Registry directly — the same way the original
// AllocatorProcess interface never reached into Master state, it keeps
// its own shadow of slave capacity and framework shares, updated only
// through the calls the Master makes on it (frameworkAdded, slaveAdded,
// resourcesUnused, resourcesRecovered, ...). That isolation is what
// lets the Allocator run its own ticker-driven loop without racing the
// Master's mailbox.
package allocator

import (
	"sort"
	"time"

	"github.com/cuemby/citadel/pkg/actor"
	"github.com/cuemby/citadel/pkg/config"
	"github.com/cuemby/citadel/pkg/log"
	"github.com/cuemby/citadel/pkg/metrics"
	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
	"github.com/rs/zerolog"
)

// Offer is one slave's worth of resources the allocator has decided to
// hand a framework. OfferSink turns these into actual types.Offer
// records and notifies the framework; the allocator itself never
// constructs a types.Offer or touches the registry.
type Offer struct {
	FrameworkID types.FrameworkID
	SlaveID     types.SlaveID
	Resources   resources.Resources
}

// OfferSink is how the allocator delivers a completed DRF round to the
// Master. Implemented by *master.Master in production and by a stub in
// tests.
type OfferSink interface {
	SendOffers(offers []Offer)
}

type frameworkShare struct {
	info   types.FrameworkInfo
	active bool
	used   resources.Resources

	// seq is the order FrameworkAdded first saw this framework,
	// assigned from the allocator's own monotonic counter. Framework
	// ids are random uuids (see master.RegisterFramework), so they
	// carry no registration-order information of their own — this is
	// what the DRF tie-break actually sorts on.
	seq int
}

type slaveState struct {
	info      types.SlaveInfo
	used      map[types.FrameworkID]resources.Resources
	available resources.Resources
}

// filterKey identifies one framework's suppression of one slave.
type filterKey struct {
	framework types.FrameworkID
	slave     types.SlaveID
}

// Allocator is a DRF policy engine running on its own actor mailbox.
// Every exported method enqueues onto that mailbox and returns
// immediately (or, for Ask-style calls, waits for the enqueued work to
// finish) so state is only ever touched by the allocator's own
// goroutine.
type Allocator struct {
	mailbox *actor.Mailbox
	logger  zerolog.Logger
	cfg     config.AllocatorConfig
	sink    OfferSink

	frameworks map[types.FrameworkID]*frameworkShare
	slaves     map[types.SlaveID]*slaveState
	filters    map[filterKey]types.Filter
	nextSeq    int

	ticker   *time.Ticker
	stopOnce chan struct{}
}

// New constructs an Allocator bound to sink, which receives every
// completed allocation round. Call Run to start its mailbox and
// ticker-driven allocation loop.
func New(self actor.PID, cfg config.AllocatorConfig, sink OfferSink) *Allocator {
	return &Allocator{
		mailbox:    actor.NewMailbox(self, 64),
		logger:     log.WithComponent("allocator"),
		cfg:        cfg,
		sink:       sink,
		frameworks: map[types.FrameworkID]*frameworkShare{},
		slaves:     map[types.SlaveID]*slaveState{},
		filters:    map[filterKey]types.Filter{},
		stopOnce:   make(chan struct{}),
	}
}

// Run starts the mailbox goroutine and the allocation ticker. It
// blocks until Stop is called.
func (a *Allocator) Run(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	a.ticker = time.NewTicker(interval)
	defer a.ticker.Stop()

	go a.mailbox.Run()

	for {
		select {
		case <-a.ticker.C:
			a.mailbox.Send(a.allocate)
		case <-a.stopOnce:
			a.mailbox.Stop()
			return
		}
	}
}

// Stop halts the allocation ticker and drains the mailbox.
func (a *Allocator) Stop() {
	close(a.stopOnce)
}

// FrameworkAdded registers a framework's initial share so DRF rounds
// can consider it.
func (a *Allocator) FrameworkAdded(id types.FrameworkID, info types.FrameworkInfo, used resources.Resources) {
	a.mailbox.Send(func() {
		a.nextSeq++
		a.frameworks[id] = &frameworkShare{info: info, active: true, used: used, seq: a.nextSeq}
	})
}

// FrameworkRemoved evicts a framework's share and any filters it held,
// returning whatever it still held on each slave to that slave's free
// pool.
func (a *Allocator) FrameworkRemoved(id types.FrameworkID) {
	a.mailbox.Send(func() {
		for _, slave := range a.slaves {
			if held, ok := slave.used[id]; ok {
				slave.available = slave.available.Add(held)
				delete(slave.used, id)
			}
		}
		delete(a.frameworks, id)
		for key := range a.filters {
			if key.framework == id {
				delete(a.filters, key)
			}
		}
	})
}

// FrameworkActivated re-enables a framework for future DRF rounds.
func (a *Allocator) FrameworkActivated(id types.FrameworkID, info types.FrameworkInfo) {
	a.mailbox.Send(func() {
		if fw, ok := a.frameworks[id]; ok {
			fw.active = true
			fw.info = info
			return
		}
		a.nextSeq++
		a.frameworks[id] = &frameworkShare{info: info, active: true, seq: a.nextSeq}
	})
}

// FrameworkDeactivated suspends offering to a framework without
// forgetting its share.
func (a *Allocator) FrameworkDeactivated(id types.FrameworkID) {
	a.mailbox.Send(func() {
		if fw, ok := a.frameworks[id]; ok {
			fw.active = false
		}
	})
}

// SlaveAdded registers a slave's total capacity and current per-
// framework usage.
func (a *Allocator) SlaveAdded(id types.SlaveID, info types.SlaveInfo, used map[types.FrameworkID]resources.Resources) {
	a.mailbox.Send(func() {
		committed := resources.Empty()
		usedCopy := map[types.FrameworkID]resources.Resources{}
		for fw, r := range used {
			usedCopy[fw] = r
			committed = committed.Add(r)
		}
		free, ok := info.Resources.Subtract(committed)
		if !ok {
			free = resources.Empty()
		}
		a.slaves[id] = &slaveState{info: info, used: usedCopy, available: free}
	})
}

// SlaveRemoved evicts a slave and any filters referencing it.
func (a *Allocator) SlaveRemoved(id types.SlaveID) {
	a.mailbox.Send(func() {
		delete(a.slaves, id)
		for key := range a.filters {
			if key.slave == id {
				delete(a.filters, key)
			}
		}
	})
}

// ResourcesUnused records a framework declining resources, installing
// a filter (if requested) so the same resources aren't immediately
// re-offered.
func (a *Allocator) ResourcesUnused(frameworkID types.FrameworkID, slaveID types.SlaveID, unused resources.Resources, filter *types.Filter) {
	a.mailbox.Send(func() {
		a.recoverLocked(frameworkID, slaveID, unused)
		if filter != nil {
			a.filters[filterKey{framework: frameworkID, slave: slaveID}] = *filter
		}
	})
}

// ResourcesRecovered records resources becoming free outside of a
// decline, e.g. a terminal task or a rescinded offer.
func (a *Allocator) ResourcesRecovered(frameworkID types.FrameworkID, slaveID types.SlaveID, recovered resources.Resources) {
	a.mailbox.Send(func() {
		a.recoverLocked(frameworkID, slaveID, recovered)
	})
}

func (a *Allocator) recoverLocked(frameworkID types.FrameworkID, slaveID types.SlaveID, recovered resources.Resources) {
	slave, ok := a.slaves[slaveID]
	if !ok {
		return
	}
	slave.available = slave.available.Add(recovered)
	for _, name := range recovered.Names() {
		metrics.ResourcesRecoveredTotal.WithLabelValues(name).Add(recovered.Get(name).Float64())
	}
	if residual, ok := slave.used[frameworkID].Subtract(recovered); ok {
		slave.used[frameworkID] = residual
	}
	if fw, ok := a.frameworks[frameworkID]; ok {
		if residual, ok := fw.used.Subtract(recovered); ok {
			fw.used = residual
		}
	}
}

// OffersRevived clears every filter a framework installed, making it
// eligible again on the very next round.
func (a *Allocator) OffersRevived(frameworkID types.FrameworkID) {
	a.mailbox.Send(func() {
		for key := range a.filters {
			if key.framework == frameworkID {
				delete(a.filters, key)
			}
		}
	})
}

// ResourcesRequested is a hint from a framework about demand it has
// that isn't yet reflected by declined offers; DRF doesn't reserve
// capacity ahead of time, so this only affects logging/metrics hooks
// a concrete deployment might add.
func (a *Allocator) ResourcesRequested(frameworkID types.FrameworkID, requests resources.Resources) {
	a.mailbox.Send(func() {
		a.logger.Debug().Str("framework_id", string(frameworkID)).Msg("resources requested")
	})
}

// UpdateWhitelist swaps the allocator's slave whitelist.
func (a *Allocator) UpdateWhitelist(whitelist []string) {
	a.mailbox.Send(func() {
		a.cfg.Whitelist = whitelist
	})
}

// dominantShare returns a framework's dominant share of the cluster:
// the maximum, over every resource name it uses anywhere, of its usage
// divided by the cluster total for that name — divided again by the
// framework's role weight, so higher-weighted roles need a
// proportionally larger share before they stop being preferred.
func (a *Allocator) dominantShare(fw *frameworkShare) float64 {
	total := resources.Empty()
	for _, s := range a.slaves {
		total = total.Add(s.info.Resources)
	}

	weight := types.Role{Name: fw.info.Role, Weight: a.cfg.WeightFor(fw.info.Role)}.EffectiveWeight()

	var dominant float64
	for _, name := range fw.used.Names() {
		clusterTotal := total.Get(name)
		if clusterTotal == 0 {
			continue
		}
		share := fw.used.Get(name).Float64() / clusterTotal.Float64()
		if share > dominant {
			dominant = share
		}
	}
	return dominant / weight
}

// allocate runs one DRF round: every eligible slave with free resources
// is offered, in full, to the active framework with the lowest
// dominant share. Ties are broken by registration order, matching
// orderedActiveFrameworks's seq-based tie-break.
func (a *Allocator) allocate() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AllocationRoundLatency)

	order := a.orderedActiveFrameworks()
	if len(order) == 0 {
		return
	}

	var offers []Offer
	for slaveID, slave := range a.slaves {
		if !a.cfg.WhitelistAllows(slave.info.Hostname) {
			continue
		}
		if len(slave.available) == 0 {
			continue
		}

		candidate := a.pickFramework(order, slaveID, slave.available)
		if candidate == "" {
			continue
		}

		offered := slave.available
		offers = append(offers, Offer{FrameworkID: candidate, SlaveID: slaveID, Resources: offered})

		slave.used[candidate] = slave.used[candidate].Add(offered)
		slave.available = resources.Empty()
		if fw, ok := a.frameworks[candidate]; ok {
			fw.used = fw.used.Add(offered)
		}
	}

	if len(offers) > 0 {
		a.sink.SendOffers(offers)
	}

	for id, fw := range a.frameworks {
		metrics.DominantShare.WithLabelValues(string(id), fw.info.Role).Set(a.dominantShare(fw))
	}
}

// orderedActiveFrameworks returns active framework ids sorted by
// ascending dominant share, breaking ties by registration order (each
// frameworkShare's seq, assigned the moment FrameworkAdded first saw
// it) rather than by id — framework ids are random uuids assigned by
// master.RegisterFramework, so sorting by id would order ties
// arbitrarily instead of by who registered first.
func (a *Allocator) orderedActiveFrameworks() []types.FrameworkID {
	var ids []types.FrameworkID
	for id, fw := range a.frameworks {
		if fw.active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		si := a.dominantShare(a.frameworks[ids[i]])
		sj := a.dominantShare(a.frameworks[ids[j]])
		if si != sj {
			return si < sj
		}
		return a.frameworks[ids[i]].seq < a.frameworks[ids[j]].seq
	})
	return ids
}

// pickFramework returns the first framework in order not currently
// filtered out of candidate on slaveID.
func (a *Allocator) pickFramework(order []types.FrameworkID, slaveID types.SlaveID, candidate resources.Resources) types.FrameworkID {
	for _, id := range order {
		key := filterKey{framework: id, slave: slaveID}
		if f, ok := a.filters[key]; ok {
			if f.Expired(time.Now()) {
				delete(a.filters, key)
			} else if f.Matches(slaveID, candidate) {
				continue
			}
		}
		return id
	}
	return ""
}
