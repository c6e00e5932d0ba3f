package allocator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/citadel/pkg/actor"
	"github.com/cuemby/citadel/pkg/config"
	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
)

type recordingSink struct {
	mu     sync.Mutex
	offers [][]Offer
}

func (r *recordingSink) SendOffers(offers []Offer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, offers)
}

func (r *recordingSink) last() []Offer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.offers) == 0 {
		return nil
	}
	return r.offers[len(r.offers)-1]
}

func newTestAllocator(t *testing.T) (*Allocator, *recordingSink) {
	sink := &recordingSink{}
	a := New(actor.PID{ID: "allocator", Host: "localhost", Port: 1}, config.AllocatorConfig{}, sink)
	go a.mailbox.Run()
	t.Cleanup(func() { a.mailbox.Stop() })
	return a, sink
}

func syncAllocate(a *Allocator) {
	actor.Ask(a.mailbox, func() any { a.allocate(); return nil })
}

func TestAllocateOffersFreeSlaveToSoleFramework(t *testing.T) {
	a, sink := newTestAllocator(t)

	actor.Ask(a.mailbox, func() any {
		a.frameworks["fw1"] = &frameworkShare{info: types.FrameworkInfo{Role: "*"}, active: true}
		a.slaves["s1"] = &slaveState{
			info:      types.SlaveInfo{Hostname: "h1", Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(4), "*")}},
			used:      map[types.FrameworkID]resources.Resources{},
			available: resources.Resources{resources.Scalar("cpus", resources.NewValue(4), "*")},
		}
		return nil
	})

	syncAllocate(a)

	offers := sink.last()
	require.Len(t, offers, 1)
	assert.Equal(t, types.FrameworkID("fw1"), offers[0].FrameworkID)
	assert.Equal(t, types.SlaveID("s1"), offers[0].SlaveID)
}

func TestAllocatePrefersLowerDominantShare(t *testing.T) {
	a, sink := newTestAllocator(t)

	actor.Ask(a.mailbox, func() any {
		a.frameworks["busy"] = &frameworkShare{
			info: types.FrameworkInfo{Role: "*"},
			active: true,
			used:   resources.Resources{resources.Scalar("cpus", resources.NewValue(8), "*")},
		}
		a.frameworks["idle"] = &frameworkShare{info: types.FrameworkInfo{Role: "*"}, active: true}
		a.slaves["s1"] = &slaveState{
			info:      types.SlaveInfo{Hostname: "h1", Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(8), "*")}},
			used:      map[types.FrameworkID]resources.Resources{},
			available: resources.Resources{resources.Scalar("cpus", resources.NewValue(8), "*")},
		}
		return nil
	})

	syncAllocate(a)

	offers := sink.last()
	require.Len(t, offers, 1)
	assert.Equal(t, types.FrameworkID("idle"), offers[0].FrameworkID)
}

func TestFilterSuppressesOfferUntilExpiry(t *testing.T) {
	a, sink := newTestAllocator(t)

	actor.Ask(a.mailbox, func() any {
		a.frameworks["fw1"] = &frameworkShare{info: types.FrameworkInfo{Role: "*"}, active: true}
		a.slaves["s1"] = &slaveState{
			info:      types.SlaveInfo{Hostname: "h1", Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(4), "*")}},
			used:      map[types.FrameworkID]resources.Resources{},
			available: resources.Resources{resources.Scalar("cpus", resources.NewValue(4), "*")},
		}
		a.filters[filterKey{framework: "fw1", slave: "s1"}] = types.Filter{
			FrameworkID: "fw1",
			SlaveID:     "s1",
			Expiry:      time.Now().Add(time.Hour),
		}
		return nil
	})

	syncAllocate(a)
	assert.Nil(t, sink.last())
}

func TestResourcesRecoveredReturnsCapacityToSlave(t *testing.T) {
	a, _ := newTestAllocator(t)

	actor.Ask(a.mailbox, func() any {
		a.slaves["s1"] = &slaveState{
			info:      types.SlaveInfo{Hostname: "h1"},
			used:      map[types.FrameworkID]resources.Resources{"fw1": {resources.Scalar("cpus", resources.NewValue(2), "*")}},
			available: resources.Empty(),
		}
		a.frameworks["fw1"] = &frameworkShare{used: resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")}}
		return nil
	})

	a.ResourcesRecovered("fw1", "s1", resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")})

	actor.Ask(a.mailbox, func() any {
		assert.True(t, a.slaves["s1"].available.Equal(resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")}))
		assert.True(t, a.frameworks["fw1"].used.Equal(resources.Empty()))
		return nil
	})
}

func TestOffersRevivedClearsFrameworkFilters(t *testing.T) {
	a, _ := newTestAllocator(t)

	actor.Ask(a.mailbox, func() any {
		a.filters[filterKey{framework: "fw1", slave: "s1"}] = types.Filter{FrameworkID: "fw1", SlaveID: "s1"}
		return nil
	})

	a.OffersRevived("fw1")

	actor.Ask(a.mailbox, func() any {
		assert.Empty(t, a.filters)
		return nil
	})
}
