// Package registry holds the Master's authoritative cluster state:
// every registered Framework and admitted Slave, the offers
// outstanding on each, and the resources each side currently has in
// use. It is a plain in-memory store — no BoltDB, no raft log — since
// the Registry lives entirely inside the Master actor's mailbox
// goroutine and is never touched concurrently, the same way
// storage.Store guarded the teacher's cluster state but without needing
// its own locking or persistence.
//
// Every mutation that changes what the Allocator should know about
// (a framework or slave appearing/disappearing, resources becoming
// free again) is also emitted as a Change so an Allocator subscribed
// via Subscribe hears about it without the Registry importing the
// allocator package.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
)

// ChangeKind identifies what happened to the Registry.
type ChangeKind int

const (
	FrameworkAdded ChangeKind = iota
	FrameworkActivated
	FrameworkDeactivated
	FrameworkRemoved
	SlaveAdded
	SlaveRemoved
	ResourcesRecovered
	OffersRevived
)

// Change is a notification of a single Registry mutation, delivered
// synchronously to every subscriber in the order they subscribed.
type Change struct {
	Kind        ChangeKind
	FrameworkID types.FrameworkID
	SlaveID     types.SlaveID
	Resources   resources.Resources
}

// Registry is not safe for concurrent use; callers must serialize
// access themselves (the Master actor's mailbox does this).
type Registry struct {
	frameworks map[types.FrameworkID]*types.Framework
	slaves     map[types.SlaveID]*types.Slave
	offers     map[types.OfferID]offerLocation

	// frameworkOrder/slaveOrder track registration order so Frameworks
	// and Slaves can iterate in the order the data model requires (the
	// Allocator's DRF tie-break depends on this), independent of map
	// iteration or id sort order.
	frameworkOrder []types.FrameworkID
	slaveOrder     []types.SlaveID

	listeners []func(Change)
}

type offerLocation struct {
	frameworkID types.FrameworkID
	slaveID     types.SlaveID
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		frameworks: map[types.FrameworkID]*types.Framework{},
		slaves:     map[types.SlaveID]*types.Slave{},
		offers:     map[types.OfferID]offerLocation{},
	}
}

// Subscribe registers fn to receive every subsequent Change. There is
// no Unsubscribe: the Registry's lifetime is the Master's lifetime,
// and the Allocator subscribes exactly once at construction.
func (r *Registry) Subscribe(fn func(Change)) {
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) emit(c Change) {
	for _, fn := range r.listeners {
		fn(c)
	}
}

// AddFramework admits a newly registered framework.
func (r *Registry) AddFramework(f *types.Framework) {
	r.frameworks[f.ID] = f
	r.frameworkOrder = append(r.frameworkOrder, f.ID)
	r.emit(Change{Kind: FrameworkAdded, FrameworkID: f.ID})
}

// Framework looks up a framework by id.
func (r *Registry) Framework(id types.FrameworkID) (*types.Framework, bool) {
	f, ok := r.frameworks[id]
	return f, ok
}

// Frameworks returns every known framework in registration order — the
// order AddFramework first admitted each one, not sorted by id — since
// the data model requires ties (e.g. the Allocator's DRF dominant-share
// tie-break) to be broken by registration order, not an opaque id.
func (r *Registry) Frameworks() []*types.Framework {
	out := make([]*types.Framework, 0, len(r.frameworks))
	for _, id := range r.frameworkOrder {
		if f, ok := r.frameworks[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// ActivateFramework flips a framework to the active lifecycle state,
// making it eligible for offers again.
func (r *Registry) ActivateFramework(id types.FrameworkID) {
	f, ok := r.frameworks[id]
	if !ok {
		return
	}
	f.State = types.FrameworkActive
	f.DeactivatedAt = time.Time{}
	r.emit(Change{Kind: FrameworkActivated, FrameworkID: id})
}

// DeactivateFramework suspends offering to a framework without
// removing its tasks, used when a scheduler driver disconnects but
// hasn't yet timed out its failover grace period. Records when this
// happened so the Master can measure it against the framework's
// failover timeout.
func (r *Registry) DeactivateFramework(id types.FrameworkID) {
	f, ok := r.frameworks[id]
	if !ok {
		return
	}
	f.State = types.FrameworkDeactivated
	f.DeactivatedAt = time.Now()
	r.emit(Change{Kind: FrameworkDeactivated, FrameworkID: id})
}

// RemoveFramework evicts a framework, drops every offer it held, and
// clears its usage and task entries on every slave. It returns nothing
// and touches no allocator state: the FrameworkRemoved Change it emits
// is how the Allocator learns to reclaim what the framework held.
func (r *Registry) RemoveFramework(id types.FrameworkID) {
	f, ok := r.frameworks[id]
	if !ok {
		return
	}
	for offerID := range f.Offers {
		r.removeOfferLocation(offerID)
	}
	for _, slave := range r.slaves {
		delete(slave.UsedResources, id)
		delete(slave.Tasks, id)
	}
	delete(r.frameworks, id)
	r.frameworkOrder = removeFrameworkID(r.frameworkOrder, id)
	r.emit(Change{Kind: FrameworkRemoved, FrameworkID: id})
}

func removeFrameworkID(ids []types.FrameworkID, id types.FrameworkID) []types.FrameworkID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeSlaveID(ids []types.SlaveID, id types.SlaveID) []types.SlaveID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// AddSlave admits a newly registered slave.
func (r *Registry) AddSlave(s *types.Slave) {
	r.slaves[s.ID] = s
	r.slaveOrder = append(r.slaveOrder, s.ID)
	r.emit(Change{Kind: SlaveAdded, SlaveID: s.ID, Resources: s.Info.Resources})
}

// Slave looks up a slave by id.
func (r *Registry) Slave(id types.SlaveID) (*types.Slave, bool) {
	s, ok := r.slaves[id]
	return s, ok
}

// Slaves returns every known slave in registration order.
func (r *Registry) Slaves() []*types.Slave {
	out := make([]*types.Slave, 0, len(r.slaves))
	for _, id := range r.slaveOrder {
		if s, ok := r.slaves[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RemoveSlave evicts a slave, detaching it from every framework that
// held offers or tasks on it. Tasks still recorded on the slave are
// deleted from their frameworks without a status update or archiving,
// so the Master transitions them to LOST before calling this.
func (r *Registry) RemoveSlave(id types.SlaveID) {
	s, ok := r.slaves[id]
	if !ok {
		return
	}
	for offerID := range s.Offers {
		r.removeOfferLocation(offerID)
	}
	for _, f := range r.frameworks {
		for taskID, t := range f.Tasks {
			if t.SlaveID == id {
				delete(f.Tasks, taskID)
			}
		}
	}
	delete(r.slaves, id)
	r.slaveOrder = removeSlaveID(r.slaveOrder, id)
	r.emit(Change{Kind: SlaveRemoved, SlaveID: id})
}

// AddOffer registers a newly created offer against both its framework
// and slave, and subtracts its resources from the slave's free pool
// bookkeeping by construction (the offer's Resources are assumed
// already carved out by the caller, typically the Allocator).
func (r *Registry) AddOffer(o *types.Offer) error {
	f, ok := r.frameworks[o.FrameworkID]
	if !ok {
		return fmt.Errorf("registry: unknown framework %q for offer %q", o.FrameworkID, o.ID)
	}
	s, ok := r.slaves[o.SlaveID]
	if !ok {
		return fmt.Errorf("registry: unknown slave %q for offer %q", o.SlaveID, o.ID)
	}
	f.Offers[o.ID] = o
	s.Offers[o.ID] = o
	r.offers[o.ID] = offerLocation{frameworkID: o.FrameworkID, slaveID: o.SlaveID}
	return nil
}

// Offer looks up a live offer by id.
func (r *Registry) Offer(id types.OfferID) (*types.Offer, bool) {
	loc, ok := r.offers[id]
	if !ok {
		return nil, false
	}
	f := r.frameworks[loc.frameworkID]
	if f == nil {
		return nil, false
	}
	o, ok := f.Offers[id]
	return o, ok
}

// RemoveOffer detaches an offer from its framework and slave without
// touching resource bookkeeping; the caller (the Master) is responsible
// for handing the resources back to the Allocator.
func (r *Registry) RemoveOffer(id types.OfferID) {
	r.removeOfferLocation(id)
}

func (r *Registry) removeOfferLocation(id types.OfferID) {
	loc, ok := r.offers[id]
	if !ok {
		return
	}
	if f, ok := r.frameworks[loc.frameworkID]; ok {
		delete(f.Offers, id)
	}
	if s, ok := r.slaves[loc.slaveID]; ok {
		delete(s.Offers, id)
	}
	delete(r.offers, id)
}

// NotifyResourcesRecovered tells subscribers that resources on slaveID
// previously held by frameworkID are free again, e.g. after a task
// goes terminal or an offer is declined/rescinded.
func (r *Registry) NotifyResourcesRecovered(frameworkID types.FrameworkID, slaveID types.SlaveID, recovered resources.Resources) {
	r.emit(Change{Kind: ResourcesRecovered, FrameworkID: frameworkID, SlaveID: slaveID, Resources: recovered})
}

// NotifyOffersRevived tells subscribers that a framework's filters
// should be cleared, e.g. in response to an explicit revive call.
func (r *Registry) NotifyOffersRevived(frameworkID types.FrameworkID) {
	r.emit(Change{Kind: OffersRevived, FrameworkID: frameworkID})
}

// AddTask records a newly launched task under both its framework and
// slave.
func (r *Registry) AddTask(t *types.Task, executor *types.ExecutorInfo) error {
	f, ok := r.frameworks[t.FrameworkID]
	if !ok {
		return fmt.Errorf("registry: unknown framework %q for task %q", t.FrameworkID, t.TaskID)
	}
	s, ok := r.slaves[t.SlaveID]
	if !ok {
		return fmt.Errorf("registry: unknown slave %q for task %q", t.SlaveID, t.TaskID)
	}
	f.Tasks[t.TaskID] = t
	delete(f.PendingTasks, t.TaskID)
	if s.Tasks[t.FrameworkID] == nil {
		s.Tasks[t.FrameworkID] = map[types.TaskID]*types.Task{}
	}
	s.Tasks[t.FrameworkID][t.TaskID] = t
	s.UsedResources[t.FrameworkID] = s.UsedResources[t.FrameworkID].Add(t.Resources)
	if executor != nil {
		s.RegisterExecutor(t.FrameworkID, *executor)
	}
	return nil
}

// Task looks up a task by the framework that owns it plus its id.
func (r *Registry) Task(frameworkID types.FrameworkID, taskID types.TaskID) (*types.Task, bool) {
	f, ok := r.frameworks[frameworkID]
	if !ok {
		return nil, false
	}
	t, ok := f.Tasks[taskID]
	return t, ok
}

// Tasks returns every non-terminal task belonging to a framework.
func (r *Registry) Tasks(frameworkID types.FrameworkID) []*types.Task {
	f, ok := r.frameworks[frameworkID]
	if !ok {
		return nil
	}
	out := make([]*types.Task, 0, len(f.Tasks))
	for _, t := range f.Tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// TransitionTask appends a status to a task and, if the new state is
// terminal, archives it and frees its resources back to the slave,
// emitting ResourcesRecovered so the Allocator learns of the freed
// capacity.
func (r *Registry) TransitionTask(frameworkID types.FrameworkID, taskID types.TaskID, status types.TaskStatus) error {
	f, ok := r.frameworks[frameworkID]
	if !ok {
		return fmt.Errorf("registry: unknown framework %q", frameworkID)
	}
	t, ok := f.Tasks[taskID]
	if !ok {
		return fmt.Errorf("registry: unknown task %q for framework %q", taskID, frameworkID)
	}
	t.AppendStatus(status)
	if !status.State.Terminal() {
		return nil
	}

	if s, ok := r.slaves[t.SlaveID]; ok {
		if residual, ok := s.UsedResources[frameworkID].Subtract(t.Resources); ok {
			s.UsedResources[frameworkID] = residual
		}
		if frameworkTasks := s.Tasks[frameworkID]; frameworkTasks != nil {
			delete(frameworkTasks, taskID)
		}
	}
	f.ArchiveTask(t)
	r.NotifyResourcesRecovered(frameworkID, t.SlaveID, t.Resources)
	return nil
}
