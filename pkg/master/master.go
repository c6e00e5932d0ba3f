// Package master implements the cluster coordinator actor: the half of
// Citadel frameworks and slaves actually talk to. It owns a Registry as
// its authoritative state, drives an Allocator through the Registry's
// Change feed, and is the allocator.OfferSink that turns a completed
// DRF round into real offers the Registry and frameworks can see.
//
// Like the Allocator, the Master runs its own actor.Mailbox: every
// exported method enqueues a closure and either returns at once or, for
// calls that answer the caller, waits for it to run, so the Registry
// (which is not safe for concurrent use) is only ever touched from one
// goroutine.
package master

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/citadel/pkg/actor"
	"github.com/cuemby/citadel/pkg/allocator"
	"github.com/cuemby/citadel/pkg/config"
	"github.com/cuemby/citadel/pkg/hook"
	"github.com/cuemby/citadel/pkg/log"
	"github.com/cuemby/citadel/pkg/metrics"
	"github.com/cuemby/citadel/pkg/registry"
	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
	"github.com/cuemby/citadel/pkg/validation"
)

// Allocator is the subset of *allocator.Allocator the Master drives.
// Defined here, rather than imported as the concrete type, so a test
// double can stand in without spinning up a real DRF mailbox.
type Allocator interface {
	FrameworkAdded(id types.FrameworkID, info types.FrameworkInfo, used resources.Resources)
	FrameworkRemoved(id types.FrameworkID)
	FrameworkActivated(id types.FrameworkID, info types.FrameworkInfo)
	FrameworkDeactivated(id types.FrameworkID)
	SlaveAdded(id types.SlaveID, info types.SlaveInfo, used map[types.FrameworkID]resources.Resources)
	SlaveRemoved(id types.SlaveID)
	ResourcesUnused(frameworkID types.FrameworkID, slaveID types.SlaveID, unused resources.Resources, filter *types.Filter)
	ResourcesRecovered(frameworkID types.FrameworkID, slaveID types.SlaveID, recovered resources.Resources)
	OffersRevived(frameworkID types.FrameworkID)
	ResourcesRequested(frameworkID types.FrameworkID, requests resources.Resources)
	UpdateWhitelist(whitelist []string)
}

// Registrar is the boundary to whatever durable framework/slave admission
// record a deployment wants to keep across Master restarts. Citadel's
// own Registry is purely in-memory — there is no bundled raft log or
// BoltDB-backed implementation, the persistent/replicated registrar a
// production Mesos-style master would run is out of scope here — so the
// default NoopRegistrar simply discards every call.
type Registrar interface {
	Admit(f *types.Framework) error
	AdmitSlave(s *types.Slave) error
}

// NoopRegistrar is the default Registrar: it records nothing. A
// deployment that needs frameworks and slaves to survive a Master
// restart supplies its own implementation.
type NoopRegistrar struct{}

func (NoopRegistrar) Admit(*types.Framework) error   { return nil }
func (NoopRegistrar) AdmitSlave(*types.Slave) error { return nil }

// SlaveTransport delivers a framework's acknowledgement of a status
// update back down to the slave that originally reported it. The wire
// protocol a real transport speaks is a deployment concern; the Master
// only needs this boundary to know the ack left its hands.
type SlaveTransport interface {
	ForwardAcknowledgement(slaveID types.SlaveID, taskID types.TaskID, ackUUID string)
}

// NoopSlaveTransport is the default SlaveTransport: it records nothing.
type NoopSlaveTransport struct{}

func (NoopSlaveTransport) ForwardAcknowledgement(types.SlaveID, types.TaskID, string) {}

// Config controls Master construction.
type Config struct {
	PID            actor.PID
	Master         config.MasterConfig
	Registrar      Registrar      // nil defaults to NoopRegistrar.
	SlaveTransport SlaveTransport // nil defaults to NoopSlaveTransport.
	Hooks          *hook.Chain    // nil runs with an empty chain.
}

// Master is the cluster coordinator actor.
type Master struct {
	mailbox        *actor.Mailbox
	logger         zerolog.Logger
	cfg            config.MasterConfig
	registry       *registry.Registry
	allocator      Allocator
	registrar      Registrar
	slaveTransport SlaveTransport
	hooks          *hook.Chain

	stop chan struct{}
}

// New constructs a Master wired to reg and alloc. The caller is
// responsible for having subscribed alloc to reg's Change feed (see
// Bridge) before frameworks or slaves start registering.
func New(cfg Config, reg *registry.Registry, alloc Allocator) *Master {
	registrar := cfg.Registrar
	if registrar == nil {
		registrar = NoopRegistrar{}
	}
	transport := cfg.SlaveTransport
	if transport == nil {
		transport = NoopSlaveTransport{}
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = hook.NewChain()
	}
	return &Master{
		mailbox:        actor.NewMailbox(cfg.PID, 256),
		logger:         log.WithComponent("master"),
		cfg:            cfg.Master,
		registry:       reg,
		allocator:      alloc,
		registrar:      registrar,
		slaveTransport: transport,
		hooks:          hooks,
		stop:           make(chan struct{}),
	}
}

// SetAllocator wires the allocator after construction, for the common
// case where the Allocator itself needs the Master as its OfferSink
// and so can't exist before the Master does. Send-only methods queued
// before this runs (there shouldn't be any in practice, since nothing
// calls Accept/Decline before Run starts) would see a nil allocator.
func (m *Master) SetAllocator(alloc Allocator) {
	m.mailbox.Send(func() { m.allocator = alloc })
}

// Bridge wires reg's Change feed onto alloc's calls, so every Registry
// mutation that affects allocation eligibility reaches the Allocator
// without either package importing the other.
func Bridge(reg *registry.Registry, alloc Allocator) {
	reg.Subscribe(func(c registry.Change) {
		switch c.Kind {
		case registry.FrameworkAdded:
			if f, ok := reg.Framework(c.FrameworkID); ok {
				alloc.FrameworkAdded(f.ID, f.Info, f.UsedResources)
			}
		case registry.FrameworkActivated:
			if f, ok := reg.Framework(c.FrameworkID); ok {
				alloc.FrameworkActivated(f.ID, f.Info)
			}
		case registry.FrameworkDeactivated:
			alloc.FrameworkDeactivated(c.FrameworkID)
		case registry.FrameworkRemoved:
			alloc.FrameworkRemoved(c.FrameworkID)
		case registry.SlaveAdded:
			if s, ok := reg.Slave(c.SlaveID); ok {
				alloc.SlaveAdded(s.ID, s.Info, s.UsedResources)
			}
		case registry.SlaveRemoved:
			alloc.SlaveRemoved(c.SlaveID)
		case registry.ResourcesRecovered:
			alloc.ResourcesRecovered(c.FrameworkID, c.SlaveID, c.Resources)
		case registry.OffersRevived:
			alloc.OffersRevived(c.FrameworkID)
		}
	})
}

// Run starts the mailbox goroutine and the slave liveness, offer
// timeout, and framework failover sweep tickers. It blocks until Stop
// is called.
func (m *Master) Run() {
	go m.mailbox.Run()
	go m.runOfferTimeoutLoop()
	go m.runFrameworkFailoverLoop()
	m.runLivenessLoop()
}

// Stop halts every sweep ticker and drains the mailbox.
func (m *Master) Stop() {
	close(m.stop)
	m.mailbox.Stop()
}

// runLivenessLoop periodically evicts slaves that have gone quiet
// longer than SlaveLivenessTimeout, grounded on the same ticker-plus-
// stop-channel shape a health monitor uses to sweep expired checks.
func (m *Master) runLivenessLoop() {
	timeout := m.cfg.SlaveLivenessTimeout
	if timeout <= 0 {
		<-m.stop
		return
	}
	ticker := time.NewTicker(timeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mailbox.Send(func() { m.sweepExpiredSlaves(timeout) })
		case <-m.stop:
			return
		}
	}
}

func (m *Master) sweepExpiredSlaves(timeout time.Duration) {
	now := time.Now()
	for _, s := range m.registry.Slaves() {
		if !s.Active() {
			continue
		}
		if now.Sub(s.LastPing) > timeout {
			m.logger.Warn().Str("slave_id", string(s.ID)).Msg("slave liveness timeout, removing")
			m.removeSlaveLocked(s.ID, types.ReasonSlaveRemoved)
		}
	}
}

// runOfferTimeoutLoop periodically rescinds offers that have sat
// unanswered longer than Config.OfferTimeout, the implicit offer
// timeout the coordinator imposes so a silent framework can't hold a
// slave's resources hostage forever.
func (m *Master) runOfferTimeoutLoop() {
	timeout := m.cfg.OfferTimeout
	if timeout <= 0 {
		<-m.stop
		return
	}
	ticker := time.NewTicker(timeout / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mailbox.Send(func() { m.sweepExpiredOffers(timeout) })
		case <-m.stop:
			return
		}
	}
}

func (m *Master) sweepExpiredOffers(timeout time.Duration) {
	now := time.Now()
	for _, f := range m.registry.Frameworks() {
		for _, o := range f.Offers {
			if now.Sub(o.CreatedAt) <= timeout {
				continue
			}
			m.logger.Info().Str("offer_id", string(o.ID)).Msg("offer timeout, rescinding")
			frameworkID, slaveID, res := o.FrameworkID, o.SlaveID, o.Resources
			m.registry.RemoveOffer(o.ID)
			metrics.OffersOutstanding.Dec()
			metrics.OffersRescindedTotal.Inc()
			m.allocator.ResourcesRecovered(frameworkID, slaveID, res)
		}
	}
}

// runFrameworkFailoverLoop periodically removes frameworks that have
// been deactivated longer than their failover grace, grounded on the
// same ticker-plus-stop-channel shape as runLivenessLoop.
func (m *Master) runFrameworkFailoverLoop() {
	grace := m.cfg.FrameworkFailoverGrace
	interval := grace
	if interval <= 0 {
		interval = m.cfg.SlaveLivenessTimeout
	}
	if interval <= 0 {
		<-m.stop
		return
	}
	ticker := time.NewTicker(interval / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mailbox.Send(func() { m.sweepExpiredFrameworks() })
		case <-m.stop:
			return
		}
	}
}

// frameworkFailoverGrace returns how long f may stay deactivated before
// it's removed: its own declared failover timeout if it set one,
// otherwise the Master's configured fallback.
func (m *Master) frameworkFailoverGrace(f *types.Framework) time.Duration {
	if f.Info.FailoverTimeout > 0 {
		return f.Info.FailoverTimeout
	}
	return m.cfg.FrameworkFailoverGrace
}

func (m *Master) sweepExpiredFrameworks() {
	now := time.Now()
	for _, f := range m.registry.Frameworks() {
		if f.State != types.FrameworkDeactivated || f.DeactivatedAt.IsZero() {
			continue
		}
		grace := m.frameworkFailoverGrace(f)
		if grace <= 0 {
			continue
		}
		if now.Sub(f.DeactivatedAt) > grace {
			m.logger.Warn().Str("framework_id", string(f.ID)).Msg("framework failover grace expired, removing")
			m.removeFrameworkLocked(f.ID, types.TaskLost, "framework failover timeout expired")
		}
	}
}

// RegisterFramework admits a new framework and returns its assigned id.
func (m *Master) RegisterFramework(info types.FrameworkInfo, endpoint string) types.FrameworkID {
	return actor.Ask(m.mailbox, func() types.FrameworkID {
		id := types.FrameworkID(uuid.New().String())
		f := types.NewFramework(id, info, endpoint, time.Now())
		f.State = types.FrameworkActive
		m.registry.AddFramework(f)
		if err := m.registrar.Admit(f); err != nil {
			m.logger.Warn().Err(err).Str("framework_id", string(id)).Msg("registrar admit failed")
		}
		m.logger.Info().Str("framework_id", string(id)).Str("name", info.Name).Msg("framework registered")
		return id
	})
}

// ReregisterFramework reactivates a previously known framework after a
// scheduler driver reconnects.
func (m *Master) ReregisterFramework(id types.FrameworkID, info types.FrameworkInfo, endpoint string) error {
	return actor.Ask(m.mailbox, func() error {
		f, ok := m.registry.Framework(id)
		if !ok {
			return fmt.Errorf("master: unknown framework %q", id)
		}
		f.Info = info
		f.Endpoint = endpoint
		f.ReregisteredTime = time.Now()
		m.registry.ActivateFramework(id)
		return nil
	})
}

// DeactivateFramework suspends offers to a framework whose scheduler
// driver has disconnected but hasn't exceeded its failover grace.
func (m *Master) DeactivateFramework(id types.FrameworkID) {
	m.mailbox.Send(func() { m.registry.DeactivateFramework(id) })
}

// UnregisterFramework tears a framework down entirely: every live task
// is implicitly killed, every offer rescinded, and the framework
// forgotten.
func (m *Master) UnregisterFramework(id types.FrameworkID) {
	m.mailbox.Send(func() { m.removeFrameworkLocked(id, types.TaskKilled, "framework removed") })
}

// removeFrameworkLocked tears a framework down: every live task
// transitions to taskState with REASON_FRAMEWORK_REMOVED, every offer
// is dropped, and the framework is forgotten. Shared by the explicit
// UnregisterFramework call and sweepExpiredFrameworks, which differ
// only in the task state a teardown versus a failover-grace expiry
// reports (KILLED for an explicit teardown, LOST for one the Master
// decided on its own per the framework removal scenario).
func (m *Master) removeFrameworkLocked(id types.FrameworkID, taskState types.TaskState, message string) {
	f, ok := m.registry.Framework(id)
	if !ok {
		return
	}
	for _, t := range m.registry.Tasks(id) {
		if t.State.Terminal() {
			continue
		}
		_ = m.registry.TransitionTask(id, t.TaskID, types.TaskStatus{
			State:     taskState,
			Source:    types.SourceMaster,
			Reason:    types.ReasonFrameworkRemoved,
			Message:   message,
			Timestamp: time.Now(),
		})
	}
	metrics.OffersOutstanding.Sub(float64(len(f.Offers)))
	m.registry.RemoveFramework(id)
	m.logger.Info().Str("framework_id", string(id)).Msg("framework removed")
}

// RegisterSlave admits a new slave and returns its assigned id.
func (m *Master) RegisterSlave(info types.SlaveInfo, endpoint string) types.SlaveID {
	return actor.Ask(m.mailbox, func() types.SlaveID {
		id := types.SlaveID(uuid.New().String())
		s := types.NewSlave(id, info, endpoint, time.Now())
		s.State = types.SlaveActive
		m.registry.AddSlave(s)
		if err := m.registrar.AdmitSlave(s); err != nil {
			m.logger.Warn().Err(err).Str("slave_id", string(id)).Msg("registrar admit failed")
		}
		m.logger.Info().Str("slave_id", string(id)).Str("hostname", info.Hostname).Msg("slave registered")
		return id
	})
}

// ReregisterSlave reactivates a previously known slave after a
// disconnect, restoring its checkpointed reservations and persistent
// volumes.
func (m *Master) ReregisterSlave(id types.SlaveID, info types.SlaveInfo, endpoint string, checkpointed resources.Resources) error {
	return actor.Ask(m.mailbox, func() error {
		s, ok := m.registry.Slave(id)
		if !ok {
			return fmt.Errorf("master: unknown slave %q", id)
		}
		s.Info = info
		s.Endpoint = endpoint
		s.State = types.SlaveActive
		s.ReregisteredTime = time.Now()
		s.LastPing = time.Now()
		s.CheckpointedResources = checkpointed
		return nil
	})
}

// Ping refreshes a slave's liveness deadline.
func (m *Master) Ping(id types.SlaveID) {
	m.mailbox.Send(func() {
		if s, ok := m.registry.Slave(id); ok {
			s.LastPing = time.Now()
		}
	})
}

// RemoveSlave evicts a slave explicitly (as opposed to via liveness
// timeout), marking every task it carried LOST.
func (m *Master) RemoveSlave(id types.SlaveID) {
	m.mailbox.Send(func() { m.removeSlaveLocked(id, types.ReasonSlaveRemoved) })
}

func (m *Master) removeSlaveLocked(id types.SlaveID, reason types.Reason) {
	for _, f := range m.registry.Frameworks() {
		for _, t := range m.registry.Tasks(f.ID) {
			if t.SlaveID != id || t.State.Terminal() {
				continue
			}
			_ = m.registry.TransitionTask(f.ID, t.TaskID, types.TaskStatus{
				State:     types.TaskLost,
				Source:    types.SourceMaster,
				Reason:    reason,
				Message:   "slave removed",
				SlaveID:   &id,
				Timestamp: time.Now(),
			})
		}
	}
	if s, ok := m.registry.Slave(id); ok {
		metrics.OffersOutstanding.Sub(float64(len(s.Offers)))
	}
	m.registry.RemoveSlave(id)
}

// SendOffers implements allocator.OfferSink. The Allocator calls this
// from its own mailbox goroutine, so every offer is registered by
// enqueueing back onto the Master's mailbox rather than touching the
// Registry directly here.
func (m *Master) SendOffers(offers []allocator.Offer) {
	m.mailbox.Send(func() {
		for _, o := range offers {
			offer := &types.Offer{
				ID:          types.OfferID(uuid.New().String()),
				FrameworkID: o.FrameworkID,
				SlaveID:     o.SlaveID,
				Resources:   o.Resources,
				CreatedAt:   time.Now(),
				State:       types.OfferLive,
			}
			if err := m.registry.AddOffer(offer); err != nil {
				m.logger.Warn().Err(err).Msg("dropping offer for vanished framework or slave")
				continue
			}
			metrics.OffersSentTotal.Inc()
			metrics.OffersOutstanding.Inc()
		}
	})
}

// TaskOutcome pairs a task id with the status the Master assigned it,
// either TaskStaging on a successful launch or TaskError on a
// validation failure.
type TaskOutcome struct {
	TaskID types.TaskID
	Status types.TaskStatus
}

// acceptResult bundles Accept's two return values into one type, since
// actor.Ask's generic signature carries a single result.
type acceptResult struct {
	outcomes []TaskOutcome
	err      error
}

// stripPersistence clones rs with every Persistence annotation removed,
// used to find the non-persistent resources a CREATE/DESTROY operation
// trades against in the offered pool.
func stripPersistence(rs resources.Resources) resources.Resources {
	out := make(resources.Resources, len(rs))
	for i, r := range rs {
		r.Persistence = nil
		out[i] = r
	}
	return out.Normalize()
}

// applyOperation folds one AcceptOffers-batch operation into the local
// pool image and the slave's checkpointed ledger. LAUNCH just appends
// its tasks for the caller to validate afterward; RESERVE/UNRESERVE/
// CREATE/DESTROY trade one shape of resource in pool for another and
// mirror the reservation/persistence change onto checkpointed, which
// is what survives a slave disconnect/reregister cycle. An error
// leaves the caller's own pool/checkpointed variables untouched, since
// Go assigns the return values only after this returns.
func applyOperation(op types.Operation, pool, checkpointed resources.Resources, tasks []types.TaskInfo) (resources.Resources, resources.Resources, []types.TaskInfo, error) {
	switch op.Kind {
	case types.OpLaunch:
		return pool, checkpointed, append(tasks, op.Tasks...), nil

	case types.OpReserve:
		if err := validation.ValidateReserve(op.Reserve); err != nil {
			return pool, checkpointed, tasks, err
		}
		unreserved := op.Reserve.Flatten(resources.DefaultRole)
		reduced, ok := pool.Subtract(unreserved)
		if !ok {
			return pool, checkpointed, tasks, fmt.Errorf("master: reserve operation requests more unreserved resources than are offered")
		}
		return reduced.Add(op.Reserve), checkpointed.Add(op.Reserve), tasks, nil

	case types.OpUnreserve:
		if err := validation.ValidateUnreserve(op.Unreserve); err != nil {
			return pool, checkpointed, tasks, err
		}
		reduced, ok := pool.Subtract(op.Unreserve)
		if !ok {
			return pool, checkpointed, tasks, fmt.Errorf("master: unreserve operation targets reserved resources not in the offered pool")
		}
		newCheckpointed, ok := checkpointed.Subtract(op.Unreserve)
		if !ok {
			return pool, checkpointed, tasks, fmt.Errorf("master: unreserve operation targets resources not checkpointed on this slave")
		}
		return reduced.Add(op.Unreserve.Flatten(resources.DefaultRole)), newCheckpointed, tasks, nil

	case types.OpCreate:
		if err := validation.ValidateCreate(op.Create, checkpointed); err != nil {
			return pool, checkpointed, tasks, err
		}
		backing := stripPersistence(op.Create)
		reduced, ok := pool.Subtract(backing)
		if !ok {
			return pool, checkpointed, tasks, fmt.Errorf("master: create operation requests more reserved resources than are offered")
		}
		return reduced.Add(op.Create), checkpointed.Add(op.Create), tasks, nil

	case types.OpDestroy:
		if err := validation.ValidateDestroy(op.Destroy, checkpointed); err != nil {
			return pool, checkpointed, tasks, err
		}
		reduced, ok := pool.Subtract(op.Destroy)
		if !ok {
			return pool, checkpointed, tasks, fmt.Errorf("master: destroy operation targets volumes not in the offered pool")
		}
		newCheckpointed, ok := checkpointed.Subtract(op.Destroy)
		if !ok {
			return pool, checkpointed, tasks, fmt.Errorf("master: destroy operation targets volumes not checkpointed on this slave")
		}
		return reduced.Add(stripPersistence(op.Destroy)), newCheckpointed, tasks, nil

	default:
		return pool, checkpointed, tasks, fmt.Errorf("master: unknown operation kind %q", op.Kind)
	}
}

// Accept consumes a batch of offers (which must all reference the same
// slave) to run a batch of operations: LAUNCH, RESERVE, UNRESERVE,
// CREATE, or DESTROY, applied in order against a local image of the
// offered pool and the slave's checkpointed reservations/volumes. The
// first operation to fail rolls the whole batch back — every offer's
// original resources are recovered to the allocator unchanged and no
// task is launched — since operations other than LAUNCH mutate shared,
// non-partitionable slave state. Once every operation has applied
// cleanly, LAUNCH tasks are validated sequentially against the
// resulting pool; a task that fails validation gets a TaskError status
// instead of being launched, and does not block the tasks after it.
// Resources left over once every task has been considered are
// recovered back to the allocator. Offers are single-use, so every
// offer in the batch is consumed whether the batch succeeds or fails.
func (m *Master) Accept(frameworkID types.FrameworkID, offerIDs []types.OfferID, operations []types.Operation, filter *types.Filter) ([]TaskOutcome, error) {
	result := actor.Ask(m.mailbox, func() acceptResult {
		framework, ok := m.registry.Framework(frameworkID)
		if !ok {
			return acceptResult{err: fmt.Errorf("master: unknown framework %q", frameworkID)}
		}

		lookup := validation.OfferLookup(m.registry.Offer)
		if err := validation.ValidateOffers(offerIDs, lookup, framework); err != nil {
			return acceptResult{err: err}
		}

		var slaveID types.SlaveID
		original := resources.Empty()
		for _, id := range offerIDs {
			o, _ := m.registry.Offer(id)
			slaveID = o.SlaveID
			original = original.Add(o.Resources)
		}
		slave, ok := m.registry.Slave(slaveID)
		if !ok {
			return acceptResult{err: fmt.Errorf("master: unknown slave %q", slaveID)}
		}

		consumeOffers := func() {
			for _, id := range offerIDs {
				m.registry.RemoveOffer(id)
				metrics.OffersOutstanding.Dec()
			}
		}

		pool := original
		checkpointed := slave.CheckpointedResources
		var launches []types.TaskInfo
		for _, op := range operations {
			var err error
			pool, checkpointed, launches, err = applyOperation(op, pool, checkpointed, launches)
			if err != nil {
				consumeOffers()
				m.allocator.ResourcesUnused(frameworkID, slaveID, original, filter)
				return acceptResult{err: fmt.Errorf("master: %s operation rejected: %w", op.Kind, err)}
			}
		}
		slave.CheckpointedResources = checkpointed

		offered := pool
		var outcomes []TaskOutcome
		for _, task := range launches {
			if err := validation.ValidateTask(task, framework, slave, offered); err != nil {
				metrics.TaskValidationFailuresTotal.Inc()
				outcomes = append(outcomes, TaskOutcome{
					TaskID: task.TaskID,
					Status: types.TaskStatus{
						State:     types.TaskError,
						Source:    types.SourceMaster,
						Reason:    types.ReasonTaskInvalid,
						Message:   err.Error(),
						Timestamp: time.Now(),
					},
				})
				continue
			}

			launchCtx := hook.LaunchContext{Task: task, Framework: framework.Info, Slave: slave.Info}
			labels := m.hooks.DecorateLabels(launchCtx)
			if task.Labels == nil {
				task.Labels = labels
			} else {
				for k, v := range labels {
					task.Labels[k] = v
				}
			}

			t := &types.Task{
				TaskID:      task.TaskID,
				Name:        task.Name,
				FrameworkID: frameworkID,
				SlaveID:     task.SlaveID,
				State:       types.TaskStaging,
				Resources:   task.Resources,
			}
			if task.Executor != nil {
				t.ExecutorID = &task.Executor.ExecutorID
			}
			t.AppendStatus(types.TaskStatus{
				State:     types.TaskStaging,
				Source:    types.SourceMaster,
				Timestamp: time.Now(),
			})
			if err := m.registry.AddTask(t, task.Executor); err != nil {
				m.logger.Warn().Err(err).Str("task_id", string(task.TaskID)).Msg("failed to register launched task")
				continue
			}

			reduced, ok := offered.Subtract(task.Resources)
			if ok {
				offered = reduced
			}
			outcomes = append(outcomes, TaskOutcome{TaskID: task.TaskID, Status: t.LatestStatus()})
		}

		consumeOffers()
		metrics.OffersAcceptedTotal.Add(float64(len(offerIDs)))
		if len(offered) > 0 {
			m.allocator.ResourcesUnused(frameworkID, slaveID, offered, filter)
		}
		return acceptResult{outcomes: outcomes}
	})
	return result.outcomes, result.err
}

// Decline recovers every offer's resources back to the allocator
// without launching anything, installing filter, or a filter lasting
// types.DefaultRefuseSeconds when filter is nil.
func (m *Master) Decline(frameworkID types.FrameworkID, offerIDs []types.OfferID, filter *types.Filter) error {
	return actor.Ask(m.mailbox, func() error {
		framework, ok := m.registry.Framework(frameworkID)
		if !ok {
			return fmt.Errorf("master: unknown framework %q", frameworkID)
		}
		lookup := validation.OfferLookup(m.registry.Offer)
		if err := validation.ValidateOffers(offerIDs, lookup, framework); err != nil {
			return err
		}
		var slaveID types.SlaveID
		declined := resources.Empty()
		for _, id := range offerIDs {
			o, _ := m.registry.Offer(id)
			slaveID = o.SlaveID
			declined = declined.Add(o.Resources)
			m.registry.RemoveOffer(id)
			metrics.OffersOutstanding.Dec()
		}
		metrics.OffersDeclinedTotal.Add(float64(len(offerIDs)))
		if filter == nil {
			filter = &types.Filter{
				FrameworkID: frameworkID,
				SlaveID:     slaveID,
				Expiry:      time.Now().Add(time.Duration(types.DefaultRefuseSeconds * float64(time.Second))),
			}
		}
		m.allocator.ResourcesUnused(frameworkID, slaveID, declined, filter)
		return nil
	})
}

// Rescind withdraws a live offer before the framework has answered it,
// e.g. because its slave was just removed.
func (m *Master) Rescind(offerID types.OfferID) {
	m.mailbox.Send(func() {
		o, ok := m.registry.Offer(offerID)
		if !ok {
			return
		}
		frameworkID, slaveID, res := o.FrameworkID, o.SlaveID, o.Resources
		m.registry.RemoveOffer(offerID)
		metrics.OffersOutstanding.Dec()
		metrics.OffersRescindedTotal.Inc()
		m.allocator.ResourcesRecovered(frameworkID, slaveID, res)
	})
}

// Revive clears every filter a framework previously installed.
func (m *Master) Revive(frameworkID types.FrameworkID) {
	m.mailbox.Send(func() {
		m.registry.NotifyOffersRevived(frameworkID)
	})
}

// StatusUpdate records a task's latest status as reported by a slave
// or executor, freeing its resources back to the allocator once it
// reaches a terminal state.
func (m *Master) StatusUpdate(frameworkID types.FrameworkID, taskID types.TaskID, status types.TaskStatus) error {
	if status.UUID == "" {
		status.UUID = uuid.New().String()
	}
	return actor.Ask(m.mailbox, func() error {
		t, known := m.registry.Task(frameworkID, taskID)
		if err := m.registry.TransitionTask(frameworkID, taskID, status); err != nil {
			return err
		}
		if status.State.Terminal() && status.Reason == types.ReasonExecutorTerminated {
			if known && t.ExecutorID != nil {
				if f, ok := m.registry.Framework(frameworkID); ok {
					if s, ok := m.registry.Slave(t.SlaveID); ok {
						if info, ok := s.ExecutorInfo(frameworkID, *t.ExecutorID); ok {
							m.hooks.ExecutorRemoved(f.Info, info)
						}
					}
				}
			}
		}
		return nil
	})
}

// Acknowledge forwards a framework's acknowledgement of a status update
// down to the slave that originally reported it, keyed by the uuid that
// update carried. Reconciliation answers the Master synthesizes itself
// have no slave to acknowledge to, so slaveID is the caller's to supply
// from the status it's acknowledging, not re-derived here.
func (m *Master) Acknowledge(taskID types.TaskID, slaveID types.SlaveID, ackUUID string) {
	m.mailbox.Send(func() {
		metrics.StatusUpdateAcknowledgementsTotal.Inc()
		m.slaveTransport.ForwardAcknowledgement(slaveID, taskID, ackUUID)
	})
}

// Reconcile answers a framework's query about the current status of a
// set of tasks. An empty taskIDs list means "every task this framework
// has" (implicit reconciliation); tasks the Master has no record of get
// a synthetic TaskLost reconciliation status, since a framework cannot
// be told a task exists if the Master never admitted it.
func (m *Master) Reconcile(frameworkID types.FrameworkID, taskIDs []types.TaskID) []types.TaskStatus {
	return actor.Ask(m.mailbox, func() []types.TaskStatus {
		metrics.ReconciliationRequestsTotal.Inc()
		if len(taskIDs) == 0 {
			var out []types.TaskStatus
			for _, t := range m.registry.Tasks(frameworkID) {
				out = append(out, t.LatestStatus())
			}
			return out
		}
		out := make([]types.TaskStatus, 0, len(taskIDs))
		for _, id := range taskIDs {
			t, ok := m.registry.Task(frameworkID, id)
			if !ok {
				out = append(out, types.TaskStatus{
					State:     types.TaskLost,
					Source:    types.SourceMaster,
					Reason:    types.ReasonReconciliation,
					Message:   "task unknown to master",
					Timestamp: time.Now(),
				})
				continue
			}
			out = append(out, t.LatestStatus())
		}
		return out
	})
}
