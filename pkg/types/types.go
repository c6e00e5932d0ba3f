// Package types defines the core cluster data model: opaque identifiers,
// roles, filters, and the Framework/Slave/Offer/Task records the
// Registry owns. These are value-ish structs passed by pointer between
// the Master and Registry within a single message handler; the
// Allocator never reaches into them (it keeps its own shadow state
// keyed by the same ids).
package types

import (
	"time"

	"github.com/cuemby/citadel/pkg/resources"
)

// FrameworkID, SlaveID, OfferID, TaskID, and ExecutorID are opaque
// unique identifiers. FrameworkID persists across reconnections;
// OfferID is single-use and never reused after its offer goes
// terminal.
type (
	FrameworkID string
	SlaveID     string
	OfferID     string
	TaskID      string
	ExecutorID  string
)

// Role is a named allocation bucket with a fair-share weight. Every
// framework belongs to exactly one role.
type Role struct {
	Name   string
	Weight float64 // > 0; defaults to 1.0 if unset.
}

// EffectiveWeight returns Weight, defaulting to 1.0 when unset or
// non-positive.
func (r Role) EffectiveWeight() float64 {
	if r.Weight <= 0 {
		return 1.0
	}
	return r.Weight
}

// Filter suppresses re-offering of matching resources to a framework
// until it expires. A zero Resources slice with an Expiry still in the
// future acts as a blanket refusal of the whole slave; a zero Expiry
// counts as already expired.
type Filter struct {
	FrameworkID FrameworkID
	SlaveID     SlaveID
	Resources   resources.Resources // nil means "the whole offer".
	Expiry      time.Time
}

// Expired reports whether the filter no longer suppresses offers as of
// now.
func (f Filter) Expired(now time.Time) bool {
	return !now.Before(f.Expiry)
}

// Matches reports whether the filter suppresses offering candidate out
// of slaveID to the filter's framework.
func (f Filter) Matches(slaveID SlaveID, candidate resources.Resources) bool {
	if f.SlaveID != slaveID {
		return false
	}
	if len(f.Resources) == 0 {
		return true
	}
	for _, want := range f.Resources {
		for _, have := range candidate {
			if want.Name == have.Name && want.Kind == have.Kind {
				return true
			}
		}
	}
	return false
}

// DefaultRefuseSeconds is the filter lifetime applied when a framework
// declines without specifying one.
const DefaultRefuseSeconds = 5.0

// FrameworkInfo is the framework-supplied registration payload.
type FrameworkInfo struct {
	Name             string
	Role             string
	User             string
	WebUI            string
	Principal        string
	Checkpoint       bool
	FailoverTimeout  time.Duration
}

// FrameworkLifecycle tracks which phase of registered / active /
// deactivated / removed a framework is in.
type FrameworkLifecycle int

const (
	FrameworkRegistered FrameworkLifecycle = iota
	FrameworkActive
	FrameworkDeactivated
	FrameworkRemoved
)

// completedTasksCapacity bounds the completedTasks ring per framework.
const completedTasksCapacity = 1000

// Framework is the Registry's authoritative record of a connected
// tenant. The offers/usedResources/offeredResources invariant from the
// data model — usedResources + offeredResources equals the sum over
// outstanding offers plus resources attributed to non-terminal tasks —
// is maintained by Registry methods, never mutated directly here.
type Framework struct {
	ID    FrameworkID
	Info  FrameworkInfo
	State FrameworkLifecycle

	Endpoint         string
	RegisteredTime   time.Time
	ReregisteredTime time.Time

	// DeactivatedAt is when this framework's scheduler driver last
	// disconnected. Zero while the framework is active. Used to measure
	// its failover grace against FrameworkInfo.FailoverTimeout.
	DeactivatedAt time.Time

	PendingTasks map[TaskID]*TaskInfo
	Tasks        map[TaskID]*Task
	completed    []*Task // ring buffer, oldest evicted first

	Offers map[OfferID]*Offer

	UsedResources    resources.Resources
	OfferedResources resources.Resources
}

// NewFramework constructs a Framework in the Registered state.
func NewFramework(id FrameworkID, info FrameworkInfo, endpoint string, now time.Time) *Framework {
	return &Framework{
		ID:             id,
		Info:           info,
		State:          FrameworkRegistered,
		Endpoint:       endpoint,
		RegisteredTime: now,
		PendingTasks:   map[TaskID]*TaskInfo{},
		Tasks:          map[TaskID]*Task{},
		Offers:         map[OfferID]*Offer{},
	}
}

// ArchiveTask moves a terminal task into the bounded completed ring.
func (f *Framework) ArchiveTask(t *Task) {
	delete(f.Tasks, t.TaskID)
	f.completed = append(f.completed, t)
	if len(f.completed) > completedTasksCapacity {
		f.completed = f.completed[len(f.completed)-completedTasksCapacity:]
	}
}

// CompletedTasks returns the archived terminal tasks, oldest first.
func (f *Framework) CompletedTasks() []*Task {
	return f.completed
}

// Active reports whether the framework may currently receive offers.
func (f *Framework) Active() bool {
	return f.State == FrameworkActive || f.State == FrameworkRegistered
}

// SlaveInfo is the slave-supplied registration payload.
type SlaveInfo struct {
	Hostname   string
	Resources  resources.Resources
	Attributes map[string]string
	Checkpoint bool
}

// SlaveLifecycle tracks which phase of admitted / active / disconnected
// / removed a slave is in.
type SlaveLifecycle int

const (
	SlaveAdmitted SlaveLifecycle = iota
	SlaveActive
	SlaveDisconnected
	SlaveRemoved
)

// Slave is the Registry's authoritative record of a worker node. The
// data model invariant info.Resources == sum(UsedResources) +
// sum(offered) + available is maintained by Registry methods.
type Slave struct {
	ID    SlaveID
	Info  SlaveInfo
	State SlaveLifecycle

	Endpoint         string
	RegisteredTime   time.Time
	ReregisteredTime time.Time
	LastPing         time.Time

	// Tasks indexed by owning framework, then task id.
	Tasks map[FrameworkID]map[TaskID]*Task

	Offers map[OfferID]*Offer

	// UsedResources is the per-framework allocation on this slave.
	UsedResources map[FrameworkID]resources.Resources

	// CheckpointedResources holds reservations and persistent volumes
	// that survive a slave disconnect/reregister cycle.
	CheckpointedResources resources.Resources

	// executors tracks the ExecutorInfo a framework launched its
	// currently-running executors with, so a task reusing an executor id
	// can be checked for an identical definition.
	executors map[FrameworkID]map[ExecutorID]ExecutorInfo
}

// NewSlave constructs a Slave in the Admitted state.
func NewSlave(id SlaveID, info SlaveInfo, endpoint string, now time.Time) *Slave {
	return &Slave{
		ID:                    id,
		Info:                  info,
		State:                 SlaveAdmitted,
		Endpoint:              endpoint,
		RegisteredTime:        now,
		LastPing:              now,
		Tasks:                 map[FrameworkID]map[TaskID]*Task{},
		Offers:                map[OfferID]*Offer{},
		UsedResources:         map[FrameworkID]resources.Resources{},
		executors:             map[FrameworkID]map[ExecutorID]ExecutorInfo{},
	}
}

// RegisterExecutor records the ExecutorInfo a framework launched an
// executor id with, so a later task reusing that id can be checked
// against it.
func (s *Slave) RegisterExecutor(frameworkID FrameworkID, info ExecutorInfo) {
	if s.executors[frameworkID] == nil {
		s.executors[frameworkID] = map[ExecutorID]ExecutorInfo{}
	}
	s.executors[frameworkID][info.ExecutorID] = info
}

// ExecutorInfo returns the ExecutorInfo a framework's executor id was
// launched with, if it's still running on this slave.
func (s *Slave) ExecutorInfo(frameworkID FrameworkID, id ExecutorID) (ExecutorInfo, bool) {
	info, ok := s.executors[frameworkID][id]
	return info, ok
}

// Used returns the sum of this slave's per-framework usedResources.
func (s *Slave) Used() resources.Resources {
	total := resources.Empty()
	for _, r := range s.UsedResources {
		total = total.Add(r)
	}
	return total
}

// Offered returns the sum of this slave's outstanding offers.
func (s *Slave) Offered() resources.Resources {
	total := resources.Empty()
	for _, o := range s.Offers {
		total = total.Add(o.Resources)
	}
	return total
}

// Free returns the slave's currently unoffered, unused resources:
// info.Resources - used - offered. Returns an empty bag, rather than
// panicking, if used plus offered is not contained in info.Resources.
func (s *Slave) Free() resources.Resources {
	committed := s.Used().Add(s.Offered())
	free, ok := s.Info.Resources.Subtract(committed)
	if !ok {
		// Invariant violated upstream; fail safe to empty rather than panic
		// so a single bad write doesn't take down the actor.
		return resources.Empty()
	}
	return free
}

// Active reports whether the slave may currently receive offers.
func (s *Slave) Active() bool {
	return s.State == SlaveActive || s.State == SlaveAdmitted
}

// OfferLifecycle tracks an offer's single terminal transition:
// created -> (accepted | declined | rescinded | expired).
type OfferLifecycle int

const (
	OfferLive OfferLifecycle = iota
	OfferAccepted
	OfferDeclined
	OfferRescinded
	OfferExpired
)

// Offer is a time-bounded grant of one slave's resources to one
// framework. Every live offer's Resources were already subtracted from
// the slave's free pool at creation; any terminal transition other
// than a matching accept must restore them.
type Offer struct {
	ID          OfferID
	FrameworkID FrameworkID
	SlaveID     SlaveID
	Resources   resources.Resources
	CreatedAt   time.Time
	State       OfferLifecycle
}

// TaskState is a task's position in STAGING -> STARTING -> RUNNING ->
// {FINISHED, FAILED, KILLED, LOST, ERROR}.
type TaskState int

const (
	TaskStaging TaskState = iota
	TaskStarting
	TaskRunning
	TaskFinished
	TaskFailed
	TaskKilled
	TaskLost
	TaskError
)

// Terminal reports whether the state is one of the five terminal
// states that release resources back to the Allocator.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost, TaskError:
		return true
	default:
		return false
	}
}

func (s TaskState) String() string {
	switch s {
	case TaskStaging:
		return "STAGING"
	case TaskStarting:
		return "STARTING"
	case TaskRunning:
		return "RUNNING"
	case TaskFinished:
		return "FINISHED"
	case TaskFailed:
		return "FAILED"
	case TaskKilled:
		return "KILLED"
	case TaskLost:
		return "LOST"
	case TaskError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Source identifies who generated a TaskStatus, preserved bit-exact
// for wire compatibility per the external interface contract.
type Source int

const (
	SourceMaster Source = iota
	SourceSlave
	SourceExecutor
)

// Reason further qualifies a TaskStatus.
type Reason int

const (
	ReasonTaskInvalid Reason = iota
	ReasonReconciliation
	ReasonSlaveRemoved
	ReasonFrameworkRemoved
	ReasonExecutorTerminated
	ReasonInvalidOffers
)

// TaskStatus is one entry in a Task's ordered status history.
type TaskStatus struct {
	State     TaskState
	Source    Source
	Reason    Reason
	Message   string
	SlaveID   *SlaveID // nil for reconciliation answers about unknown tasks.
	UUID      string   // used to make StatusUpdateAcknowledgement idempotent.
	Timestamp time.Time
}

// ExecutorInfo describes the executor a task runs under. Two
// ExecutorInfo values must be "identical" (by Equal) for a slave to
// allow an executor id to be reused across tasks.
type ExecutorInfo struct {
	ExecutorID ExecutorID
	Command    string
	Resources  resources.Resources
}

// Equal reports structural equality, used by validation to enforce
// that a reused executor id carries an identical ExecutorInfo to the
// one already running on the slave.
func (e ExecutorInfo) Equal(other ExecutorInfo) bool {
	return e.ExecutorID == other.ExecutorID &&
		e.Command == other.Command &&
		e.Resources.Equal(other.Resources)
}

// OperationKind selects which of the five accept-path operations an
// Operation performs.
type OperationKind int

const (
	OpLaunch OperationKind = iota
	OpReserve
	OpUnreserve
	OpCreate
	OpDestroy
)

func (k OperationKind) String() string {
	switch k {
	case OpLaunch:
		return "LAUNCH"
	case OpReserve:
		return "RESERVE"
	case OpUnreserve:
		return "UNRESERVE"
	case OpCreate:
		return "CREATE"
	case OpDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// Operation is one entry in an AcceptOffers batch. Exactly one of the
// payload fields is populated, selected by Kind: Tasks for LAUNCH,
// Reserve/Unreserve/Create/Destroy resources for the corresponding
// operation. Reserve/Create resources already carry the role,
// reservation, and (for Create) persistence they're asking to apply;
// Unreserve/Destroy resources describe what's being given back.
type Operation struct {
	Kind      OperationKind
	Tasks     []TaskInfo
	Reserve   resources.Resources
	Unreserve resources.Resources
	Create    resources.Resources
	Destroy   resources.Resources
}

// TaskInfo is what a framework submits to launch a task: the request,
// not the Registry's authoritative record.
type TaskInfo struct {
	TaskID    TaskID
	Name      string
	SlaveID   SlaveID
	Resources resources.Resources
	Executor  *ExecutorInfo // nil for command tasks.
	Command   string        // set only when Executor == nil.
	Labels    map[string]string
}

// Task is the Registry's authoritative record of a launched task.
// Exactly one non-terminal Task exists per (FrameworkID, TaskID).
type Task struct {
	TaskID      TaskID
	Name        string
	FrameworkID FrameworkID
	SlaveID     SlaveID
	ExecutorID  *ExecutorID
	State       TaskState
	Resources   resources.Resources
	Statuses    []TaskStatus
}

// AppendStatus records a new status and updates the task's current
// state.
func (t *Task) AppendStatus(s TaskStatus) {
	t.Statuses = append(t.Statuses, s)
	t.State = s.State
}

// LatestStatus returns the most recent status, or the zero value if
// none have been recorded yet.
func (t *Task) LatestStatus() TaskStatus {
	if len(t.Statuses) == 0 {
		return TaskStatus{}
	}
	return t.Statuses[len(t.Statuses)-1]
}
