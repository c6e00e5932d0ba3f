// Package validation holds the pure, side-effect-free checks the
// Master runs before admitting a framework's resources, tasks, offer
// references, and reservation operations. Every function here returns
// a plain error and touches no Registry state directly; the Master
// decides what to do with a validation failure (reject a call, or send
// a failed status update for a bad task).
package validation

import (
	"fmt"

	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
)

// ValidateResources checks that a bag of resources is internally
// well-formed: non-negative scalars, well-ordered ranges, a role on
// every entry, and persistence only ever paired with a reservation
// (a persistent volume cannot exist on unreserved resources).
func ValidateResources(rs resources.Resources) error {
	for _, r := range rs {
		if r.Name == "" {
			return fmt.Errorf("validation: resource has an empty name")
		}
		if r.Role == "" {
			return fmt.Errorf("validation: resource %q has an empty role", r.Name)
		}
		switch r.Kind {
		case resources.KindScalar:
			if r.Scalar < 0 {
				return fmt.Errorf("validation: resource %q has a negative scalar value", r.Name)
			}
		case resources.KindRange:
			for _, rg := range r.Ranges {
				if rg.Begin > rg.End {
					return fmt.Errorf("validation: resource %q has an invalid range [%d-%d]", r.Name, rg.Begin, rg.End)
				}
			}
		case resources.KindSet:
			seen := map[string]bool{}
			for _, item := range r.Set {
				if seen[item] {
					return fmt.Errorf("validation: resource %q has a duplicate set item %q", r.Name, item)
				}
				seen[item] = true
			}
		}
		if r.Persistence != nil && r.Reservation == nil {
			return fmt.Errorf("validation: resource %q has a persistent volume without a reservation", r.Name)
		}
	}
	return nil
}

// ValidateTask checks one task against the offered pool it's meant to
// be launched within. Callers validating a batch of tasks against a
// shared offer must call this once per task, in order, subtracting
// each accepted task's resources from offered before validating the
// next — the Master owns that sequencing, not this function.
func ValidateTask(task types.TaskInfo, framework *types.Framework, slave *types.Slave, offered resources.Resources) error {
	if task.TaskID == "" {
		return fmt.Errorf("validation: task has an empty id")
	}
	if err := ValidateResources(task.Resources); err != nil {
		return fmt.Errorf("validation: task %q has invalid resources: %w", task.TaskID, err)
	}
	if !offered.Contains(task.Resources) {
		return fmt.Errorf("validation: task %q requests more resources than are offered", task.TaskID)
	}
	if task.SlaveID != slave.ID {
		return fmt.Errorf("validation: task %q targets slave %q but was offered on %q", task.TaskID, task.SlaveID, slave.ID)
	}
	if _, exists := framework.Tasks[task.TaskID]; exists {
		return fmt.Errorf("validation: task %q is already running for framework %q", task.TaskID, framework.ID)
	}
	if _, pending := framework.PendingTasks[task.TaskID]; pending {
		return fmt.Errorf("validation: task %q is already pending for framework %q", task.TaskID, framework.ID)
	}

	if task.Executor != nil {
		if prior, ok := slave.ExecutorInfo(framework.ID, task.Executor.ExecutorID); ok && !prior.Equal(*task.Executor) {
			return fmt.Errorf("validation: task %q reuses executor %q with a different ExecutorInfo", task.TaskID, task.Executor.ExecutorID)
		}
	}
	return nil
}

// OfferLookup resolves an offer id to its live offer, mirroring the
// Master's own Registry.Offer method without this package importing
// registry (which would create an import cycle, since registry will
// eventually want validation too).
type OfferLookup func(types.OfferID) (*types.Offer, bool)

// ValidateOffers checks that every offer id in a batch is live, owned
// by the calling framework, and anchored to the same slave — Accept
// can only ever consume offers for a single slave at a time.
func ValidateOffers(offerIDs []types.OfferID, lookup OfferLookup, framework *types.Framework) error {
	if len(offerIDs) == 0 {
		return fmt.Errorf("validation: no offers specified")
	}
	var slaveID types.SlaveID
	for i, id := range offerIDs {
		offer, ok := lookup(id)
		if !ok {
			return fmt.Errorf("validation: offer %q is no longer valid", id)
		}
		if offer.FrameworkID != framework.ID {
			return fmt.Errorf("validation: offer %q does not belong to framework %q", id, framework.ID)
		}
		if i == 0 {
			slaveID = offer.SlaveID
			continue
		}
		if offer.SlaveID != slaveID {
			return fmt.Errorf("validation: offer %q is on slave %q, expected %q", id, offer.SlaveID, slaveID)
		}
	}
	return nil
}

// ValidateReserve checks that a RESERVE operation's resources are
// well-formed and already carry the reservation they're asking to
// apply — a RESERVE operation declares the reserved shape directly; the
// Master separately checks the offered pool holds the matching
// unreserved capacity before applying it.
func ValidateReserve(reserve resources.Resources) error {
	if err := ValidateResources(reserve); err != nil {
		return fmt.Errorf("validation: reserve operation has invalid resources: %w", err)
	}
	for _, r := range reserve {
		if r.IsUnreserved() {
			return fmt.Errorf("validation: reserve operation resource %q has no reservation", r.Name)
		}
	}
	return nil
}

// ValidateUnreserve checks that an UNRESERVE operation's resources are
// well-formed and already carry a reservation — a dynamic reservation
// can only be released, never stripped from resources that were never
// reserved.
func ValidateUnreserve(unreserve resources.Resources) error {
	if err := ValidateResources(unreserve); err != nil {
		return fmt.Errorf("validation: unreserve operation has invalid resources: %w", err)
	}
	for _, r := range unreserve {
		if r.IsUnreserved() {
			return fmt.Errorf("validation: unreserve operation resource %q is not reserved", r.Name)
		}
	}
	return nil
}

// ValidateCreate checks that a CREATE operation's persistent volumes
// don't collide with ids already checkpointed on the slave.
func ValidateCreate(create resources.Resources, checkpointed resources.Resources) error {
	if err := ValidateResources(create); err != nil {
		return fmt.Errorf("validation: create operation has invalid resources: %w", err)
	}
	existing := map[string]bool{}
	for _, r := range checkpointed.Persistent() {
		existing[r.Persistence.ID] = true
	}
	for _, r := range create {
		if r.Persistence == nil {
			return fmt.Errorf("validation: create operation resource %q has no persistence id", r.Name)
		}
		if existing[r.Persistence.ID] {
			return fmt.Errorf("validation: persistence id %q already exists on this slave", r.Persistence.ID)
		}
	}
	return nil
}

// ValidateDestroy checks that a DESTROY operation only targets volumes
// that actually exist in the slave's checkpointed resources.
func ValidateDestroy(destroy resources.Resources, checkpointed resources.Resources) error {
	if !checkpointed.Contains(destroy) {
		return fmt.Errorf("validation: destroy operation targets volumes not present on this slave")
	}
	return nil
}
