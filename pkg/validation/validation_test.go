package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
)

func TestValidateResourcesRejectsNegativeScalar(t *testing.T) {
	bad := resources.Resources{resources.Scalar("cpus", -1000, "*")}
	assert.Error(t, ValidateResources(bad))
}

func TestValidateResourcesRejectsEmptyRole(t *testing.T) {
	bad := resources.Resources{{Name: "cpus", Kind: resources.KindScalar, Scalar: resources.NewValue(1)}}
	assert.Error(t, ValidateResources(bad))
}

func TestValidateResourcesRejectsPersistenceWithoutReservation(t *testing.T) {
	bad := resources.Scalar("disk", resources.NewValue(10), "ads")
	bad.Persistence = &resources.Persistence{ID: "vol1"}
	assert.Error(t, ValidateResources(resources.Resources{bad}))
}

func TestValidateResourcesAcceptsWellFormed(t *testing.T) {
	good := resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")}
	assert.NoError(t, ValidateResources(good))
}

func newFrameworkAndSlave() (*types.Framework, *types.Slave) {
	f := types.NewFramework("fw1", types.FrameworkInfo{}, "", time.Unix(0, 0))
	s := types.NewSlave("s1", types.SlaveInfo{Hostname: "h1"}, "", time.Unix(0, 0))
	return f, s
}

func TestValidateTaskRejectsOverOffered(t *testing.T) {
	f, s := newFrameworkAndSlave()
	offered := resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")}
	task := types.TaskInfo{TaskID: "t1", SlaveID: "s1", Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")}}
	assert.Error(t, ValidateTask(task, f, s, offered))
}

func TestValidateTaskRejectsWrongSlave(t *testing.T) {
	f, s := newFrameworkAndSlave()
	offered := resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")}
	task := types.TaskInfo{TaskID: "t1", SlaveID: "other", Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")}}
	assert.Error(t, ValidateTask(task, f, s, offered))
}

func TestValidateTaskRejectsDuplicateRunningID(t *testing.T) {
	f, s := newFrameworkAndSlave()
	f.Tasks["t1"] = &types.Task{TaskID: "t1"}
	offered := resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")}
	task := types.TaskInfo{TaskID: "t1", SlaveID: "s1", Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")}}
	assert.Error(t, ValidateTask(task, f, s, offered))
}

func TestValidateTaskRejectsExecutorReuseWithDifferentInfo(t *testing.T) {
	f, s := newFrameworkAndSlave()
	s.RegisterExecutor("fw1", types.ExecutorInfo{ExecutorID: "e1", Command: "old"})
	offered := resources.Resources{resources.Scalar("cpus", resources.NewValue(2), "*")}
	task := types.TaskInfo{
		TaskID:    "t1",
		SlaveID:   "s1",
		Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")},
		Executor:  &types.ExecutorInfo{ExecutorID: "e1", Command: "new"},
	}
	assert.Error(t, ValidateTask(task, f, s, offered))
}

func TestValidateOffersRequiresSameSlave(t *testing.T) {
	f, _ := newFrameworkAndSlave()
	offers := map[types.OfferID]*types.Offer{
		"o1": {ID: "o1", FrameworkID: "fw1", SlaveID: "s1"},
		"o2": {ID: "o2", FrameworkID: "fw1", SlaveID: "s2"},
	}
	lookup := func(id types.OfferID) (*types.Offer, bool) { o, ok := offers[id]; return o, ok }
	err := ValidateOffers([]types.OfferID{"o1", "o2"}, lookup, f)
	assert.Error(t, err)
}

func TestValidateOffersRejectsForeignOffer(t *testing.T) {
	f, _ := newFrameworkAndSlave()
	offers := map[types.OfferID]*types.Offer{
		"o1": {ID: "o1", FrameworkID: "other", SlaveID: "s1"},
	}
	lookup := func(id types.OfferID) (*types.Offer, bool) { o, ok := offers[id]; return o, ok }
	err := ValidateOffers([]types.OfferID{"o1"}, lookup, f)
	assert.Error(t, err)
}

func TestValidateOffersAcceptsSameSlaveBatch(t *testing.T) {
	f, _ := newFrameworkAndSlave()
	offers := map[types.OfferID]*types.Offer{
		"o1": {ID: "o1", FrameworkID: "fw1", SlaveID: "s1"},
		"o2": {ID: "o2", FrameworkID: "fw1", SlaveID: "s1"},
	}
	lookup := func(id types.OfferID) (*types.Offer, bool) { o, ok := offers[id]; return o, ok }
	require.NoError(t, ValidateOffers([]types.OfferID{"o1", "o2"}, lookup, f))
}

func TestValidateCreateRejectsDuplicatePersistenceID(t *testing.T) {
	checkpointed := func() resources.Resources {
		r := resources.Scalar("disk", resources.NewValue(10), "ads")
		r.Persistence = &resources.Persistence{ID: "vol1"}
		r.Reservation = &resources.Reservation{Principal: "p"}
		return resources.Resources{r}
	}()
	create := func() resources.Resources {
		r := resources.Scalar("disk", resources.NewValue(5), "ads")
		r.Persistence = &resources.Persistence{ID: "vol1"}
		r.Reservation = &resources.Reservation{Principal: "p"}
		return resources.Resources{r}
	}()
	assert.Error(t, ValidateCreate(create, checkpointed))
}

func TestValidateDestroyRejectsMissingVolume(t *testing.T) {
	checkpointed := resources.Empty()
	destroy := func() resources.Resources {
		r := resources.Scalar("disk", resources.NewValue(5), "ads")
		r.Persistence = &resources.Persistence{ID: "vol1"}
		r.Reservation = &resources.Reservation{Principal: "p"}
		return resources.Resources{r}
	}()
	assert.Error(t, ValidateDestroy(destroy, checkpointed))
}
