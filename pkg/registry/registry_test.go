package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/citadel/pkg/resources"
	"github.com/cuemby/citadel/pkg/types"
)

func newTestSlave(id types.SlaveID) *types.Slave {
	return types.NewSlave(id, types.SlaveInfo{
		Hostname:  "host-" + string(id),
		Resources: resources.Resources{resources.Scalar("cpus", resources.NewValue(4), "*")},
	}, "10.0.0.1:5051", time.Unix(0, 0))
}

func TestAddFrameworkEmitsChange(t *testing.T) {
	reg := New()
	var got []Change
	reg.Subscribe(func(c Change) { got = append(got, c) })

	f := types.NewFramework("fw1", types.FrameworkInfo{Name: "marathon", Role: "*"}, "10.0.0.2:1000", time.Unix(0, 0))
	reg.AddFramework(f)

	require.Len(t, got, 1)
	assert.Equal(t, FrameworkAdded, got[0].Kind)
	assert.Equal(t, types.FrameworkID("fw1"), got[0].FrameworkID)

	fetched, ok := reg.Framework("fw1")
	require.True(t, ok)
	assert.Equal(t, f, fetched)
}

func TestAddOfferRequiresKnownFrameworkAndSlave(t *testing.T) {
	reg := New()
	offer := &types.Offer{ID: "o1", FrameworkID: "fw1", SlaveID: "s1"}
	err := reg.AddOffer(offer)
	assert.Error(t, err)

	reg.AddFramework(types.NewFramework("fw1", types.FrameworkInfo{}, "", time.Unix(0, 0)))
	err = reg.AddOffer(offer)
	assert.Error(t, err)

	reg.AddSlave(newTestSlave("s1"))
	err = reg.AddOffer(offer)
	require.NoError(t, err)

	got, ok := reg.Offer("o1")
	require.True(t, ok)
	assert.Equal(t, offer, got)
}

func TestRemoveOfferDetachesFromBothSides(t *testing.T) {
	reg := New()
	reg.AddFramework(types.NewFramework("fw1", types.FrameworkInfo{}, "", time.Unix(0, 0)))
	reg.AddSlave(newTestSlave("s1"))
	offer := &types.Offer{ID: "o1", FrameworkID: "fw1", SlaveID: "s1"}
	require.NoError(t, reg.AddOffer(offer))

	reg.RemoveOffer("o1")

	_, ok := reg.Offer("o1")
	assert.False(t, ok)
	f, _ := reg.Framework("fw1")
	assert.Empty(t, f.Offers)
	s, _ := reg.Slave("s1")
	assert.Empty(t, s.Offers)
}

func TestRemoveFrameworkRescindsOffersAndClearsUsage(t *testing.T) {
	reg := New()
	reg.AddFramework(types.NewFramework("fw1", types.FrameworkInfo{}, "", time.Unix(0, 0)))
	reg.AddSlave(newTestSlave("s1"))
	require.NoError(t, reg.AddOffer(&types.Offer{ID: "o1", FrameworkID: "fw1", SlaveID: "s1"}))
	taskResources := resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")}
	require.NoError(t, reg.AddTask(&types.Task{TaskID: "t1", FrameworkID: "fw1", SlaveID: "s1", Resources: taskResources}, nil))

	reg.RemoveFramework("fw1")

	_, ok := reg.Framework("fw1")
	assert.False(t, ok)
	_, ok = reg.Offer("o1")
	assert.False(t, ok)
	s, _ := reg.Slave("s1")
	assert.Empty(t, s.Offers)
	_, hasUsage := s.UsedResources["fw1"]
	assert.False(t, hasUsage)
}

func TestTransitionTaskToTerminalFreesResourcesAndArchives(t *testing.T) {
	reg := New()
	var changes []Change
	reg.Subscribe(func(c Change) { changes = append(changes, c) })

	reg.AddFramework(types.NewFramework("fw1", types.FrameworkInfo{}, "", time.Unix(0, 0)))
	reg.AddSlave(newTestSlave("s1"))

	taskResources := resources.Resources{resources.Scalar("cpus", resources.NewValue(1), "*")}
	task := &types.Task{TaskID: "t1", FrameworkID: "fw1", SlaveID: "s1", State: types.TaskStaging, Resources: taskResources}
	require.NoError(t, reg.AddTask(task, nil))

	s, _ := reg.Slave("s1")
	assert.True(t, s.UsedResources["fw1"].Equal(taskResources))

	err := reg.TransitionTask("fw1", "t1", types.TaskStatus{State: types.TaskFinished, Source: types.SourceSlave})
	require.NoError(t, err)

	_, ok := reg.Task("fw1", "t1")
	assert.False(t, ok, "terminal task should be archived out of the live map")

	f, _ := reg.Framework("fw1")
	require.Len(t, f.CompletedTasks(), 1)
	assert.Equal(t, types.TaskFinished, f.CompletedTasks()[0].State)

	assert.True(t, s.UsedResources["fw1"].Equal(resources.Empty()))

	var sawRecovered bool
	for _, c := range changes {
		if c.Kind == ResourcesRecovered {
			sawRecovered = true
			assert.True(t, c.Resources.Equal(taskResources))
		}
	}
	assert.True(t, sawRecovered)
}

func TestTasksSortedByID(t *testing.T) {
	reg := New()
	reg.AddFramework(types.NewFramework("fw1", types.FrameworkInfo{}, "", time.Unix(0, 0)))
	reg.AddSlave(newTestSlave("s1"))
	require.NoError(t, reg.AddTask(&types.Task{TaskID: "b", FrameworkID: "fw1", SlaveID: "s1"}, nil))
	require.NoError(t, reg.AddTask(&types.Task{TaskID: "a", FrameworkID: "fw1", SlaveID: "s1"}, nil))

	got := reg.Tasks("fw1")
	require.Len(t, got, 2)
	assert.Equal(t, types.TaskID("a"), got[0].TaskID)
	assert.Equal(t, types.TaskID("b"), got[1].TaskID)
}
