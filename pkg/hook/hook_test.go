package hook

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/citadel/pkg/types"
)

type stubHook struct {
	name        string
	labels      map[string]string
	labelErr    error
	env         map[string]string
	envErr      error
	removeErr   error
	removeCalls *int
}

func (s stubHook) Name() string { return s.name }

func (s stubHook) DecorateLabels(ctx LaunchContext) (map[string]string, error) {
	return s.labels, s.labelErr
}

func (s stubHook) DecorateEnvironment(executor types.ExecutorInfo, env map[string]string) (map[string]string, error) {
	if s.envErr != nil {
		return nil, s.envErr
	}
	merged := map[string]string{}
	for k, v := range env {
		merged[k] = v
	}
	for k, v := range s.env {
		merged[k] = v
	}
	return merged, nil
}

func (s stubHook) ExecutorRemoved(framework types.FrameworkInfo, executor types.ExecutorInfo) error {
	if s.removeCalls != nil {
		*s.removeCalls++
	}
	return s.removeErr
}

func TestDecorateLabelsMergesAcrossHooks(t *testing.T) {
	chain := NewChain(
		stubHook{name: "a", labels: map[string]string{"foo": "1"}},
		stubHook{name: "b", labels: map[string]string{"bar": "2"}},
	)
	labels := chain.DecorateLabels(LaunchContext{})
	assert.Equal(t, map[string]string{"foo": "1", "bar": "2"}, labels)
}

func TestDecorateLabelsLaterHookWinsOnCollision(t *testing.T) {
	chain := NewChain(
		stubHook{name: "a", labels: map[string]string{"foo": "1"}},
		stubHook{name: "b", labels: map[string]string{"foo": "2"}},
	)
	labels := chain.DecorateLabels(LaunchContext{})
	assert.Equal(t, "2", labels["foo"])
}

func TestDecorateLabelsSkipsFailingHook(t *testing.T) {
	chain := NewChain(
		stubHook{name: "broken", labelErr: errors.New("boom")},
		stubHook{name: "ok", labels: map[string]string{"foo": "1"}},
	)
	labels := chain.DecorateLabels(LaunchContext{})
	assert.Equal(t, map[string]string{"foo": "1"}, labels)
}

func TestDecorateEnvironmentSeesPriorHookOutput(t *testing.T) {
	chain := NewChain(
		stubHook{name: "a", env: map[string]string{"A": "1"}},
		stubHook{name: "b", env: map[string]string{"B": "2"}},
	)
	env := chain.DecorateEnvironment(types.ExecutorInfo{})
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, env)
}

func TestExecutorRemovedCallsEveryHookDespiteErrors(t *testing.T) {
	var calls int
	chain := NewChain(
		stubHook{name: "a", removeErr: errors.New("boom"), removeCalls: &calls},
		stubHook{name: "b", removeCalls: &calls},
	)
	chain.ExecutorRemoved(types.FrameworkInfo{}, types.ExecutorInfo{})
	assert.Equal(t, 2, calls)
}
