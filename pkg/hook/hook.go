// Package hook runs a chain of pluggable decorators over a task launch
// or executor teardown, folding each decorator's contribution into the
// next's input. A decorator that errors is logged and skipped — one
// broken hook must never block a task launch.
package hook

import (
	"github.com/cuemby/citadel/pkg/log"
	"github.com/cuemby/citadel/pkg/types"
)

// LaunchContext is what a label decorator sees about the task it's
// about to launch.
type LaunchContext struct {
	Task      types.TaskInfo
	Framework types.FrameworkInfo
	Slave     types.SlaveInfo
}

// LabelDecorator contributes labels for a task about to be launched.
// Returning a nil map and a nil error means "no opinion".
type LabelDecorator interface {
	Name() string
	DecorateLabels(ctx LaunchContext) (map[string]string, error)
}

// EnvironmentDecorator contributes environment variables for an
// executor about to start. Each decorator sees the environment built
// up by every decorator before it, so later hooks can extend rather
// than blindly overwrite earlier ones.
type EnvironmentDecorator interface {
	Name() string
	DecorateEnvironment(executor types.ExecutorInfo, env map[string]string) (map[string]string, error)
}

// RemoveExecutorHook observes an executor being torn down. It cannot
// affect the teardown; it exists for side effects like cleanup or
// auditing.
type RemoveExecutorHook interface {
	Name() string
	ExecutorRemoved(framework types.FrameworkInfo, executor types.ExecutorInfo) error
}

// Chain is an ordered, fixed set of hooks loaded at startup. There is
// no runtime registration: the set a Chain runs is decided once, when
// it's built.
type Chain struct {
	labelers   []LabelDecorator
	environers []EnvironmentDecorator
	removers   []RemoveExecutorHook
}

// NewChain builds a Chain from whichever decorator interfaces each
// hook implements; a hook may implement more than one.
func NewChain(hooks ...interface{}) *Chain {
	c := &Chain{}
	for _, h := range hooks {
		if l, ok := h.(LabelDecorator); ok {
			c.labelers = append(c.labelers, l)
		}
		if e, ok := h.(EnvironmentDecorator); ok {
			c.environers = append(c.environers, e)
		}
		if r, ok := h.(RemoveExecutorHook); ok {
			c.removers = append(c.removers, r)
		}
	}
	return c
}

// DecorateLabels folds every LabelDecorator's output into one label
// set. Hooks run in registration order; a later hook's keys win on
// collision, matching the proto MergeFrom semantics this is grounded
// on.
func (c *Chain) DecorateLabels(ctx LaunchContext) map[string]string {
	labels := map[string]string{}
	for _, hook := range c.labelers {
		result, err := hook.DecorateLabels(ctx)
		if err != nil {
			log.WithComponent("hook").Warn().Err(err).Str("hook", hook.Name()).Msg("label decorator failed")
			continue
		}
		for k, v := range result {
			labels[k] = v
		}
	}
	return labels
}

// DecorateEnvironment folds every EnvironmentDecorator's output into
// one environment, each hook seeing what the previous ones produced.
func (c *Chain) DecorateEnvironment(executor types.ExecutorInfo) map[string]string {
	env := map[string]string{}
	for _, hook := range c.environers {
		result, err := hook.DecorateEnvironment(executor, env)
		if err != nil {
			log.WithComponent("hook").Warn().Err(err).Str("hook", hook.Name()).Msg("environment decorator failed")
			continue
		}
		for k, v := range result {
			env[k] = v
		}
	}
	return env
}

// ExecutorRemoved notifies every RemoveExecutorHook. Errors are logged
// and do not stop subsequent hooks from running.
func (c *Chain) ExecutorRemoved(framework types.FrameworkInfo, executor types.ExecutorInfo) {
	for _, hook := range c.removers {
		if err := hook.ExecutorRemoved(framework, executor); err != nil {
			log.WithComponent("hook").Warn().Err(err).Str("hook", hook.Name()).Msg("remove executor hook failed")
		}
	}
}
