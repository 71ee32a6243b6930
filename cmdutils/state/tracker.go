package state

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
)

// Resource is implemented by any GPU object whose state may be tracked by a command list
type Resource interface {
	// RequiresResourceStateTracking returns false for resources that live in a single fixed
	// state for their whole lifetime, such as upload heaps
	RequiresResourceStateTracking() bool
	// SubresourceCount is the number of independently transitionable subresources
	SubresourceCount() int
	// CommittedState is the state this resource will be in once every submitted command
	// list has executed. It is only read and written by the thread executing command lists.
	CommittedState() *SubresourceStates
}

var statesPool = sync.Pool{
	New: func() any {
		return &SubresourceStates{}
	},
}

// Tracker maps resources to the state a single command list believes they are in while it records.
// Entries are created lazily in the TBD state and the whole map is scoped to one record/execute cycle.
type Tracker struct {
	states *swiss.Map[Resource, *SubresourceStates]
}

func (t *Tracker) Init() {
	t.states = swiss.NewMap[Resource, *SubresourceStates](32)
}

// GetResourceState returns the tracked state object for resource, creating it with every
// subresource in ResourceStateTBD on first access. Calls for the same resource return the same
// object until Empty is called.
func (t *Tracker) GetResourceState(resource Resource) *SubresourceStates {
	cmdutils.Assertf(resource.RequiresResourceStateTracking(), "requested the tracked state of a resource that does not require state tracking")

	states, ok := t.states.Get(resource)
	if ok {
		return states
	}

	states = statesPool.Get().(*SubresourceStates)
	states.Init(resource.SubresourceCount(), ResourceStateTBD)
	t.states.Put(resource, states)
	return states
}

// Count is the number of resources currently tracked
func (t *Tracker) Count() int {
	return t.states.Count()
}

// Visit calls visitor for every tracked resource, in no particular order
func (t *Tracker) Visit(visitor func(resource Resource, states *SubresourceStates)) {
	t.states.Iter(func(resource Resource, states *SubresourceStates) bool {
		visitor(resource, states)
		return false
	})
}

// Empty drops every tracked entry. State objects previously returned by GetResourceState
// must not be used afterward.
func (t *Tracker) Empty() {
	if t.states.Count() == 0 {
		return
	}

	t.states.Iter(func(_ Resource, states *SubresourceStates) bool {
		statesPool.Put(states)
		return false
	})
	t.states.Clear()
}

func (t *Tracker) Validate() error {
	var err error
	t.states.Iter(func(resource Resource, states *SubresourceStates) bool {
		if states.SubresourceCount() != resource.SubresourceCount() {
			err = errors.Errorf("tracked state has %d subresources but the resource has %d", states.SubresourceCount(), resource.SubresourceCount())
			return true
		}

		err = states.Validate()
		return err != nil
	})

	return err
}
