package state

// TrackedResource can be embedded in resource types to provide the state half of the Resource
// interface
type TrackedResource struct {
	requiresTracking bool
	committed        SubresourceStates
}

// InitTracking sets the resource's committed state for every subresource to initialState.
// Resources that are not tracked still carry a committed state so that barriers resolved against
// them have something to compare with.
func (r *TrackedResource) InitTracking(subresourceCount int, initialState ResourceStates, requiresTracking bool) {
	r.requiresTracking = requiresTracking
	r.committed.Init(subresourceCount, initialState)
}

func (r *TrackedResource) RequiresResourceStateTracking() bool {
	return r.requiresTracking
}

func (r *TrackedResource) SubresourceCount() int {
	return r.committed.SubresourceCount()
}

func (r *TrackedResource) CommittedState() *SubresourceStates {
	return &r.committed
}
