package cmdlist

import "github.com/vkngwrapper/cmdtrack/cmdutils/state"

// Resource is a GPU object that command lists can transition and track
type Resource interface {
	state.Resource

	// UpdateResidency is called whenever a command list transitions or uses the resource, so the
	// resource can insert its backing memory into the list's residency set via Handle.UpdateResidency
	UpdateResidency(commandList Handle)
}

// PendingResourceBarrier is a transition recorded while the resource's state was unknown to the
// recording command list. It is resolved against the resource's committed state when the list
// executes.
type PendingResourceBarrier struct {
	Resource    Resource
	State       state.ResourceStates
	Subresource int
}
