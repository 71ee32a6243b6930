package cmdlist

import (
	"github.com/vkngwrapper/cmdtrack/cmdutils"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
)

func (d *commandListData) assertRecording() {
	cmdutils.Assertf(!d.isClosed, "attempted to record a barrier into a closed command list")
}

// AddTransitionBarrier queues a transition of resource from before to after. Queued barriers are
// issued together on the next FlushResourceBarriers or Close.
func (h Handle) AddTransitionBarrier(resource Resource, before, after state.ResourceStates, subresource int) {
	d := h.mustData()
	d.assertRecording()

	d.batcher.AddTransition(resource, before, after, subresource)
	resource.UpdateResidency(h)
}

// AddUAVBarrier queues an unordered-access barrier on resource. A nil resource orders all
// unordered-access work.
func (h Handle) AddUAVBarrier(resource Resource) {
	d := h.mustData()
	d.assertRecording()

	d.batcher.AddUAV(resource)
}

// AddAliasingBarrier queues an aliasing barrier between two resources sharing memory. Either may
// be nil.
func (h Handle) AddAliasingBarrier(before, after Resource) {
	d := h.mustData()
	d.assertRecording()

	d.batcher.AddAliasingBarrier(before, after)
}

// FlushResourceBarriers issues every queued barrier to the native list in a single call. Nothing is
// issued when no barrier is queued.
func (h Handle) FlushResourceBarriers() {
	d := h.mustData()
	d.batcher.Flush(d.native)
}

// QueuedBarrierCount is the number of barriers waiting for the next flush
func (h Handle) QueuedBarrierCount() int {
	return h.mustData().batcher.Len()
}

// GetResourceState returns the state this list believes resource is in. Repeated calls for the
// same resource return the same object until the list is executed or reset.
func (h Handle) GetResourceState(resource Resource) *state.SubresourceStates {
	return h.mustData().tracker.GetResourceState(resource)
}

// TrackedResourceCount is the number of resources whose state the list is tracking
func (h Handle) TrackedResourceCount() int {
	return h.mustData().tracker.Count()
}

// AddPendingResourceBarrier records a transition into state whose before state is not known yet. It
// is resolved against the resource's committed state when the list is executed.
func (h Handle) AddPendingResourceBarrier(resource Resource, after state.ResourceStates, subresource int) {
	d := h.mustData()
	d.assertRecording()

	d.pendingBarriers = append(d.pendingBarriers, PendingResourceBarrier{
		Resource:    resource,
		State:       after,
		Subresource: subresource,
	})
}

// PendingResourceBarriers returns the barriers waiting on resolution. The slice is only valid until
// the list is reset.
func (h Handle) PendingResourceBarriers() []PendingResourceBarrier {
	return h.mustData().pendingBarriers
}

// TransitionResource moves resource (or a single subresource) into after, queueing a transition
// when the tracked state is known and differs, or a pending barrier when it is not yet known.
// It returns true if anything was recorded. Resources that do not require tracking are ignored.
func (h Handle) TransitionResource(resource Resource, after state.ResourceStates, subresource int) bool {
	d := h.mustData()
	d.assertRecording()
	cmdutils.Assertf(after.IsKnown(), "attempted to transition a resource into %s", after)

	if !resource.RequiresResourceStateTracking() {
		return false
	}

	tracked := d.tracker.GetResourceState(resource)

	if subresource == state.AllSubresources && !tracked.AreAllSubresourcesSame() {
		recorded := false
		for i := 0; i < tracked.SubresourceCount(); i++ {
			if h.transitionSubresource(resource, tracked, after, i) {
				recorded = true
			}
		}
		tracked.SetResourceState(after)
		return recorded
	}

	return h.transitionSubresource(resource, tracked, after, subresource)
}

func (h Handle) transitionSubresource(resource Resource, tracked *state.SubresourceStates, after state.ResourceStates, subresource int) bool {
	before := tracked.SubresourceState(subresource)

	if before == state.ResourceStateTBD {
		h.AddPendingResourceBarrier(resource, after, subresource)
		tracked.SetSubresourceState(subresource, after)
		resource.UpdateResidency(h)
		return true
	}

	if before == after {
		return false
	}

	h.AddTransitionBarrier(resource, before, after, subresource)
	tracked.SetSubresourceState(subresource, after)
	return true
}
