package barrier

import (
	"github.com/vkngwrapper/cmdtrack/cmdutils"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
)

// Batcher accumulates resource barriers so that they can be issued with a single native call.
// Batching exists to reduce native calls: barriers flushed together carry no stronger ordering
// than the same barriers issued one at a time before the next command.
type Batcher struct {
	barriers []Barrier
	stats    cmdutils.Statistics
}

// AddTransition queues a state transition and returns the change in queued barrier count.
//
// If the transition exactly reverts the last queued barrier (same resource and subresource with
// before and after swapped) then both cancel out, the last barrier is removed and -1 is returned.
func (b *Batcher) AddTransition(resource state.Resource, before, after state.ResourceStates, subresource int) int {
	cmdutils.Assertf(before != after, "attempted to queue a transition from %s to itself", before)
	cmdutils.Assertf(before.IsKnown() && after.IsKnown(), "attempted to queue a transition from %s to %s, but transitions between unknown states cannot be recorded", before, after)

	if len(b.barriers) > 0 {
		last := &b.barriers[len(b.barriers)-1]
		if last.Type == TypeTransition &&
			last.Resource == resource &&
			last.Subresource == subresource &&
			last.StateBefore == after &&
			last.StateAfter == before {

			*last = Barrier{}
			b.barriers = b.barriers[:len(b.barriers)-1]
			b.stats.TransitionBarriers--
			b.stats.CancelledTransitions++
			return -1
		}
	}

	b.barriers = append(b.barriers, Barrier{
		Type:        TypeTransition,
		Resource:    resource,
		Subresource: subresource,
		StateBefore: before,
		StateAfter:  after,
	})
	b.stats.TransitionBarriers++
	return 1
}

// AddUAV queues an unordered-access barrier on resource, or on all unordered-access work if
// resource is nil
func (b *Batcher) AddUAV(resource state.Resource) {
	b.barriers = append(b.barriers, Barrier{
		Type:        TypeUAV,
		Resource:    resource,
		Subresource: state.AllSubresources,
	})
	b.stats.UAVBarriers++
}

// AddAliasingBarrier queues an aliasing barrier between two resources sharing memory
func (b *Batcher) AddAliasingBarrier(before, after state.Resource) {
	b.barriers = append(b.barriers, Barrier{
		Type:        TypeAliasing,
		Resource:    after,
		AliasBefore: before,
		Subresource: state.AllSubresources,
	})
	b.stats.AliasingBarriers++
}

// Flush issues every queued barrier to recorder in one call and clears the queue. It returns the
// number of barriers issued; an empty queue issues nothing.
func (b *Batcher) Flush(recorder Recorder) int {
	count := len(b.barriers)
	if count == 0 {
		return 0
	}

	recorder.ResourceBarrier(b.barriers)
	b.stats.AddBatch(count)
	b.Reset()

	return count
}

// Reset drops every queued barrier without issuing them
func (b *Batcher) Reset() {
	for i := range b.barriers {
		b.barriers[i] = Barrier{}
	}
	b.barriers = b.barriers[:0]
}

// Len is the number of queued barriers
func (b *Batcher) Len() int {
	return len(b.barriers)
}

// Barriers returns the queued barriers. The slice is only valid until the next call on the Batcher.
func (b *Batcher) Barriers() []Barrier {
	return b.barriers
}

// AddStatistics adds the counters gathered since the last ClearStatistics to stats
func (b *Batcher) AddStatistics(stats *cmdutils.Statistics) {
	stats.AddStatistics(&b.stats)
}

func (b *Batcher) ClearStatistics() {
	b.stats.Clear()
}
