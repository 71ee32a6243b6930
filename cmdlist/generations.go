package cmdlist

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
)

// CurrentGeneration is the generation the list is recording now. It has not been submitted.
func (h Handle) CurrentGeneration() uint64 {
	d := h.mustData()
	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	return d.currentGeneration
}

// LastCompleteGeneration is the newest generation known to have completed on the GPU
func (h Handle) LastCompleteGeneration() uint64 {
	d := h.mustData()
	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	return d.lastCompleteGeneration
}

// ActiveGenerationCount is the number of submitted generations not yet known to be complete
func (h Handle) ActiveGenerationCount() int {
	d := h.mustData()
	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	return len(d.activeGenerations)
}

// SetSyncPoint stamps the generation being recorded with the fence it was submitted under and
// advances the current generation. The fence is also handed to the list's allocator. The list must
// be closed.
func (h Handle) SetSyncPoint(fence driver.Fence) {
	d := h.mustData()
	cmdutils.Assertf(fence != nil, "command list was given an invalid sync point")
	cmdutils.Assertf(d.isClosed, "command list must be closed before it is given a sync point")

	d.generationMutex.Lock()
	d.activeGenerations = append(d.activeGenerations, generationFence{
		generation: d.currentGeneration,
		fence:      fence,
	})
	d.currentGeneration++
	cmdutils.DebugValidate(d)
	d.generationMutex.Unlock()

	if d.currentAllocator != nil {
		d.currentAllocator.SetSyncPoint(fence)
	}
}

// IsComplete returns true if the given generation has been submitted and the GPU has finished it
func (h Handle) IsComplete(generation uint64) bool {
	d := h.mustData()
	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	return d.isCompleteLocked(generation)
}

func (d *commandListData) isCompleteLocked(generation uint64) bool {
	if generation >= d.currentGeneration {
		// Not submitted yet
		return false
	}

	if generation <= d.lastCompleteGeneration {
		return true
	}

	for len(d.activeGenerations) > 0 {
		oldest := d.activeGenerations[0]
		if generation < oldest.generation {
			return true
		}

		if !oldest.fence.IsComplete() {
			return false
		}

		d.cleanupActiveGenerationsLocked()
	}

	return true
}

// CleanupActiveGenerations drops completed generations from the front of the active queue
func (h Handle) CleanupActiveGenerations() {
	d := h.mustData()
	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	d.cleanupActiveGenerationsLocked()
}

func (d *commandListData) cleanupActiveGenerationsLocked() {
	completed := 0
	for completed < len(d.activeGenerations) {
		entry := d.activeGenerations[completed]
		if entry.generation > d.lastCompleteGeneration && !entry.fence.IsComplete() {
			break
		}

		if entry.generation > d.lastCompleteGeneration {
			d.lastCompleteGeneration = entry.generation
		}
		completed++
	}

	if completed == 0 {
		return
	}

	remaining := copy(d.activeGenerations, d.activeGenerations[completed:])
	for i := remaining; i < len(d.activeGenerations); i++ {
		d.activeGenerations[i] = generationFence{}
	}
	d.activeGenerations = d.activeGenerations[:remaining]
}

// WaitForCompletion blocks until the given generation is complete. The generation lock is not held
// while blocking, so other threads may query completion, and the submitting thread may stamp new
// generations, during the wait.
//
// Waiting on a generation that has not been submitted logs a warning and waits only for the
// generations that have been. A fence that does not signal within the manager's fence timeout
// is treated as device loss and panics.
func (h Handle) WaitForCompletion(generation uint64) {
	d := h.mustData()

	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	if generation >= d.currentGeneration {
		d.logger.Warn("CommandList::WaitForCompletion called for a generation that has not been submitted",
			slog.Int("ID", d.id),
			slog.Uint64("Generation", generation),
			slog.Uint64("CurrentGeneration", d.currentGeneration),
		)
		generation = d.currentGeneration - 1
	}

	timeout := DefaultFenceTimeout
	if d.manager != nil {
		timeout = d.manager.fenceTimeout
	}

	for generation > 0 && !d.isCompleteLocked(generation) {
		var target generationFence
		for _, entry := range d.activeGenerations {
			if entry.generation >= generation {
				target = entry
				break
			}
		}
		cmdutils.Assertf(target.fence != nil, "no fence is tracked for submitted generation %d", generation)

		d.generationMutex.Unlock()
		signaled, err := target.fence.Wait(timeout)
		d.generationMutex.Lock()

		if err != nil {
			panic(errors.Wrapf(err, "failed waiting for command list generation %d", target.generation))
		}
		if !signaled {
			panic(errors.Wrapf(cmdutils.ErrFenceTimeout, "command list generation %d did not complete within %s", target.generation, timeout))
		}

		// Fences on a queue signal in submission order, so everything up to the target is done
		if target.generation > d.lastCompleteGeneration {
			d.lastCompleteGeneration = target.generation
		}
		d.cleanupActiveGenerationsLocked()
	}
}

func (d *commandListData) Validate() error {
	if d.currentGeneration == 0 {
		return errors.New("command list current generation is zero")
	}

	if d.lastCompleteGeneration >= d.currentGeneration {
		return errors.Newf("command list last complete generation %d is not older than the current generation %d", d.lastCompleteGeneration, d.currentGeneration)
	}

	var previous uint64
	for i, entry := range d.activeGenerations {
		if entry.fence == nil {
			return errors.Newf("active generation %d at index %d has no fence", entry.generation, i)
		}
		if entry.generation <= previous {
			return errors.Newf("active generations are out of order: %d follows %d", entry.generation, previous)
		}
		if entry.generation >= d.currentGeneration {
			return errors.Newf("active generation %d has not been submitted yet", entry.generation)
		}
		previous = entry.generation
	}

	return d.tracker.Validate()
}

// PrintDetailedMap writes the list's generation bookkeeping to writer as a json object
func (h Handle) PrintDetailedMap(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	h.mustData().printParameters(&obj)
}

func (d *commandListData) printParameters(json *jwriter.ObjectState) {
	d.generationMutex.Lock()
	defer d.generationMutex.Unlock()

	json.Name("ListType").String(d.listType.String())
	json.Name("References").Int(int(d.refs.Load()))
	json.Name("Closed").Bool(d.isClosed)
	json.Name("CurrentGeneration").Int(int(d.currentGeneration))
	json.Name("LastCompleteGeneration").Int(int(d.lastCompleteGeneration))

	active := json.Name("ActiveGenerations").Array()
	for _, entry := range d.activeGenerations {
		active.Int(int(entry.generation))
	}
	active.End()

	json.Name("TrackedResources").Int(d.tracker.Count())
	json.Name("PendingBarriers").Int(len(d.pendingBarriers))
	json.Name("QueuedBarriers").Int(d.batcher.Len())
}
