package cmdlist

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdlist/internal/utils"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
)

// Manager pools command lists and allocators for one queue and executes recorded lists on it.
// Executing is where pending resource barriers are resolved against the committed state of each
// resource and where the final states each list leaves behind become the new committed states.
type Manager struct {
	logger       *slog.Logger
	device       driver.Device
	queue        driver.Queue
	listType     driver.ListType
	createFlags  CreateFlags
	fenceTimeout time.Duration

	poolMutex       utils.OptionalMutex
	readyAllocators []*CommandAllocator
	allocatorCount  int
	readyLists      []Handle
	lists           []Handle
	destroyed       bool

	// executeMutex serializes submissions, which read and write committed resource states
	executeMutex utils.OptionalMutex
	journal      state.Journal
	stats        cmdutils.DetailedStatistics
}

func (m *Manager) ListType() driver.ListType {
	return m.listType
}

func (m *Manager) FenceTimeout() time.Duration {
	return m.fenceTimeout
}

func (m *Manager) createAllocator() (*CommandAllocator, error) {
	allocator, err := NewCommandAllocator(m.logger, m.device, m.listType)
	if err != nil {
		return nil, err
	}

	allocator.manager = m
	m.allocatorCount++
	return allocator, nil
}

// ObtainCommandAllocator returns an allocator that is ready to record into. The oldest pooled
// allocator the GPU is done with is reset and reused, otherwise a new one is created.
func (m *Manager) ObtainCommandAllocator() (*CommandAllocator, error) {
	m.logger.Debug("Manager::ObtainCommandAllocator")

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	return m.obtainAllocatorLocked()
}

func (m *Manager) obtainAllocatorLocked() (*CommandAllocator, error) {
	if m.destroyed {
		return nil, cmdutils.ErrManagerDestroyed
	}

	for i, allocator := range m.readyAllocators {
		if !allocator.IsReady() {
			continue
		}

		copy(m.readyAllocators[i:], m.readyAllocators[i+1:])
		m.readyAllocators[len(m.readyAllocators)-1] = nil
		m.readyAllocators = m.readyAllocators[:len(m.readyAllocators)-1]

		err := allocator.Reset()
		if err != nil {
			m.readyAllocators = append(m.readyAllocators, allocator)
			return nil, err
		}

		return allocator, nil
	}

	return m.createAllocator()
}

// ReleaseCommandAllocator returns an allocator obtained from this manager to the pool. It will be
// handed out again once it is ready.
func (m *Manager) ReleaseCommandAllocator(allocator *CommandAllocator) {
	cmdutils.Assertf(allocator != nil, "attempted to release a nil command allocator")
	cmdutils.Assertf(allocator.manager == m, "attempted to release a command allocator to a manager that did not create it")

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	m.releaseAllocatorLocked(allocator)
}

func (m *Manager) releaseAllocatorLocked(allocator *CommandAllocator) {
	if m.destroyed {
		allocator.Destroy()
		return
	}

	m.readyAllocators = append(m.readyAllocators, allocator)
}

// ObtainCommandList returns an open command list recording into a ready allocator. The returned
// Handle shares the manager's reference: callers who keep it past execution must Retain it.
func (m *Manager) ObtainCommandList() (Handle, error) {
	m.logger.Debug("Manager::ObtainCommandList")

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	return m.obtainListLocked()
}

func (m *Manager) obtainListLocked() (Handle, error) {
	allocator, err := m.obtainAllocatorLocked()
	if err != nil {
		return Handle{}, err
	}

	var list Handle
	if len(m.readyLists) > 0 {
		list = m.readyLists[len(m.readyLists)-1]
		m.readyLists[len(m.readyLists)-1] = Handle{}
		m.readyLists = m.readyLists[:len(m.readyLists)-1]
	} else {
		list, err = NewCommandList(m.logger, m.device, m.listType, allocator, m)
		if err != nil {
			m.releaseAllocatorLocked(allocator)
			return Handle{}, err
		}

		list.data.id = len(m.lists)
		m.lists = append(m.lists, list)
	}

	err = list.Reset(allocator)
	if err != nil {
		m.readyLists = append(m.readyLists, list)
		m.releaseAllocatorLocked(allocator)
		return Handle{}, err
	}

	return list, nil
}

func (m *Manager) releaseListLocked(list Handle) {
	d := list.data
	if d.currentAllocator != nil {
		d.currentAllocator.DecrementPendingCommandLists()
		if d.currentAllocator.manager == m {
			m.releaseAllocatorLocked(d.currentAllocator)
		}
		d.currentAllocator = nil
	}

	if !m.destroyed {
		m.readyLists = append(m.readyLists, list)
	}
}

// ReleaseCommandList discards a recorded list without executing it. Queued and pending barriers
// are dropped and the list and its allocator are returned to the pools. The list is returned to the
// pool even when closing the native list fails, in which case the error is returned.
func (m *Manager) ReleaseCommandList(list Handle) error {
	d := list.mustData()
	m.logger.Debug("Manager::ReleaseCommandList", slog.Int("ID", d.id))
	cmdutils.Assertf(d.manager == m, "attempted to release a command list to a manager that did not create it")
	cmdutils.Assertf(d.currentAllocator != nil, "attempted to release a command list that is not recording")

	err := d.abandonRecording()

	m.executeMutex.Locked(func() {
		m.stats.CommandListsDiscarded++
	})

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	m.releaseListLocked(list)
	return err
}

// ExecuteCommandList closes list and submits it to the queue. The returned SyncPoint identifies the
// submitted generation and must be released by the caller. If waitForCompletion is true, the call
// blocks until the GPU has finished executing the list.
func (m *Manager) ExecuteCommandList(list Handle, waitForCompletion bool) (SyncPoint, error) {
	syncPoints, err := m.ExecuteCommandLists([]Handle{list}, waitForCompletion)
	if err != nil {
		return SyncPoint{}, err
	}

	return syncPoints[0], nil
}

// ExecuteCommandLists closes every list and submits them to the queue in order under a
// single fence. One SyncPoint is returned per list.
//
// If an error is returned nothing was submitted: every list has been discarded as if by
// ReleaseCommandList and the committed state of every resource is what it was before the call.
func (m *Manager) ExecuteCommandLists(lists []Handle, waitForCompletion bool) ([]SyncPoint, error) {
	m.logger.Debug("Manager::ExecuteCommandLists", slog.Int("Count", len(lists)), slog.Bool("Wait", waitForCompletion))

	syncPoints, err := m.execute(lists)
	if err != nil {
		return nil, err
	}

	if waitForCompletion {
		for _, syncPoint := range syncPoints {
			syncPoint.WaitForCompletion()
		}
	}

	return syncPoints, nil
}

func (m *Manager) execute(lists []Handle) ([]SyncPoint, error) {
	m.executeMutex.Lock()
	defer m.executeMutex.Unlock()

	for _, list := range lists {
		d := list.mustData()
		cmdutils.Assertf(d.manager == m, "attempted to execute a command list on a manager that did not create it")
		cmdutils.Assertf(d.currentAllocator != nil, "attempted to execute command list %d, which is not recording", d.id)
	}

	for _, list := range lists {
		err := list.Close()
		if err != nil {
			m.abortSubmission(lists, nil)
			return nil, err
		}
	}

	barrierLists := make([]Handle, 0, len(lists))
	natives := make([]driver.CommandList, 0, len(lists)*2)
	residency := make([]driver.ResidencySet, 0, len(lists)*2)
	resolved := 0

	// Each list's barriers resolve against the committed states left by the lists ahead of it
	for _, list := range lists {
		resolved += len(list.data.pendingBarriers)
		barrierList, err := m.resolvePendingBarriers(list)
		if err != nil {
			m.abortSubmission(lists, barrierLists)
			return nil, err
		}

		if !barrierList.IsNull() {
			barrierLists = append(barrierLists, barrierList)
			natives = append(natives, barrierList.data.native)
			residency = append(residency, barrierList.data.residencySet)
		}

		natives = append(natives, list.data.native)
		residency = append(residency, list.data.residencySet)

		m.commitTrackedStates(list)
	}

	fence, err := m.queue.Submit(natives, residency)
	if err != nil {
		m.abortSubmission(lists, barrierLists)
		return nil, errors.Wrapf(err, "failed to submit %d command lists", len(natives))
	}
	m.journal.Commit()

	syncPoints := make([]SyncPoint, 0, len(lists))
	for _, list := range lists {
		syncPoints = append(syncPoints, NewSyncPoint(list))
	}

	m.poolMutex.Lock()
	for _, list := range barrierLists {
		m.retireSubmittedLocked(list, fence)
	}
	for _, list := range lists {
		m.retireSubmittedLocked(list, fence)
	}
	m.poolMutex.Unlock()

	m.stats.Submissions++
	m.stats.CommandListsExecuted += len(lists)
	m.stats.BarrierListsSubmitted += len(barrierLists)
	m.stats.PendingBarriersResolved += resolved

	return syncPoints, nil
}

func (m *Manager) retireSubmittedLocked(list Handle, fence driver.Fence) {
	list.data.batcher.AddStatistics(&m.stats.Statistics)
	list.data.batcher.ClearStatistics()

	list.SetSyncPoint(fence)
	m.releaseListLocked(list)
}

// abortSubmission restores every committed state changed by the failed submission and discards
// both the lists the caller passed and the barrier lists recorded for them
func (m *Manager) abortSubmission(lists []Handle, barrierLists []Handle) {
	m.journal.Rollback()
	m.stats.CommandListsDiscarded += len(lists)

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	for _, list := range barrierLists {
		m.abandonLocked(list)
	}
	for _, list := range lists {
		m.abandonLocked(list)
	}
}

func (m *Manager) abandonLocked(list Handle) {
	err := list.data.abandonRecording()
	if err != nil {
		m.logger.Error("Manager::ExecuteCommandLists failed to close an abandoned command list", slog.Int("ID", list.data.id), slog.Any("error", err))
	}

	m.releaseListLocked(list)
}

// resolvePendingBarriers records the transitions list needs ahead of its own commands, based on what
// each resource's committed state is now. A null Handle is returned if no transition was needed.
func (m *Manager) resolvePendingBarriers(list Handle) (Handle, error) {
	pending := list.data.pendingBarriers
	if len(pending) == 0 {
		return Handle{}, nil
	}

	m.poolMutex.Lock()
	barrierList, err := m.obtainListLocked()
	m.poolMutex.Unlock()
	if err != nil {
		return Handle{}, err
	}

	for _, pendingBarrier := range pending {
		committed := pendingBarrier.Resource.CommittedState()
		cmdutils.Assertf(committed.Initialized(), "resource with a pending barrier has no committed state")

		if pendingBarrier.Subresource == state.AllSubresources && !committed.AreAllSubresourcesSame() {
			for i := 0; i < committed.SubresourceCount(); i++ {
				m.resolvePendingBarrier(barrierList, pendingBarrier.Resource, committed.SubresourceState(i), pendingBarrier.State, i)
			}
		} else {
			before := committed.SubresourceState(pendingBarrier.Subresource)
			m.resolvePendingBarrier(barrierList, pendingBarrier.Resource, before, pendingBarrier.State, pendingBarrier.Subresource)
		}

		// Later pending barriers on the same resource resolve against where this one left it
		m.journal.Record(pendingBarrier.Resource)
		committed.SetSubresourceState(pendingBarrier.Subresource, pendingBarrier.State)
	}

	if barrierList.data.batcher.Len() == 0 {
		m.poolMutex.Lock()
		m.abandonLocked(barrierList)
		m.poolMutex.Unlock()
		return Handle{}, nil
	}

	err = barrierList.Close()
	if err != nil {
		m.poolMutex.Lock()
		m.abandonLocked(barrierList)
		m.poolMutex.Unlock()
		return Handle{}, err
	}

	return barrierList, nil
}

func (m *Manager) resolvePendingBarrier(barrierList Handle, resource Resource, before, after state.ResourceStates, subresource int) {
	if before == after {
		return
	}

	cmdutils.Assertf(before.IsKnown(), "the committed state of a resource with a pending barrier is %s", before)
	barrierList.AddTransitionBarrier(resource, before, after, subresource)
}

// commitTrackedStates makes the states list leaves its resources in the new committed states, then
// empties its tracker
func (m *Manager) commitTrackedStates(list Handle) {
	d := list.data
	d.tracker.Visit(func(resource state.Resource, tracked *state.SubresourceStates) {
		m.journal.Record(resource)
		committed := resource.CommittedState()

		if tracked.AreAllSubresourcesSame() {
			if tracked.ResourceState() != state.ResourceStateTBD {
				committed.SetResourceState(tracked.ResourceState())
			}
			return
		}

		for i := 0; i < tracked.SubresourceCount(); i++ {
			trackedState := tracked.SubresourceState(i)
			if trackedState != state.ResourceStateTBD {
				committed.SetSubresourceState(i, trackedState)
			}
		}
		committed.CheckAllSubresourceSame()
	})
	d.tracker.Empty()

	for i := range d.pendingBarriers {
		d.pendingBarriers[i] = PendingResourceBarrier{}
	}
	d.pendingBarriers = d.pendingBarriers[:0]
}

// WaitForIdle blocks until every command list this manager has submitted is complete
func (m *Manager) WaitForIdle() {
	m.logger.Debug("Manager::WaitForIdle")

	m.poolMutex.Lock()
	lists := make([]Handle, len(m.lists))
	copy(lists, m.lists)
	m.poolMutex.Unlock()

	for _, list := range lists {
		current := list.CurrentGeneration()
		if current > 1 {
			list.WaitForCompletion(current - 1)
		}
	}
}

// Statistics adds the manager's counters to stats
func (m *Manager) Statistics(stats *cmdutils.DetailedStatistics) {
	m.executeMutex.Lock()
	defer m.executeMutex.Unlock()

	stats.AddDetailedStatistics(&m.stats)
}

// BuildStatsString returns a json string describing the manager's pools. If detailed is true every
// command list and its active generations are included.
func (m *Manager) BuildStatsString(detailed bool) string {
	m.executeMutex.Lock()
	stats := m.stats
	m.executeMutex.Unlock()

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("ListType").String(m.listType.String())
	obj.Name("Flags").String(m.createFlags.String())
	obj.Name("Destroyed").Bool(m.destroyed)

	totals := obj.Name("Total").Object()
	totals.Name("Submissions").Int(stats.Submissions)
	totals.Name("CommandListsExecuted").Int(stats.CommandListsExecuted)
	totals.Name("CommandListsDiscarded").Int(stats.CommandListsDiscarded)
	totals.Name("PendingBarriersResolved").Int(stats.PendingBarriersResolved)
	totals.Name("BarrierListsSubmitted").Int(stats.BarrierListsSubmitted)
	totals.Name("TransitionBarriers").Int(stats.TransitionBarriers)
	totals.Name("UAVBarriers").Int(stats.UAVBarriers)
	totals.Name("AliasingBarriers").Int(stats.AliasingBarriers)
	totals.Name("CancelledTransitions").Int(stats.CancelledTransitions)
	totals.Name("NativeBarrierCalls").Int(stats.NativeBarrierCalls)
	totals.Name("LargestBatch").Int(stats.LargestBatch)
	totals.End()

	allocators := obj.Name("Allocators").Object()
	allocators.Name("Count").Int(m.allocatorCount)
	allocators.Name("Pooled").Int(len(m.readyAllocators))
	if detailed {
		pooled := allocators.Name("Pool").Array()
		for _, allocator := range m.readyAllocators {
			allocatorObj := pooled.Object()
			allocator.printParameters(&allocatorObj)
			allocatorObj.End()
		}
		pooled.End()
	}
	allocators.End()

	lists := obj.Name("CommandLists").Object()
	lists.Name("Count").Int(len(m.lists))
	lists.Name("Pooled").Int(len(m.readyLists))
	if detailed {
		for _, list := range m.lists {
			listObj := lists.Name(strconv.Itoa(list.data.id)).Object()
			list.data.printParameters(&listObj)
			listObj.End()
		}
	}
	lists.End()

	obj.End()
	return string(writer.Bytes())
}

// Destroy waits for the queue to go idle and then destroys every pooled allocator and command list.
// Command lists still referenced elsewhere are destroyed when their last reference is released.
func (m *Manager) Destroy() error {
	m.logger.Debug("Manager::Destroy")

	m.WaitForIdle()

	m.poolMutex.Lock()
	defer m.poolMutex.Unlock()

	if m.destroyed {
		return errors.Wrap(cmdutils.ErrManagerDestroyed, "attempted to destroy a manager twice")
	}

	m.destroyed = true
	m.destroyPools()
	return nil
}

func (m *Manager) destroyPools() {
	for i := range m.readyLists {
		m.readyLists[i] = Handle{}
	}
	m.readyLists = nil

	for i := range m.lists {
		if m.lists[i].data.currentAllocator != nil {
			m.logger.Warn("Manager::Destroy destroying a command list that is still recording", slog.Int("ID", m.lists[i].data.id))
			allocator := m.lists[i].data.currentAllocator
			allocator.DecrementPendingCommandLists()
			if allocator.manager == m {
				allocator.Destroy()
			}
			m.lists[i].data.currentAllocator = nil
		}
		m.lists[i].Release()
	}
	m.lists = nil

	for i, allocator := range m.readyAllocators {
		allocator.Destroy()
		m.readyAllocators[i] = nil
	}
	m.readyAllocators = nil
}
