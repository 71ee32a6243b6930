package cmdlist

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
	"github.com/vkngwrapper/cmdtrack/cmdutils/barrier"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
)

type generationFence struct {
	generation uint64
	fence      driver.Fence
}

// commandListData is the reference-counted state shared by every copy of a Handle
type commandListData struct {
	logger   *slog.Logger
	device   driver.Device
	manager  *Manager
	listType driver.ListType
	id       int

	native       driver.CommandList
	residencySet driver.ResidencySet
	refs         atomic.Int32

	// generationMutex guards the generation counters and the active generation queue, which are
	// read from any thread
	generationMutex        sync.Mutex
	currentGeneration      uint64
	lastCompleteGeneration uint64
	activeGenerations      []generationFence

	// Everything below is only touched by the single thread recording into the list
	isClosed         bool
	currentAllocator *CommandAllocator
	pendingBarriers  []PendingResourceBarrier
	tracker          state.Tracker
	batcher          barrier.Batcher
}

// Handle is a cheap-to-copy reference to a command list. Copies share the same underlying list;
// Retain and Release manage how long it lives. The zero Handle refers to no list, and using it is
// a contract violation.
//
// Recording operations (barriers, Close, Reset) must only be issued from one thread at a time.
// Completion queries and waits may be issued from any thread.
type Handle struct {
	data *commandListData
}

// NewCommandList creates a native command list recording into allocator. The list is returned
// closed, and must be Reset before recording. manager may be nil for lists that are executed
// outside of a Manager.
func NewCommandList(logger *slog.Logger, device driver.Device, listType driver.ListType, allocator *CommandAllocator, manager *Manager) (Handle, error) {
	cmdutils.Assertf(allocator != nil, "a command list must be created against a command allocator")

	native, err := device.CreateCommandList(listType, allocator.Native())
	if err != nil {
		return Handle{}, errors.Wrapf(err, "failed to create a native command list for %s", listType)
	}

	residencySet, err := device.CreateResidencySet()
	if err != nil {
		native.Destroy()
		return Handle{}, errors.Wrap(err, "failed to create a residency set for a command list")
	}

	data := &commandListData{
		logger:            logger,
		device:            device,
		manager:           manager,
		listType:          listType,
		native:            native,
		residencySet:      residencySet,
		currentGeneration: 1,
		pendingBarriers:   make([]PendingResourceBarrier, 0, 64),
	}
	data.refs.Store(1)
	data.tracker.Init()

	handle := Handle{data: data}

	// Lists start closed and are opened as they're handed out
	err = handle.Close()
	if err != nil {
		handle.Release()
		return Handle{}, err
	}

	return handle, nil
}

func (h Handle) mustData() *commandListData {
	cmdutils.Assertf(h.data != nil, "attempted to use a null command list handle")
	return h.data
}

// IsNull returns true for a Handle that does not refer to a command list
func (h Handle) IsNull() bool {
	return h.data == nil
}

// Retain adds a reference to the underlying command list and returns a Handle that carries it.
// Every Retain must be paired with a Release.
func (h Handle) Retain() Handle {
	h.mustData().refs.Add(1)
	return h
}

// Release drops this Handle's reference and nulls it. When the last reference is released the
// native command list and residency set are destroyed.
func (h *Handle) Release() {
	data := h.mustData()
	h.data = nil

	refs := data.refs.Add(-1)
	cmdutils.Assertf(refs >= 0, "command list reference count dropped to %d", refs)
	if refs > 0 {
		return
	}

	data.logger.Debug("CommandList::Destroy", slog.Int("ID", data.id))
	data.tracker.Empty()
	data.batcher.Reset()
	data.native.Destroy()
	data.device.DestroyResidencySet(data.residencySet)
}

// References is the number of live references to the underlying command list
func (h Handle) References() int {
	return int(h.mustData().refs.Load())
}

// Close flushes every batched barrier and closes the native list. Closing a closed list is a no-op.
// A list must be closed before it is executed.
func (h Handle) Close() error {
	d := h.mustData()
	if d.isClosed {
		return nil
	}

	d.batcher.Flush(d.native)

	err := d.native.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close native command list")
	}

	err = d.residencySet.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close command list residency set")
	}

	d.isClosed = true
	return nil
}

func (h Handle) IsClosed() bool {
	return h.mustData().isClosed
}

// Reset reopens a closed list for recording into allocator, counting as a new pending command list
// on the allocator. Tracked resource states and pending barriers from the previous use are dropped.
func (h Handle) Reset(allocator *CommandAllocator) error {
	d := h.mustData()
	d.logger.Debug("CommandList::Reset", slog.Int("ID", d.id))

	cmdutils.Assertf(allocator != nil, "a command list must be reset against a command allocator")
	cmdutils.Assertf(d.isClosed, "attempted to reset a command list that is still open")
	cmdutils.Assertf(d.batcher.Len() == 0, "command list still holds %d unflushed barriers from its previous use: a submission was skipped", d.batcher.Len())

	err := d.native.Reset(allocator.Native())
	if err != nil {
		return errors.Wrap(err, "failed to reset native command list")
	}

	// The list stays closed and uncounted by the allocator until nothing else can fail
	err = d.residencySet.Open()
	if err != nil {
		return errors.Wrap(err, "failed to open command list residency set")
	}

	allocator.IncrementPendingCommandLists()
	d.currentAllocator = allocator

	d.generationMutex.Lock()
	d.cleanupActiveGenerationsLocked()
	d.generationMutex.Unlock()

	d.clearRecordingState()

	d.isClosed = false
	return nil
}

// abandonRecording drops everything recorded since the last Reset and leaves the list closed, even
// if the native list fails to close. The native list is reset before it is recorded into again.
func (d *commandListData) abandonRecording() error {
	d.batcher.Reset()
	d.clearRecordingState()

	if d.isClosed {
		return nil
	}
	d.isClosed = true

	err := d.native.Close()
	residencyErr := d.residencySet.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close native command list")
	}
	if residencyErr != nil {
		return errors.Wrap(residencyErr, "failed to close command list residency set")
	}
	return nil
}

func (d *commandListData) clearRecordingState() {
	for i := range d.pendingBarriers {
		d.pendingBarriers[i] = PendingResourceBarrier{}
	}
	d.pendingBarriers = d.pendingBarriers[:0]
	d.tracker.Empty()
}

// NativeCommandList is the native list that draw, dispatch and copy commands are recorded into
func (h Handle) NativeCommandList() driver.CommandList {
	return h.mustData().native
}

func (h Handle) ListType() driver.ListType {
	return h.mustData().listType
}

// CurrentCommandAllocator is the allocator the list is recording into, or nil once the list has
// been executed or discarded
func (h Handle) CurrentCommandAllocator() *CommandAllocator {
	return h.mustData().currentAllocator
}

// UpdateResidency inserts object into the residency set of the list's current recording
func (h Handle) UpdateResidency(object any) {
	h.mustData().residencySet.Insert(object)
}

func (h Handle) ResidencySet() driver.ResidencySet {
	return h.mustData().residencySet
}

// Statistics adds the list's barrier counters to stats
func (h Handle) Statistics(stats *cmdutils.Statistics) {
	h.mustData().batcher.AddStatistics(stats)
}
