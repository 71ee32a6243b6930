package cmdlist

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
)

// CommandAllocator owns a native command allocator and gates its reuse. An allocator may only be
// reset once no command list is recording into it and the GPU has passed the last fence of
// work recorded from it.
type CommandAllocator struct {
	logger   *slog.Logger
	native   driver.CommandAllocator
	listType driver.ListType
	manager  *Manager

	pendingCommandLists atomic.Int32

	syncPointMutex sync.Mutex
	syncPoint      driver.Fence
}

// NewCommandAllocator creates a native allocator for lists of the given type
func NewCommandAllocator(logger *slog.Logger, device driver.Device, listType driver.ListType) (*CommandAllocator, error) {
	native, err := device.CreateCommandAllocator(listType)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a native command allocator for %s", listType)
	}

	return &CommandAllocator{
		logger:   logger,
		native:   native,
		listType: listType,
	}, nil
}

func (a *CommandAllocator) Native() driver.CommandAllocator {
	return a.native
}

func (a *CommandAllocator) ListType() driver.ListType {
	return a.listType
}

// IncrementPendingCommandLists must be called once when a command list begins recording with
// this allocator
func (a *CommandAllocator) IncrementPendingCommandLists() {
	a.pendingCommandLists.Add(1)
}

// DecrementPendingCommandLists must be called once when a command list that was recording with
// this allocator is executed or discarded
func (a *CommandAllocator) DecrementPendingCommandLists() {
	remaining := a.pendingCommandLists.Add(-1)
	cmdutils.Assertf(remaining >= 0, "command allocator pending command list count dropped to %d: a command list was executed or discarded twice", remaining)
}

func (a *CommandAllocator) PendingCommandLists() int {
	return int(a.pendingCommandLists.Load())
}

// SetSyncPoint records the fence that must complete before this allocator can be reset
func (a *CommandAllocator) SetSyncPoint(fence driver.Fence) {
	cmdutils.Assertf(fence != nil, "command allocator was given an invalid sync point")

	a.syncPointMutex.Lock()
	defer a.syncPointMutex.Unlock()

	a.syncPoint = fence
}

// HasValidSyncPoint returns true if work recorded from this allocator has been submitted
func (a *CommandAllocator) HasValidSyncPoint() bool {
	a.syncPointMutex.Lock()
	defer a.syncPointMutex.Unlock()

	return a.syncPoint != nil
}

// IsReady returns true if no command list is recording into this allocator and the last
// submitted work recorded from it is complete
func (a *CommandAllocator) IsReady() bool {
	if a.pendingCommandLists.Load() != 0 {
		return false
	}

	a.syncPointMutex.Lock()
	defer a.syncPointMutex.Unlock()

	return a.syncPoint == nil || a.syncPoint.IsComplete()
}

// Reset reclaims the native allocator's memory. Resetting an allocator that is not ready is a
// contract violation.
func (a *CommandAllocator) Reset() error {
	a.logger.Debug("CommandAllocator::Reset")
	cmdutils.Assertf(a.IsReady(), "attempted to reset a command allocator that still has %d recording command lists or work in flight", a.PendingCommandLists())

	err := a.native.Reset()
	if err != nil {
		return errors.Wrap(err, "failed to reset native command allocator")
	}

	a.syncPointMutex.Lock()
	defer a.syncPointMutex.Unlock()
	a.syncPoint = nil

	return nil
}

func (a *CommandAllocator) Destroy() {
	a.logger.Debug("CommandAllocator::Destroy")
	a.native.Destroy()
}

func (a *CommandAllocator) printParameters(json *jwriter.ObjectState) {
	json.Name("PendingCommandLists").Int(a.PendingCommandLists())
	json.Name("HasSyncPoint").Bool(a.HasValidSyncPoint())
	json.Name("Ready").Bool(a.IsReady())
}
