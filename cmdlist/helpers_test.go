package cmdlist

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver/mocks"
	"github.com/vkngwrapper/cmdtrack/cmdutils"
	"github.com/vkngwrapper/cmdtrack/cmdutils/barrier"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
	"go.uber.org/mock/gomock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fakeFence struct {
	signaled chan struct{}
	once     sync.Once
	waits    atomic.Int32
}

func newFakeFence() *fakeFence {
	return &fakeFence{signaled: make(chan struct{})}
}

func (f *fakeFence) Signal() {
	f.once.Do(func() { close(f.signaled) })
}

func (f *fakeFence) IsComplete() bool {
	select {
	case <-f.signaled:
		return true
	default:
		return false
	}
}

func (f *fakeFence) Wait(timeout time.Duration) (bool, error) {
	f.waits.Add(1)

	select {
	case <-f.signaled:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

type fakeNativeList struct {
	allocator driver.CommandAllocator
	open      bool
	closes    int
	resets    int
	destroyed bool
	batches   [][]barrier.Barrier
}

func (l *fakeNativeList) ResourceBarrier(barriers []barrier.Barrier) {
	batch := make([]barrier.Barrier, len(barriers))
	copy(batch, barriers)
	l.batches = append(l.batches, batch)
}

func (l *fakeNativeList) Close() error {
	l.open = false
	l.closes++
	return nil
}

func (l *fakeNativeList) Reset(allocator driver.CommandAllocator) error {
	l.allocator = allocator
	l.open = true
	l.resets++
	return nil
}

func (l *fakeNativeList) Destroy() {
	l.destroyed = true
}

// testDevice hands out mock allocators and fake native lists, keeping every one it creates
type testDevice struct {
	*mocks.MockDevice

	allocators    []*mocks.MockCommandAllocator
	lists         []*fakeNativeList
	residencySets []*driver.TrackingResidencySet
	destroyedSets int

	// allocatorLimit makes allocator creation fail once this many allocators exist, if it is set
	allocatorLimit int
}

func readyDevice(ctrl *gomock.Controller) *testDevice {
	device := &testDevice{MockDevice: mocks.NewMockDevice(ctrl)}

	device.EXPECT().CreateCommandAllocator(gomock.Any()).DoAndReturn(func(listType driver.ListType) (driver.CommandAllocator, error) {
		if device.allocatorLimit > 0 && len(device.allocators) >= device.allocatorLimit {
			return nil, errors.New("out of device memory")
		}

		allocator := mocks.NewMockCommandAllocator(ctrl)
		allocator.EXPECT().Reset().Return(nil).AnyTimes()
		allocator.EXPECT().Destroy().AnyTimes()
		device.allocators = append(device.allocators, allocator)
		return allocator, nil
	}).AnyTimes()

	device.EXPECT().CreateCommandList(gomock.Any(), gomock.Any()).DoAndReturn(func(listType driver.ListType, allocator driver.CommandAllocator) (driver.CommandList, error) {
		list := &fakeNativeList{allocator: allocator, open: true}
		device.lists = append(device.lists, list)
		return list, nil
	}).AnyTimes()

	device.EXPECT().CreateResidencySet().DoAndReturn(func() (driver.ResidencySet, error) {
		set := driver.NewTrackingResidencySet()
		// Native lists are created open, so their residency set is too
		_ = set.Open()
		device.residencySets = append(device.residencySets, set)
		return set, nil
	}).AnyTimes()

	device.EXPECT().DestroyResidencySet(gomock.Any()).Do(func(set driver.ResidencySet) {
		device.destroyedSets++
	}).AnyTimes()

	return device
}

type fakeQueue struct {
	submissions    [][]driver.CommandList
	fences         []*fakeFence
	signalOnSubmit bool
	err            error
}

func (q *fakeQueue) Submit(lists []driver.CommandList, residency []driver.ResidencySet) (driver.Fence, error) {
	if q.err != nil {
		return nil, q.err
	}

	submitted := make([]driver.CommandList, len(lists))
	copy(submitted, lists)
	q.submissions = append(q.submissions, submitted)

	fence := newFakeFence()
	if q.signalOnSubmit {
		fence.Signal()
	}
	q.fences = append(q.fences, fence)
	return fence, nil
}

func (q *fakeQueue) SignalAll() {
	for _, fence := range q.fences {
		fence.Signal()
	}
}

type fakeResource struct {
	state.TrackedResource
	residencyUpdates int
}

func newFakeResource(subresources int, initialState state.ResourceStates) *fakeResource {
	resource := &fakeResource{}
	resource.InitTracking(subresources, initialState, true)
	return resource
}

func (r *fakeResource) UpdateResidency(commandList Handle) {
	r.residencyUpdates++
	commandList.UpdateResidency(r)
}

func newTestList(t *testing.T, ctrl *gomock.Controller) (*testDevice, *CommandAllocator, Handle) {
	device := readyDevice(ctrl)

	allocator, err := NewCommandAllocator(testLogger(), device, driver.ListTypeDirect)
	if err != nil {
		t.Fatal(err)
	}

	list, err := NewCommandList(testLogger(), device, driver.ListTypeDirect, allocator, nil)
	if err != nil {
		t.Fatal(err)
	}

	return device, allocator, list
}

// requireAssertion fails the test unless fn panics with an assertion failure
func requireAssertion(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatal("expected an assertion failure, but nothing panicked")
		}
		if !cmdutils.IsAssertionFailure(recovered) {
			t.Fatalf("expected an assertion failure, but got %v", recovered)
		}
	}()

	fn()
}
