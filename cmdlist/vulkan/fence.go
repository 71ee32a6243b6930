package vulkan

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Fence tracks a single submission. Once it has been observed signaled the result is cached and
// the native fence is no longer queried, which allows the queue to recycle it. A native fence is
// never recycled while a Wait is blocked on it.
type Fence struct {
	device *CommandDevice

	mutex    sync.Mutex
	fence    core1_0.Fence
	signaled bool
	waiters  int
}

var _ driver.Fence = &Fence{}

func (f *Fence) pollLocked() bool {
	if f.signaled {
		return true
	}

	res, err := f.fence.Status()
	if err != nil {
		return false
	}

	f.signaled = res == core1_0.VKSuccess
	return f.signaled
}

func (f *Fence) IsComplete() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.pollLocked()
}

// recycle gives up the native fence if the submission is complete and no Wait is using it
func (f *Fence) recycle() (core1_0.Fence, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.waiters > 0 || !f.pollLocked() {
		return nil, false
	}

	native := f.fence
	f.fence = nil
	return native, true
}

// retire gives up the native fence once the caller knows the submission is complete
func (f *Fence) retire() core1_0.Fence {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	native := f.fence
	f.fence = nil
	f.signaled = true
	return native
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	f.mutex.Lock()
	if f.signaled {
		f.mutex.Unlock()
		return true, nil
	}
	f.waiters++
	native := f.fence
	f.mutex.Unlock()

	res, err := f.device.device.WaitForFences(true, timeout, []core1_0.Fence{native})

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.waiters--
	if res == core1_0.VKTimeout {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to wait for fence")
	}

	f.signaled = true
	return true, nil
}
