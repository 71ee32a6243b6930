package vulkan

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_timeline_semaphore"
)

// TimelineQueue submits command lists to a VkQueue and signals one timeline semaphore with an
// increasing value per submission. No native fences are created.
type TimelineQueue struct {
	device   *CommandDevice
	vkDevice core1_0.Device
	timeline khr_timeline_semaphore.Extension
	queue    core1_0.Queue

	semaphore core1_0.Semaphore

	mutex          sync.Mutex
	submittedValue uint64
}

var _ driver.Queue = &TimelineQueue{}

// NewTimelineQueue requires khr_timeline_semaphore in the device's ExtensionData. vkDevice
// must be the device that command lists are recorded on.
func NewTimelineQueue(device *CommandDevice, vkDevice core1_0.Device, queue core1_0.Queue) (*TimelineQueue, error) {
	timeline := device.extensions.TimelineSemaphore
	if timeline == nil {
		return nil, errors.Newf("extension %s is not active", khr_timeline_semaphore.ExtensionName)
	}

	semaphore, _, err := vkDevice.CreateSemaphore(device.allocationCallbacks, core1_0.SemaphoreCreateInfo{
		NextOptions: common.NextOptions{
			Next: khr_timeline_semaphore.SemaphoreTypeCreateInfo{
				SemaphoreType: khr_timeline_semaphore.SemaphoreTypeTimeline,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create timeline semaphore")
	}

	return &TimelineQueue{
		device:    device,
		vkDevice:  vkDevice,
		timeline:  timeline,
		queue:     queue,
		semaphore: semaphore,
	}, nil
}

// SubmittedValue is the timeline value signaled by the most recent submission
func (q *TimelineQueue) SubmittedValue() uint64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.submittedValue
}

func (q *TimelineQueue) Submit(lists []driver.CommandList, residency []driver.ResidencySet) (driver.Fence, error) {
	buffers, err := commandBuffers(lists)
	if err != nil {
		return nil, err
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	value := q.submittedValue + 1
	_, err = q.queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers:   buffers,
			SignalSemaphores: []core1_0.Semaphore{q.semaphore},
			NextOptions: common.NextOptions{
				Next: khr_timeline_semaphore.TimelineSemaphoreSubmitInfo{
					SignalSemaphoreValues: []uint64{value},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to submit %d command buffers", len(buffers))
	}

	q.submittedValue = value
	return &TimelineFence{
		queue: q,
		value: value,
	}, nil
}

func (q *TimelineQueue) wait(value uint64, timeout time.Duration) (common.VkResult, error) {
	return q.timeline.WaitSemaphores(q.vkDevice, timeout, khr_timeline_semaphore.SemaphoreWaitInfo{
		Semaphores: []core1_0.Semaphore{q.semaphore},
		Values:     []uint64{value},
	})
}

// Destroy waits for every submission and destroys the timeline semaphore
func (q *TimelineQueue) Destroy() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.submittedValue > 0 {
		_, err := q.wait(q.submittedValue, common.NoTimeout)
		if err != nil {
			q.device.logger.Error("TimelineQueue::Destroy failed to wait for in-flight submissions", slog.Any("error", err))
			return errors.Wrap(err, "failed to wait for in-flight submissions")
		}
	}

	q.semaphore.Destroy(q.device.allocationCallbacks)
	return nil
}

// TimelineFence is complete once the queue's timeline reaches its value
type TimelineFence struct {
	queue *TimelineQueue
	value uint64

	mutex    sync.RWMutex
	signaled bool
}

var _ driver.Fence = &TimelineFence{}

func (f *TimelineFence) Value() uint64 {
	return f.value
}

func (f *TimelineFence) isSignaled() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return f.signaled
}

func (f *TimelineFence) markSignaled() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.signaled = true
}

func (f *TimelineFence) IsComplete() bool {
	if f.isSignaled() {
		return true
	}

	current, _, err := f.queue.timeline.SemaphoreCounterValue(f.queue.semaphore)
	if err != nil || current < f.value {
		return false
	}

	f.markSignaled()
	return true
}

func (f *TimelineFence) Wait(timeout time.Duration) (bool, error) {
	if f.isSignaled() {
		return true, nil
	}

	res, err := f.queue.wait(f.value, timeout)
	if res == core1_0.VKTimeout {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to wait for timeline value %d", f.value)
	}

	f.markSignaled()
	return true, nil
}
