package vulkan

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Queue submits command lists to a VkQueue. Native fences are recycled once the submission they
// tracked is complete.
type Queue struct {
	device *CommandDevice
	queue  core1_0.Queue

	mutex      sync.Mutex
	inFlight   []*Fence
	freeFences []core1_0.Fence
}

var _ driver.Queue = &Queue{}

func NewQueue(device *CommandDevice, queue core1_0.Queue) *Queue {
	return &Queue{
		device: device,
		queue:  queue,
	}
}

// InFlightCount is the number of submissions not yet observed complete
func (q *Queue) InFlightCount() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return len(q.inFlight)
}

func (q *Queue) recycleLocked() error {
	var natives []core1_0.Fence
	for _, fence := range q.inFlight {
		native, ok := fence.recycle()
		if !ok {
			break
		}
		natives = append(natives, native)
	}

	complete := len(natives)
	if complete == 0 {
		return nil
	}

	remaining := copy(q.inFlight, q.inFlight[complete:])
	for i := remaining; i < len(q.inFlight); i++ {
		q.inFlight[i] = nil
	}
	q.inFlight = q.inFlight[:remaining]

	_, err := q.device.device.ResetFences(natives)
	if err != nil {
		for _, native := range natives {
			native.Destroy(q.device.allocationCallbacks)
		}
		return errors.Wrap(err, "failed to reset fences")
	}

	q.freeFences = append(q.freeFences, natives...)
	return nil
}

func (q *Queue) acquireFenceLocked() (core1_0.Fence, error) {
	err := q.recycleLocked()
	if err != nil {
		return nil, err
	}

	if len(q.freeFences) > 0 {
		fence := q.freeFences[len(q.freeFences)-1]
		q.freeFences[len(q.freeFences)-1] = nil
		q.freeFences = q.freeFences[:len(q.freeFences)-1]
		return fence, nil
	}

	fence, _, err := q.device.device.CreateFence(q.device.allocationCallbacks, core1_0.FenceCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fence")
	}

	return fence, nil
}

func commandBuffers(lists []driver.CommandList) ([]core1_0.CommandBuffer, error) {
	buffers := make([]core1_0.CommandBuffer, 0, len(lists))
	for _, list := range lists {
		vulkanList, ok := list.(*CommandList)
		if !ok {
			return nil, errors.Newf("vulkan queues can only submit *vulkan.CommandList, but %T was provided", list)
		}
		buffers = append(buffers, vulkanList.CommandBuffer())
	}
	return buffers, nil
}

// Submit executes every list in a single vkQueueSubmit. Residency sets are ignored.
func (q *Queue) Submit(lists []driver.CommandList, residency []driver.ResidencySet) (driver.Fence, error) {
	buffers, err := commandBuffers(lists)
	if err != nil {
		return nil, err
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	nativeFence, err := q.acquireFenceLocked()
	if err != nil {
		return nil, err
	}

	_, err = q.queue.Submit(nativeFence, []core1_0.SubmitInfo{
		{
			CommandBuffers: buffers,
		},
	})
	if err != nil {
		q.freeFences = append(q.freeFences, nativeFence)
		return nil, errors.Wrapf(err, "failed to submit %d command buffers", len(buffers))
	}

	fence := &Fence{
		device: q.device,
		fence:  nativeFence,
	}
	q.inFlight = append(q.inFlight, fence)
	return fence, nil
}

// Destroy waits for every in-flight submission and destroys all native fences
func (q *Queue) Destroy() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.inFlight) > 0 {
		natives := make([]core1_0.Fence, 0, len(q.inFlight))
		for _, fence := range q.inFlight {
			natives = append(natives, fence.fence)
		}

		_, err := q.device.device.WaitForFences(true, common.NoTimeout, natives)
		if err != nil {
			q.device.logger.Error("Queue::Destroy failed to wait for in-flight submissions", slog.Any("error", err))
			return errors.Wrap(err, "failed to wait for in-flight submissions")
		}

		for _, fence := range q.inFlight {
			fence.retire().Destroy(q.device.allocationCallbacks)
		}
		q.inFlight = nil
	}

	for _, fence := range q.freeFences {
		fence.Destroy(q.device.allocationCallbacks)
	}
	q.freeFences = nil

	return nil
}
