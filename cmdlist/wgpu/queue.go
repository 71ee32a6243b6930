package wgpu

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
)

// SubmitQueue is the part of hal.Queue used to submit command lists
type SubmitQueue interface {
	Submit(commandBuffers []hal.CommandBuffer, fence hal.Fence, fenceValue uint64) error
}

// Queue submits command lists to a hal queue, signaling one timeline fence with an increasing
// value per submission
type Queue struct {
	device *CommandDevice
	queue  SubmitQueue
	fence  hal.Fence

	mutex          sync.Mutex
	submittedValue uint64
}

var _ driver.Queue = &Queue{}

func NewQueue(device *CommandDevice, queue SubmitQueue) (*Queue, error) {
	fence, err := device.device.CreateFence()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create queue fence")
	}

	return &Queue{
		device: device,
		queue:  queue,
		fence:  fence,
	}, nil
}

// SubmittedValue is the fence value signaled by the most recent submission
func (q *Queue) SubmittedValue() uint64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.submittedValue
}

func (q *Queue) Submit(lists []driver.CommandList, residency []driver.ResidencySet) (driver.Fence, error) {
	commandBuffers := make([]hal.CommandBuffer, 0, len(lists))
	for _, list := range lists {
		wgpuList, ok := list.(*CommandList)
		if !ok {
			return nil, errors.Newf("wgpu queues can only submit *wgpu.CommandList, but %T was provided", list)
		}
		if wgpuList.CommandBuffer() == nil {
			return nil, errors.New("attempted to submit a command list that has not been closed")
		}
		commandBuffers = append(commandBuffers, wgpuList.CommandBuffer())
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	value := q.submittedValue + 1
	err := q.queue.Submit(commandBuffers, q.fence, value)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to submit %d command buffers", len(commandBuffers))
	}
	q.submittedValue = value

	return &Fence{
		queue: q,
		value: value,
	}, nil
}

// Destroy waits for every submission and destroys the queue fence
func (q *Queue) Destroy(timeout time.Duration) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.submittedValue > 0 {
		signaled, err := q.device.device.Wait(q.fence, q.submittedValue, timeout)
		if err != nil {
			return errors.Wrap(err, "failed to wait for queue to go idle")
		}
		if !signaled {
			q.device.logger.Error("Queue::Destroy timed out waiting for submissions", slog.Uint64("Value", q.submittedValue))
			return errors.Newf("queue did not go idle within %s", timeout)
		}
	}

	q.device.device.DestroyFence(q.fence)
	q.fence = nil
	return nil
}

// Fence is a single value on a queue's timeline fence
type Fence struct {
	queue *Queue
	value uint64

	mutex    sync.RWMutex
	signaled bool
}

var _ driver.Fence = &Fence{}

func (f *Fence) Value() uint64 {
	return f.value
}

func (f *Fence) IsComplete() bool {
	signaled, err := f.Wait(0)
	return err == nil && signaled
}

func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	f.mutex.RLock()
	signaled := f.signaled
	f.mutex.RUnlock()
	if signaled {
		return true, nil
	}

	signaled, err := f.queue.device.device.Wait(f.queue.fence, f.value, timeout)
	if err != nil {
		return false, errors.Wrapf(err, "failed to wait for fence value %d", f.value)
	}

	if signaled {
		f.mutex.Lock()
		f.signaled = true
		f.mutex.Unlock()
	}
	return signaled, nil
}
