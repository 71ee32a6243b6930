package vulkan

import (
	"sync"
	"time"

	"github.com/vkngwrapper/cmdtrack/cmdlist"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	vkdriver "github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_timeline_semaphore"
)

type pipelineBarrierCall struct {
	memoryBarriers []core1_0.MemoryBarrier
	imageBarriers  []core1_0.ImageMemoryBarrier
}

type fakeCommandBuffer struct {
	core1_0.CommandBuffer

	begins     int
	ends       int
	barriers   []pipelineBarrierCall
	barrierErr error
}

func (b *fakeCommandBuffer) Begin(o core1_0.CommandBufferBeginInfo) (common.VkResult, error) {
	b.begins++
	return core1_0.VKSuccess, nil
}

func (b *fakeCommandBuffer) End() (common.VkResult, error) {
	b.ends++
	return core1_0.VKSuccess, nil
}

func (b *fakeCommandBuffer) CmdPipelineBarrier(srcStageMask, dstStageMask core1_0.PipelineStageFlags, dependencies core1_0.DependencyFlags, memoryBarriers []core1_0.MemoryBarrier, bufferMemoryBarriers []core1_0.BufferMemoryBarrier, imageMemoryBarriers []core1_0.ImageMemoryBarrier) error {
	if b.barrierErr != nil {
		return b.barrierErr
	}

	call := pipelineBarrierCall{
		memoryBarriers: append([]core1_0.MemoryBarrier(nil), memoryBarriers...),
		imageBarriers:  append([]core1_0.ImageMemoryBarrier(nil), imageMemoryBarriers...),
	}
	b.barriers = append(b.barriers, call)
	return nil
}

type fakeCommandPool struct {
	core1_0.CommandPool

	resets    int
	destroyed bool
}

func (p *fakeCommandPool) Reset(flags core1_0.CommandPoolResetFlags) (common.VkResult, error) {
	p.resets++
	return core1_0.VKSuccess, nil
}

func (p *fakeCommandPool) Destroy(callbacks *vkdriver.AllocationCallbacks) {
	p.destroyed = true
}

type fakeFence struct {
	core1_0.Fence

	signaled    bool
	statusCalls int
	destroyed   bool
}

func (f *fakeFence) Status() (common.VkResult, error) {
	f.statusCalls++
	if f.signaled {
		return core1_0.VKSuccess, nil
	}
	return core1_0.VKNotReady, nil
}

func (f *fakeFence) Destroy(callbacks *vkdriver.AllocationCallbacks) {
	f.destroyed = true
}

type fakeQueue struct {
	core1_0.Queue

	submits [][]core1_0.SubmitInfo
	fences  []core1_0.Fence
}

func (q *fakeQueue) Submit(fence core1_0.Fence, o []core1_0.SubmitInfo) (common.VkResult, error) {
	q.submits = append(q.submits, o)
	q.fences = append(q.fences, fence)
	return core1_0.VKSuccess, nil
}

type fakeSemaphore struct {
	core1_0.Semaphore

	destroyed bool
}

func (s *fakeSemaphore) Destroy(callbacks *vkdriver.AllocationCallbacks) {
	s.destroyed = true
}

type fakeDevice struct {
	core1_0.Device

	pools        []*fakeCommandPool
	buffers      []*fakeCommandBuffer
	fences       []*fakeFence
	semaphores   []*fakeSemaphore
	freedBuffers int
	fenceResets  int

	// waitHook runs at the start of every WaitForFences call
	waitHook func()
}

var _ Device = &fakeDevice{}

func (d *fakeDevice) CreateCommandPool(allocationCallbacks *vkdriver.AllocationCallbacks, o core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, common.VkResult, error) {
	pool := &fakeCommandPool{}
	d.pools = append(d.pools, pool)
	return pool, core1_0.VKSuccess, nil
}

func (d *fakeDevice) AllocateCommandBuffers(o core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, common.VkResult, error) {
	buffers := make([]core1_0.CommandBuffer, 0, o.CommandBufferCount)
	for i := 0; i < o.CommandBufferCount; i++ {
		buffer := &fakeCommandBuffer{}
		d.buffers = append(d.buffers, buffer)
		buffers = append(buffers, buffer)
	}
	return buffers, core1_0.VKSuccess, nil
}

func (d *fakeDevice) FreeCommandBuffers(buffers []core1_0.CommandBuffer) {
	d.freedBuffers += len(buffers)
}

func (d *fakeDevice) CreateFence(allocationCallbacks *vkdriver.AllocationCallbacks, o core1_0.FenceCreateInfo) (core1_0.Fence, common.VkResult, error) {
	fence := &fakeFence{}
	d.fences = append(d.fences, fence)
	return fence, core1_0.VKSuccess, nil
}

func (d *fakeDevice) CreateSemaphore(allocationCallbacks *vkdriver.AllocationCallbacks, o core1_0.SemaphoreCreateInfo) (core1_0.Semaphore, common.VkResult, error) {
	semaphore := &fakeSemaphore{}
	d.semaphores = append(d.semaphores, semaphore)
	return semaphore, core1_0.VKSuccess, nil
}

func (d *fakeDevice) WaitForFences(waitForAll bool, timeout time.Duration, fences []core1_0.Fence) (common.VkResult, error) {
	if d.waitHook != nil {
		d.waitHook()
	}

	for _, fence := range fences {
		if !fence.(*fakeFence).signaled {
			return core1_0.VKTimeout, nil
		}
	}
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) ResetFences(fences []core1_0.Fence) (common.VkResult, error) {
	for _, fence := range fences {
		fence.(*fakeFence).signaled = false
		d.fenceResets++
	}
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) SignalAll() {
	for _, fence := range d.fences {
		fence.signaled = true
	}
}

type fakeTimeline struct {
	khr_timeline_semaphore.Extension

	mutex   sync.Mutex
	counter uint64
	waits   []time.Duration
}

func (t *fakeTimeline) SetCounter(value uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.counter = value
}

func (t *fakeTimeline) SemaphoreCounterValue(semaphore core1_0.Semaphore) (uint64, common.VkResult, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.counter, core1_0.VKSuccess, nil
}

func (t *fakeTimeline) WaitSemaphores(device core1_0.Device, timeout time.Duration, o khr_timeline_semaphore.SemaphoreWaitInfo) (common.VkResult, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.waits = append(t.waits, timeout)
	if t.counter < o.Values[0] {
		return core1_0.VKTimeout, nil
	}
	return core1_0.VKSuccess, nil
}

type fakeDebugUtils struct {
	ext_debug_utils.Extension

	labels []string
	ends   int
}

func (u *fakeDebugUtils) CmdBeginDebugUtilsLabel(commandBuffer core1_0.CommandBuffer, label ext_debug_utils.DebugUtilsLabel) error {
	u.labels = append(u.labels, label.LabelName)
	return nil
}

func (u *fakeDebugUtils) CmdEndDebugUtilsLabel(commandBuffer core1_0.CommandBuffer) {
	u.ends++
}

type fakeImage struct {
	state.TrackedResource

	mips   int
	layers int
}

var _ Image = &fakeImage{}

func newFakeImage(mips, layers int, initialState state.ResourceStates) *fakeImage {
	image := &fakeImage{mips: mips, layers: layers}
	image.InitTracking(mips*layers, initialState, true)
	return image
}

func (i *fakeImage) VulkanImage() core1_0.Image {
	return nil
}

func (i *fakeImage) MipLevelCount() int {
	return i.mips
}

func (i *fakeImage) ArrayLayerCount() int {
	return i.layers
}

func (i *fakeImage) AspectMask() core1_0.ImageAspectFlags {
	return core1_0.ImageAspectColor
}

func (i *fakeImage) UpdateResidency(commandList cmdlist.Handle) {
	commandList.UpdateResidency(i)
}

type fakeBuffer struct {
	state.TrackedResource
}

func newFakeBuffer(initialState state.ResourceStates) *fakeBuffer {
	buffer := &fakeBuffer{}
	buffer.InitTracking(1, initialState, true)
	return buffer
}

func (b *fakeBuffer) UpdateResidency(commandList cmdlist.Handle) {
	commandList.UpdateResidency(b)
}
