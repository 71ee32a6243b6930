package vulkan

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/cmdtrack/cmdlist"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdutils/barrier"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_timeline_semaphore"
)

func readyDevice() (*fakeDevice, *CommandDevice) {
	fake := &fakeDevice{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return fake, NewCommandDevice(logger, fake, 2, nil, nil)
}

func readyExtensionDevice() (*fakeDevice, *CommandDevice, *ExtensionData) {
	fake := &fakeDevice{}
	extensions := &ExtensionData{
		TimelineSemaphore: &fakeTimeline{},
		DebugUtils:        &fakeDebugUtils{},
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return fake, NewCommandDevice(logger, fake, 2, nil, extensions), extensions
}

func TestCommandList_PipelineBarrier(t *testing.T) {
	fake, device := readyDevice()

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)

	require.Len(t, fake.buffers, 1)
	buffer := fake.buffers[0]
	require.Equal(t, 1, buffer.begins)

	image := newFakeImage(2, 3, state.ResourceStateCommon)
	vertices := newFakeBuffer(state.ResourceStateCommon)

	native.ResourceBarrier([]barrier.Barrier{
		{
			Type:        barrier.TypeTransition,
			Resource:    image,
			Subresource: 3,
			StateBefore: state.ResourceStateCopyDest,
			StateAfter:  state.ResourceStatePixelShaderResource,
		},
		{
			Type:        barrier.TypeTransition,
			Resource:    vertices,
			Subresource: state.AllSubresources,
			StateBefore: state.ResourceStateCopyDest,
			StateAfter:  state.ResourceStateVertexAndConstantBuffer,
		},
		{
			Type:        barrier.TypeUAV,
			Subresource: state.AllSubresources,
		},
	})

	require.Len(t, buffer.barriers, 1)
	call := buffer.barriers[0]
	require.Equal(t, []core1_0.ImageMemoryBarrier{{
		SrcAccessMask:       core1_0.AccessTransferWrite,
		DstAccessMask:       core1_0.AccessShaderRead,
		OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
		NewLayout:           core1_0.ImageLayoutShaderReadOnlyOptimal,
		SrcQueueFamilyIndex: 2,
		DstQueueFamilyIndex: 2,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   1,
			LevelCount:     1,
			BaseArrayLayer: 1,
			LayerCount:     1,
		},
	}}, call.imageBarriers)
	require.Equal(t, []core1_0.MemoryBarrier{
		{
			SrcAccessMask: core1_0.AccessTransferWrite,
			DstAccessMask: core1_0.AccessVertexAttributeRead | core1_0.AccessUniformRead,
		},
		{
			SrcAccessMask: core1_0.AccessShaderWrite,
			DstAccessMask: core1_0.AccessShaderRead | core1_0.AccessShaderWrite,
		},
	}, call.memoryBarriers)

	require.NoError(t, native.Close())
	require.Equal(t, 1, buffer.ends)
}

func TestCommandList_BarrierErrorReportedOnClose(t *testing.T) {
	fake, device := readyDevice()

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)

	fake.buffers[0].barrierErr = errors.New("out of host memory")
	native.ResourceBarrier([]barrier.Barrier{{Type: barrier.TypeUAV}})

	err = native.Close()
	require.ErrorContains(t, err, "out of host memory")

	// The error is reported once
	require.NoError(t, native.Reset(allocator))
	require.NoError(t, native.Close())
}

func TestCommandList_EmptyBarrierBatch(t *testing.T) {
	fake, device := readyDevice()

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)

	native.ResourceBarrier(nil)
	require.Empty(t, fake.buffers[0].barriers)
}

func TestCommandList_WrongAllocator(t *testing.T) {
	_, device := readyDevice()

	_, err := device.CreateCommandList(driver.ListTypeDirect, driver.CommandAllocator(nil))
	require.Error(t, err)
}

func TestCommandPool_RecyclesBuffers(t *testing.T) {
	fake, device := readyDevice()

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	pool := allocator.(*CommandPool)

	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)
	require.NoError(t, native.Close())

	// Without a pool reset the previous buffer may still be executing
	require.NoError(t, native.Reset(allocator))
	require.NoError(t, native.Close())
	require.Equal(t, 2, pool.BufferCount())
	require.Len(t, fake.buffers, 2)

	require.NoError(t, pool.Reset())
	require.Equal(t, 1, fake.pools[0].resets)

	require.NoError(t, native.Reset(allocator))
	require.Len(t, fake.buffers, 2)
	require.Equal(t, 2, pool.BufferCount())

	pool.Destroy()
	require.Equal(t, 2, fake.freedBuffers)
	require.True(t, fake.pools[0].destroyed)
}

func TestFence_CachesSignal(t *testing.T) {
	fake, device := readyDevice()
	queue := NewQueue(device, &fakeQueue{})

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)
	require.NoError(t, native.Close())

	fence, err := queue.Submit([]driver.CommandList{native}, nil)
	require.NoError(t, err)
	require.False(t, fence.IsComplete())

	signaled, err := fence.Wait(0)
	require.NoError(t, err)
	require.False(t, signaled)

	fake.SignalAll()
	require.True(t, fence.IsComplete())
	calls := fake.fences[0].statusCalls

	require.True(t, fence.IsComplete())
	require.Equal(t, calls, fake.fences[0].statusCalls)

	signaled, err = fence.Wait(0)
	require.NoError(t, err)
	require.True(t, signaled)
}

func TestQueue_RecyclesFences(t *testing.T) {
	fake, device := readyDevice()
	nativeQueue := &fakeQueue{}
	queue := NewQueue(device, nativeQueue)

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	first, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)
	second, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)

	fence, err := queue.Submit([]driver.CommandList{first, second}, nil)
	require.NoError(t, err)
	require.Len(t, nativeQueue.submits, 1)
	require.Equal(t, []core1_0.CommandBuffer{fake.buffers[0], fake.buffers[1]}, nativeQueue.submits[0][0].CommandBuffers)
	require.Equal(t, 1, queue.InFlightCount())

	// Still in flight: a second fence is needed
	_, err = queue.Submit([]driver.CommandList{first}, nil)
	require.NoError(t, err)
	require.Len(t, fake.fences, 2)

	fake.SignalAll()
	require.True(t, fence.IsComplete())

	_, err = queue.Submit([]driver.CommandList{second}, nil)
	require.NoError(t, err)
	require.Len(t, fake.fences, 2)
	require.Equal(t, 2, fake.fenceResets)
	require.Equal(t, 1, queue.InFlightCount())

	// A recycled native fence does not make an old submission look incomplete
	require.True(t, fence.IsComplete())

	fake.SignalAll()
	require.NoError(t, queue.Destroy())
	require.True(t, fake.fences[0].destroyed)
	require.True(t, fake.fences[1].destroyed)
}

func TestQueue_RejectsForeignLists(t *testing.T) {
	_, device := readyDevice()
	queue := NewQueue(device, &fakeQueue{})

	_, err := queue.Submit([]driver.CommandList{nil}, nil)
	require.Error(t, err)
}

func TestImageLayout(t *testing.T) {
	require.Equal(t, core1_0.ImageLayoutGeneral, ImageLayout(state.ResourceStateCommon))
	require.Equal(t, core1_0.ImageLayoutGeneral, ImageLayout(state.ResourceStateUnorderedAccess))
	require.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, ImageLayout(state.ResourceStateRenderTarget))
	require.Equal(t, core1_0.ImageLayoutDepthStencilAttachmentOptimal, ImageLayout(state.ResourceStateDepthWrite))
	require.Equal(t, core1_0.ImageLayoutDepthStencilReadOnlyOptimal, ImageLayout(state.ResourceStateDepthRead|state.ResourceStatePixelShaderResource))
	require.Equal(t, core1_0.ImageLayoutShaderReadOnlyOptimal, ImageLayout(state.ResourceStateNonPixelShaderResource|state.ResourceStatePixelShaderResource))
	require.Equal(t, core1_0.ImageLayoutTransferSrcOptimal, ImageLayout(state.ResourceStateResolveSource))
	require.Equal(t, core1_0.ImageLayoutTransferDstOptimal, ImageLayout(state.ResourceStateCopyDest))
	require.Equal(t, core1_0.ImageLayoutGeneral, ImageLayout(state.ResourceStateGenericRead))
	require.Equal(t, core1_0.ImageLayoutUndefined, ImageLayout(state.ResourceStateTBD))
}

func TestAccessFlags(t *testing.T) {
	require.Equal(t, core1_0.AccessMemoryRead|core1_0.AccessMemoryWrite, AccessFlags(state.ResourceStateCommon))
	require.Equal(t, core1_0.AccessFlags(0), AccessFlags(state.ResourceStateTBD))
	require.Equal(t, core1_0.AccessIndexRead|core1_0.AccessIndirectCommandRead, AccessFlags(state.ResourceStateIndexBuffer|state.ResourceStateIndirectArgument))
	require.Equal(t, core1_0.AccessTransferWrite, AccessFlags(state.ResourceStateResolveDest))
}

func TestManagerOverVulkan(t *testing.T) {
	fake, device := readyDevice()
	nativeQueue := &fakeQueue{}
	queue := NewQueue(device, nativeQueue)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	manager, err := cmdlist.New(logger, device, queue, driver.ListTypeDirect, cmdlist.CreateOptions{})
	require.NoError(t, err)

	image := newFakeImage(1, 1, state.ResourceStateCommon)

	list, err := manager.ObtainCommandList()
	require.NoError(t, err)
	require.True(t, list.TransitionResource(image, state.ResourceStateRenderTarget, state.AllSubresources))

	syncPoint, err := manager.ExecuteCommandList(list, false)
	require.NoError(t, err)

	require.Len(t, nativeQueue.submits, 1)
	submitted := nativeQueue.submits[0][0].CommandBuffers
	require.Len(t, submitted, 2)

	barrierBuffer := submitted[0].(*fakeCommandBuffer)
	require.Len(t, barrierBuffer.barriers, 1)
	require.Equal(t, core1_0.ImageLayoutGeneral, barrierBuffer.barriers[0].imageBarriers[0].OldLayout)
	require.Equal(t, core1_0.ImageLayoutColorAttachmentOptimal, barrierBuffer.barriers[0].imageBarriers[0].NewLayout)
	require.Equal(t, state.ResourceStateRenderTarget, image.CommittedState().ResourceState())

	require.False(t, syncPoint.IsComplete())
	fake.SignalAll()
	syncPoint.WaitForCompletion()
	require.True(t, syncPoint.IsComplete())
	syncPoint.Release()

	require.NoError(t, manager.Destroy())
	require.NoError(t, queue.Destroy())
}

func TestQueue_WaitingFenceIsNotRecycled(t *testing.T) {
	fake, device := readyDevice()
	queue := NewQueue(device, &fakeQueue{})

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)
	require.NoError(t, native.Close())

	fence, err := queue.Submit([]driver.CommandList{native}, nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	fake.waitHook = func() {
		close(entered)
		<-release
	}

	type waitResult struct {
		signaled bool
		err      error
	}
	result := make(chan waitResult)
	go func() {
		signaled, err := fence.Wait(time.Second)
		result <- waitResult{signaled: signaled, err: err}
	}()

	<-entered
	fake.waitHook = nil
	fake.SignalAll()

	// The first fence is complete but still being waited on, so it must not be reset
	_, err = queue.Submit([]driver.CommandList{native}, nil)
	require.NoError(t, err)
	require.Len(t, fake.fences, 2)
	require.Equal(t, 0, fake.fenceResets)

	close(release)
	waited := <-result
	require.NoError(t, waited.err)
	require.True(t, waited.signaled)

	_, err = queue.Submit([]driver.CommandList{native}, nil)
	require.NoError(t, err)
	require.Len(t, fake.fences, 2)
	require.Equal(t, 1, fake.fenceResets)
	require.True(t, fence.IsComplete())

	fake.SignalAll()
	require.NoError(t, queue.Destroy())
}

func TestCommandList_DebugLabels(t *testing.T) {
	_, device, extensions := readyExtensionDevice()
	labels := extensions.DebugUtils.(*fakeDebugUtils)

	allocator, err := device.CreateCommandAllocator(driver.ListTypeCompute)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeCompute, allocator)
	require.NoError(t, err)
	require.Equal(t, []string{driver.ListTypeCompute.String()}, labels.labels)
	require.Equal(t, 0, labels.ends)

	require.NoError(t, native.Close())
	require.Equal(t, 1, labels.ends)

	require.NoError(t, native.Reset(allocator))
	require.NoError(t, native.Close())
	require.Len(t, labels.labels, 2)
	require.Equal(t, 2, labels.ends)
}

func TestNewTimelineQueue_RequiresExtension(t *testing.T) {
	fake, device := readyDevice()

	_, err := NewTimelineQueue(device, fake, &fakeQueue{})
	require.ErrorContains(t, err, khr_timeline_semaphore.ExtensionName)
	require.Empty(t, fake.semaphores)
}

func TestTimelineQueue_SignalsIncreasingValues(t *testing.T) {
	fake, device, extensions := readyExtensionDevice()
	timeline := extensions.TimelineSemaphore.(*fakeTimeline)
	nativeQueue := &fakeQueue{}

	queue, err := NewTimelineQueue(device, fake, nativeQueue)
	require.NoError(t, err)
	require.Len(t, fake.semaphores, 1)

	allocator, err := device.CreateCommandAllocator(driver.ListTypeDirect)
	require.NoError(t, err)
	native, err := device.CreateCommandList(driver.ListTypeDirect, allocator)
	require.NoError(t, err)
	require.NoError(t, native.Close())

	first, err := queue.Submit([]driver.CommandList{native}, nil)
	require.NoError(t, err)
	second, err := queue.Submit([]driver.CommandList{native}, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), queue.SubmittedValue())
	require.Equal(t, uint64(1), first.(*TimelineFence).Value())
	require.Equal(t, uint64(2), second.(*TimelineFence).Value())

	require.Len(t, nativeQueue.submits, 2)
	require.Nil(t, nativeQueue.fences[0])
	submit := nativeQueue.submits[1][0]
	require.Equal(t, []core1_0.Semaphore{fake.semaphores[0]}, submit.SignalSemaphores)
	require.Equal(t, khr_timeline_semaphore.TimelineSemaphoreSubmitInfo{
		SignalSemaphoreValues: []uint64{2},
	}, submit.Next)
	require.Empty(t, fake.fences)

	require.False(t, first.IsComplete())
	signaled, err := first.Wait(0)
	require.NoError(t, err)
	require.False(t, signaled)

	timeline.SetCounter(1)
	require.True(t, first.IsComplete())
	require.False(t, second.IsComplete())

	timeline.SetCounter(2)
	signaled, err = second.Wait(time.Second)
	require.NoError(t, err)
	require.True(t, signaled)

	require.NoError(t, queue.Destroy())
	require.True(t, fake.semaphores[0].destroyed)
	require.Equal(t, common.NoTimeout, timeline.waits[len(timeline.waits)-1])
}

func TestManagerOverVulkanTimeline(t *testing.T) {
	fake, device, extensions := readyExtensionDevice()
	timeline := extensions.TimelineSemaphore.(*fakeTimeline)
	nativeQueue := &fakeQueue{}

	queue, err := NewTimelineQueue(device, fake, nativeQueue)
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	manager, err := cmdlist.New(logger, device, queue, driver.ListTypeDirect, cmdlist.CreateOptions{})
	require.NoError(t, err)

	vertices := newFakeBuffer(state.ResourceStateCommon)

	list, err := manager.ObtainCommandList()
	require.NoError(t, err)
	require.True(t, list.TransitionResource(vertices, state.ResourceStateCopyDest, state.AllSubresources))

	syncPoint, err := manager.ExecuteCommandList(list, false)
	require.NoError(t, err)
	require.Len(t, nativeQueue.submits, 1)
	require.Len(t, nativeQueue.submits[0][0].CommandBuffers, 2)
	require.Equal(t, state.ResourceStateCopyDest, vertices.CommittedState().ResourceState())

	require.False(t, syncPoint.IsComplete())
	timeline.SetCounter(queue.SubmittedValue())
	syncPoint.WaitForCompletion()
	require.True(t, syncPoint.IsComplete())
	syncPoint.Release()

	require.NoError(t, manager.Destroy())
	require.NoError(t, queue.Destroy())
}
