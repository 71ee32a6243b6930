package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdutils/barrier"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
)

// CommandList records into a primary command buffer acquired from a CommandPool. Each Reset
// acquires a buffer from the new pool, so a buffer still executing on the GPU is never re-recorded.
type CommandList struct {
	device   *CommandDevice
	listType driver.ListType
	pool     *CommandPool
	buffer   core1_0.CommandBuffer

	// recordErr is the first error raised while recording, reported by Close
	recordErr error

	memoryBarriers []core1_0.MemoryBarrier
	imageBarriers  []core1_0.ImageMemoryBarrier
}

var _ driver.CommandList = &CommandList{}

// CommandBuffer is the buffer currently being recorded, for recording draw, dispatch and copy commands
func (l *CommandList) CommandBuffer() core1_0.CommandBuffer {
	return l.buffer
}

func (l *CommandList) Reset(allocator driver.CommandAllocator) error {
	pool, ok := allocator.(*CommandPool)
	if !ok {
		return errors.Newf("vulkan command lists must record into a *vulkan.CommandPool, but %T was provided", allocator)
	}

	buffer, err := pool.acquire()
	if err != nil {
		return err
	}

	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to begin command buffer")
	}

	if l.device.extensions.DebugUtils != nil {
		err = l.device.extensions.DebugUtils.CmdBeginDebugUtilsLabel(buffer, ext_debug_utils.DebugUtilsLabel{
			LabelName: l.listType.String(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to begin command buffer label")
		}
	}

	l.pool = pool
	l.buffer = buffer
	l.recordErr = nil
	return nil
}

func (l *CommandList) Close() error {
	if l.buffer == nil {
		return errors.New("attempted to close a command list with no command buffer")
	}

	if l.device.extensions.DebugUtils != nil {
		l.device.extensions.DebugUtils.CmdEndDebugUtilsLabel(l.buffer)
	}

	_, err := l.buffer.End()
	if err != nil {
		return errors.Wrap(err, "failed to end command buffer")
	}

	if l.recordErr != nil {
		err = l.recordErr
		l.recordErr = nil
		return err
	}

	return nil
}

// ResourceBarrier issues every barrier with a single vkCmdPipelineBarrier
func (l *CommandList) ResourceBarrier(barriers []barrier.Barrier) {
	l.memoryBarriers = l.memoryBarriers[:0]
	l.imageBarriers = l.imageBarriers[:0]

	for _, b := range barriers {
		switch b.Type {
		case barrier.TypeTransition:
			l.addTransition(b)
		case barrier.TypeUAV:
			l.memoryBarriers = append(l.memoryBarriers, core1_0.MemoryBarrier{
				SrcAccessMask: core1_0.AccessShaderWrite,
				DstAccessMask: core1_0.AccessShaderRead | core1_0.AccessShaderWrite,
			})
		case barrier.TypeAliasing:
			l.memoryBarriers = append(l.memoryBarriers, core1_0.MemoryBarrier{
				SrcAccessMask: core1_0.AccessMemoryWrite,
				DstAccessMask: core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite,
			})
		}
	}

	if len(l.memoryBarriers) == 0 && len(l.imageBarriers) == 0 {
		return
	}

	err := l.buffer.CmdPipelineBarrier(
		core1_0.PipelineStageAllCommands,
		core1_0.PipelineStageAllCommands,
		0,
		l.memoryBarriers,
		nil,
		l.imageBarriers,
	)
	if err != nil && l.recordErr == nil {
		l.device.logger.Error("CommandList::ResourceBarrier failed", slog.Any("error", err))
		l.recordErr = errors.Wrap(err, "failed to record pipeline barrier")
	}
}

func (l *CommandList) addTransition(b barrier.Barrier) {
	image, isImage := b.Resource.(Image)
	if !isImage {
		// Buffers have no layout, so a global memory barrier covers them
		l.memoryBarriers = append(l.memoryBarriers, core1_0.MemoryBarrier{
			SrcAccessMask: AccessFlags(b.StateBefore),
			DstAccessMask: AccessFlags(b.StateAfter),
		})
		return
	}

	l.imageBarriers = append(l.imageBarriers, core1_0.ImageMemoryBarrier{
		SrcAccessMask:       AccessFlags(b.StateBefore),
		DstAccessMask:       AccessFlags(b.StateAfter),
		OldLayout:           ImageLayout(b.StateBefore),
		NewLayout:           ImageLayout(b.StateAfter),
		SrcQueueFamilyIndex: l.device.queueFamilyIndex,
		DstQueueFamilyIndex: l.device.queueFamilyIndex,
		Image:               image.VulkanImage(),
		SubresourceRange:    SubresourceRange(image, b.Subresource),
	})
}

// Destroy releases the list's hold on its command buffer. The buffer itself belongs to the pool.
func (l *CommandList) Destroy() {
	l.buffer = nil
	l.pool = nil
	l.memoryBarriers = nil
	l.imageBarriers = nil
}
