package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// CommandPool is a command allocator backed by a VkCommandPool. Command buffers allocated from it
// are recycled across resets rather than freed.
type CommandPool struct {
	device *CommandDevice
	pool   core1_0.CommandPool

	free []core1_0.CommandBuffer
	used []core1_0.CommandBuffer
}

var _ driver.CommandAllocator = &CommandPool{}

func (p *CommandPool) VulkanCommandPool() core1_0.CommandPool {
	return p.pool
}

// BufferCount is the number of command buffers allocated from this pool
func (p *CommandPool) BufferCount() int {
	return len(p.free) + len(p.used)
}

func (p *CommandPool) acquire() (core1_0.CommandBuffer, error) {
	if len(p.free) > 0 {
		buffer := p.free[len(p.free)-1]
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]
		p.used = append(p.used, buffer)
		return buffer, nil
	}

	buffers, _, err := p.device.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate command buffer")
	}

	p.used = append(p.used, buffers[0])
	return buffers[0], nil
}

// Reset returns every command buffer allocated from the pool to the initial state
func (p *CommandPool) Reset() error {
	_, err := p.pool.Reset(0)
	if err != nil {
		return errors.Wrap(err, "failed to reset command pool")
	}

	p.free = append(p.free, p.used...)
	for i := range p.used {
		p.used[i] = nil
	}
	p.used = p.used[:0]

	return nil
}

func (p *CommandPool) Destroy() {
	buffers := make([]core1_0.CommandBuffer, 0, p.BufferCount())
	buffers = append(buffers, p.free...)
	buffers = append(buffers, p.used...)
	if len(buffers) > 0 {
		p.device.device.FreeCommandBuffers(buffers)
	}
	p.free = nil
	p.used = nil

	p.pool.Destroy(p.device.allocationCallbacks)
}
