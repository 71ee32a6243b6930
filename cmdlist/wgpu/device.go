// Package wgpu implements the command list driver contract over the gogpu wgpu hal. Each recording
// gets its own command encoder and allocators own the finished command buffers. A queue signals
// one timeline fence with a new value per submission.
package wgpu

import (
	"log/slog"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
)

// Device is the part of hal.Device used to record and submit command lists
type Device interface {
	CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error)
	FreeCommandBuffer(commandBuffer hal.CommandBuffer)
	CreateFence() (hal.Fence, error)
	DestroyFence(fence hal.Fence)
	Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error)
}

type CommandDevice struct {
	logger *slog.Logger
	device Device
}

var _ driver.Device = &CommandDevice{}

func NewCommandDevice(logger *slog.Logger, device Device) *CommandDevice {
	return &CommandDevice{
		logger: logger,
		device: device,
	}
}

func (d *CommandDevice) CreateCommandAllocator(listType driver.ListType) (driver.CommandAllocator, error) {
	return &CommandBufferPool{device: d}, nil
}

// CreateCommandList begins encoding into a new encoder
func (d *CommandDevice) CreateCommandList(listType driver.ListType, allocator driver.CommandAllocator) (driver.CommandList, error) {
	d.logger.Debug("CommandDevice::CreateCommandList", slog.String("ListType", listType.String()))

	list := &CommandList{
		device: d,
		label:  listType.String(),
	}

	err := list.Reset(allocator)
	if err != nil {
		return nil, err
	}

	return list, nil
}

// CreateResidencySet returns a set that only records membership: the hal manages residency
func (d *CommandDevice) CreateResidencySet() (driver.ResidencySet, error) {
	return driver.NewTrackingResidencySet(), nil
}

func (d *CommandDevice) DestroyResidencySet(set driver.ResidencySet) {}

// CommandBufferPool is a command allocator that owns every command buffer finished by lists
// recording into it, and frees them when it is reset
type CommandBufferPool struct {
	device   *CommandDevice
	finished []hal.CommandBuffer
}

var _ driver.CommandAllocator = &CommandBufferPool{}

func (p *CommandBufferPool) FinishedCount() int {
	return len(p.finished)
}

func (p *CommandBufferPool) Reset() error {
	p.free()
	return nil
}

func (p *CommandBufferPool) Destroy() {
	p.free()
	p.finished = nil
}

func (p *CommandBufferPool) free() {
	for i, commandBuffer := range p.finished {
		p.device.device.FreeCommandBuffer(commandBuffer)
		p.finished[i] = nil
	}
	p.finished = p.finished[:0]
}
