// Package vulkan implements the command list driver contract over vkngwrapper core1_0. Command
// pools back allocators and primary command buffers back lists. Queue tracks every submission with
// its own recycled VkFence, while TimelineQueue signals a single khr_timeline_semaphore timeline.
package vulkan

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	vkdriver "github.com/vkngwrapper/core/v2/driver"
)

// Device is the part of core1_0.Device used to record and submit command lists
type Device interface {
	CreateCommandPool(allocationCallbacks *vkdriver.AllocationCallbacks, o core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, common.VkResult, error)
	AllocateCommandBuffers(o core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, common.VkResult, error)
	FreeCommandBuffers(buffers []core1_0.CommandBuffer)
	CreateFence(allocationCallbacks *vkdriver.AllocationCallbacks, o core1_0.FenceCreateInfo) (core1_0.Fence, common.VkResult, error)
	WaitForFences(waitForAll bool, timeout time.Duration, fences []core1_0.Fence) (common.VkResult, error)
	ResetFences(fences []core1_0.Fence) (common.VkResult, error)
}

// CommandDevice creates command pools and command buffers for a single queue family
type CommandDevice struct {
	logger              *slog.Logger
	device              Device
	queueFamilyIndex    int
	allocationCallbacks *vkdriver.AllocationCallbacks
	extensions          *ExtensionData
}

var _ driver.Device = &CommandDevice{}

// NewCommandDevice wraps device for recording work that will be submitted to queues of
// queueFamilyIndex. allocationCallbacks and extensions may be nil.
func NewCommandDevice(logger *slog.Logger, device Device, queueFamilyIndex int, allocationCallbacks *vkdriver.AllocationCallbacks, extensions *ExtensionData) *CommandDevice {
	if extensions == nil {
		extensions = &ExtensionData{}
	}

	return &CommandDevice{
		logger:              logger,
		device:              device,
		queueFamilyIndex:    queueFamilyIndex,
		allocationCallbacks: allocationCallbacks,
		extensions:          extensions,
	}
}

func (d *CommandDevice) QueueFamilyIndex() int {
	return d.queueFamilyIndex
}

func (d *CommandDevice) CreateCommandAllocator(listType driver.ListType) (driver.CommandAllocator, error) {
	d.logger.Debug("CommandDevice::CreateCommandAllocator", slog.String("ListType", listType.String()))

	pool, _, err := d.device.CreateCommandPool(d.allocationCallbacks, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: d.queueFamilyIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create command pool for queue family %d", d.queueFamilyIndex)
	}

	return &CommandPool{
		device: d,
		pool:   pool,
	}, nil
}

// CreateCommandList acquires a primary command buffer from allocator and begins recording into it
func (d *CommandDevice) CreateCommandList(listType driver.ListType, allocator driver.CommandAllocator) (driver.CommandList, error) {
	d.logger.Debug("CommandDevice::CreateCommandList", slog.String("ListType", listType.String()))

	list := &CommandList{
		device:   d,
		listType: listType,
	}

	err := list.Reset(allocator)
	if err != nil {
		return nil, err
	}

	return list, nil
}

// CreateResidencySet returns a set that only records membership: Vulkan memory bound to a live
// resource is always resident
func (d *CommandDevice) CreateResidencySet() (driver.ResidencySet, error) {
	return driver.NewTrackingResidencySet(), nil
}

func (d *CommandDevice) DestroyResidencySet(set driver.ResidencySet) {}
