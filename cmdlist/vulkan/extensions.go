package vulkan

import (
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_timeline_semaphore"
)

// ExtensionData holds the optional extensions command recording and submission make use of. Any
// field may be nil.
type ExtensionData struct {
	// TimelineSemaphore is required by NewTimelineQueue
	TimelineSemaphore khr_timeline_semaphore.Extension
	// DebugUtils labels every recording with the type of list it is recorded for
	DebugUtils ext_debug_utils.Extension
}

// NewExtensionData loads every supported extension that is active on device or instance.
// instance may be nil.
func NewExtensionData(device core1_0.Device, instance core1_0.Instance) *ExtensionData {
	data := &ExtensionData{}

	if device.IsDeviceExtensionActive(khr_timeline_semaphore.ExtensionName) {
		data.TimelineSemaphore = khr_timeline_semaphore.CreateExtensionFromDevice(device)
	}

	if instance != nil && instance.IsInstanceExtensionActive(ext_debug_utils.ExtensionName) {
		data.DebugUtils = ext_debug_utils.CreateExtensionFromInstance(instance)
	}

	return data
}
