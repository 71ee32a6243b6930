package cmdlist

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cmdtrack/cmdlist/driver"
	"github.com/vkngwrapper/cmdtrack/cmdlist/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
)

// CreateFlags indicate specific manager behaviors to activate or deactivate
type CreateFlags int32

var managerCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	managerCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return managerCreateFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that this manager's pools will not be synchronized
	// internally. The consumer must guarantee that command lists and allocators are obtained,
	// executed and released from only one thread at a time. Completion queries and waits on
	// individual command lists remain synchronized regardless.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

// DefaultFenceTimeout is how long a wait on a submitted generation blocks before the device is
// presumed lost, when no FenceTimeout is provided via CreateOptions
const DefaultFenceTimeout time.Duration = 30 * time.Second

// CreateOptions contains optional settings when creating a manager
type CreateOptions struct {
	// Flags indicates specific manager behaviors to activate or deactivate
	Flags CreateFlags

	// FenceTimeout bounds every blocking wait on a fence. A fence that has not signaled within the
	// timeout causes the wait to panic with cmdutils.ErrFenceTimeout. Leaving it zero uses
	// DefaultFenceTimeout.
	FenceTimeout time.Duration

	// InitialAllocatorCount is the number of command allocators created up front and placed in the
	// ready pool. It can be left zero, in which case allocators are created as they are needed.
	InitialAllocatorCount int
}

// New creates a new Manager that records command lists of listType on device and executes them
// on queue
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, device driver.Device, queue driver.Queue, listType driver.ListType, options CreateOptions) (*Manager, error) {
	if options.FenceTimeout < 0 {
		return nil, errors.Newf("cmdlist.CreateOptions.FenceTimeout must not be negative, but %s was provided", options.FenceTimeout)
	}
	if options.InitialAllocatorCount < 0 {
		return nil, errors.Newf("cmdlist.CreateOptions.InitialAllocatorCount must not be negative, but %d was provided", options.InitialAllocatorCount)
	}

	useMutex := options.Flags&CreateExternallySynchronized == 0

	manager := &Manager{
		logger:      logger,
		device:      device,
		queue:       queue,
		listType:    listType,
		createFlags: options.Flags,
		poolMutex: utils.OptionalMutex{
			UseMutex: useMutex,
		},
		executeMutex: utils.OptionalMutex{
			UseMutex: useMutex,
		},
		fenceTimeout: options.FenceTimeout,
	}

	if manager.fenceTimeout == 0 {
		manager.fenceTimeout = DefaultFenceTimeout
	}
	manager.journal.Init()

	for i := 0; i < options.InitialAllocatorCount; i++ {
		allocator, err := manager.createAllocator()
		if err != nil {
			manager.destroyPools()
			return nil, err
		}

		manager.readyAllocators = append(manager.readyAllocators, allocator)
	}

	logger.Debug("Manager::New",
		slog.String("ListType", listType.String()),
		slog.String("Flags", options.Flags.String()),
		slog.Int("InitialAllocatorCount", options.InitialAllocatorCount),
	)

	return manager, nil
}
