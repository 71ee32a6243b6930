// Package driver describes the native objects the command list layer orchestrates. Implementations
// live in the vulkan and wgpu packages; tests use the mocks subpackage.
package driver

//go:generate mockgen -source driver.go -destination mocks/driver.go -package mocks

import (
	"time"

	"github.com/vkngwrapper/cmdtrack/cmdutils/barrier"
)

// ListType identifies the kind of queue a command list or allocator records work for
type ListType uint32

const (
	// ListTypeDirect lists may record graphics, compute and copy work
	ListTypeDirect ListType = iota
	// ListTypeCompute lists may record compute and copy work
	ListTypeCompute
	// ListTypeCopy lists may only record copy work
	ListTypeCopy
)

var listTypeMapping = map[ListType]string{
	ListTypeDirect:  "ListTypeDirect",
	ListTypeCompute: "ListTypeCompute",
	ListTypeCopy:    "ListTypeCopy",
}

func (t ListType) String() string {
	return listTypeMapping[t]
}

// CommandAllocator is the native memory pool command lists record into
type CommandAllocator interface {
	// Reset reclaims all memory recorded into the allocator. It must only be called once the GPU
	// has finished with every command list recorded from it.
	Reset() error
	Destroy()
}

// CommandList is a native command list. Lists are returned from Device.CreateCommandList open.
type CommandList interface {
	barrier.Recorder

	Close() error
	// Reset reopens a closed list, recording into allocator from now on
	Reset(allocator CommandAllocator) error
	Destroy()
}

// Fence is a point in a queue's command stream
type Fence interface {
	// IsComplete returns true once the GPU has executed past the fence
	IsComplete() bool
	// Wait blocks until the fence is complete or timeout elapses. It returns false if the
	// timeout elapsed first.
	Wait(timeout time.Duration) (bool, error)
}

// ResidencySet collects the objects a command list references so they can be made resident
// before the list executes
type ResidencySet interface {
	Open() error
	Close() error
	Insert(object any)
}

// Device creates the native objects backing command lists
type Device interface {
	CreateCommandAllocator(listType ListType) (CommandAllocator, error)
	CreateCommandList(listType ListType, allocator CommandAllocator) (CommandList, error)
	CreateResidencySet() (ResidencySet, error)
	DestroyResidencySet(set ResidencySet)
}

// Queue executes closed native command lists
type Queue interface {
	// Submit executes lists in order and returns a fence that completes after all of them
	Submit(lists []CommandList, residency []ResidencySet) (Fence, error)
}
