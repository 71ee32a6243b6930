package state

import (
	"math"

	"github.com/vkngwrapper/core/v2/common"
)

// ResourceStates is a bitmask of the GPU usage modes a resource or subresource can be in.
// Read states may be combined with one another, write states may not be combined with anything.
type ResourceStates int32

var resourceStatesMapping = common.NewFlagStringMapping[ResourceStates]()

func (s ResourceStates) Register(str string) {
	resourceStatesMapping.Register(s, str)
}

func (s ResourceStates) String() string {
	switch s {
	case ResourceStateTBD:
		return "ResourceStateTBD"
	case ResourceStateCorrupt:
		return "ResourceStateCorrupt"
	case ResourceStateCommon:
		return "ResourceStateCommon"
	}

	return resourceStatesMapping.FlagsToString(s)
}

const (
	// ResourceStateCommon is the state resources are created in and must be in to be accessed
	// across queue types. It is also the state swapchain images are presented in.
	ResourceStateCommon ResourceStates = 0
	// ResourceStateVertexAndConstantBuffer indicates a buffer is read as vertex or uniform data
	ResourceStateVertexAndConstantBuffer ResourceStates = 0x1
	// ResourceStateIndexBuffer indicates a buffer is read as index data
	ResourceStateIndexBuffer ResourceStates = 0x2
	// ResourceStateRenderTarget indicates a texture is written as a color attachment
	ResourceStateRenderTarget ResourceStates = 0x4
	// ResourceStateUnorderedAccess indicates a resource is read and written from shaders in unspecified order
	ResourceStateUnorderedAccess ResourceStates = 0x8
	// ResourceStateDepthWrite indicates a texture is written as a depth/stencil attachment
	ResourceStateDepthWrite ResourceStates = 0x10
	// ResourceStateDepthRead indicates a texture is used as a read-only depth/stencil attachment
	ResourceStateDepthRead ResourceStates = 0x20
	// ResourceStateNonPixelShaderResource indicates a resource is sampled or read by non-fragment shaders
	ResourceStateNonPixelShaderResource ResourceStates = 0x40
	// ResourceStatePixelShaderResource indicates a resource is sampled or read by fragment shaders
	ResourceStatePixelShaderResource ResourceStates = 0x80
	// ResourceStateStreamOut indicates a buffer is written by stream output
	ResourceStateStreamOut ResourceStates = 0x100
	// ResourceStateIndirectArgument indicates a buffer is read as indirect draw/dispatch arguments
	ResourceStateIndirectArgument ResourceStates = 0x200
	// ResourceStateCopyDest indicates a resource is the destination of a copy
	ResourceStateCopyDest ResourceStates = 0x400
	// ResourceStateCopySource indicates a resource is the source of a copy
	ResourceStateCopySource ResourceStates = 0x800
	// ResourceStateResolveDest indicates a texture is the destination of a multisample resolve
	ResourceStateResolveDest ResourceStates = 0x1000
	// ResourceStateResolveSource indicates a texture is the source of a multisample resolve
	ResourceStateResolveSource ResourceStates = 0x2000

	// ResourceStateGenericRead is the combination of every buffer-compatible read state
	ResourceStateGenericRead ResourceStates = ResourceStateVertexAndConstantBuffer |
		ResourceStateIndexBuffer |
		ResourceStateNonPixelShaderResource |
		ResourceStatePixelShaderResource |
		ResourceStateIndirectArgument |
		ResourceStateCopySource
	// ResourceStatePresent is the state swapchain images must be in to be presented
	ResourceStatePresent ResourceStates = ResourceStateCommon

	// ResourceStateTBD marks a subresource whose state is not yet known by the command list
	// recording it. A transition out of this state cannot be recorded locally: it must be deferred
	// to execution time, when the state committed by earlier submissions is known.
	ResourceStateTBD ResourceStates = math.MinInt32
	// ResourceStateCorrupt marks a subresource whose tracked state can no longer be trusted
	ResourceStateCorrupt ResourceStates = -2

	writeStates ResourceStates = ResourceStateRenderTarget |
		ResourceStateUnorderedAccess |
		ResourceStateDepthWrite |
		ResourceStateStreamOut |
		ResourceStateCopyDest |
		ResourceStateResolveDest
)

func init() {
	ResourceStateVertexAndConstantBuffer.Register("VertexAndConstantBuffer")
	ResourceStateIndexBuffer.Register("IndexBuffer")
	ResourceStateRenderTarget.Register("RenderTarget")
	ResourceStateUnorderedAccess.Register("UnorderedAccess")
	ResourceStateDepthWrite.Register("DepthWrite")
	ResourceStateDepthRead.Register("DepthRead")
	ResourceStateNonPixelShaderResource.Register("NonPixelShaderResource")
	ResourceStatePixelShaderResource.Register("PixelShaderResource")
	ResourceStateStreamOut.Register("StreamOut")
	ResourceStateIndirectArgument.Register("IndirectArgument")
	ResourceStateCopyDest.Register("CopyDest")
	ResourceStateCopySource.Register("CopySource")
	ResourceStateResolveDest.Register("ResolveDest")
	ResourceStateResolveSource.Register("ResolveSource")
}

// IsKnown returns false for the TBD and Corrupt sentinels
func (s ResourceStates) IsKnown() bool {
	return s != ResourceStateTBD && s != ResourceStateCorrupt
}

// IsReadOnly returns true if the state contains no write states. Read-only states
// can be combined with one another freely.
func (s ResourceStates) IsReadOnly() bool {
	return s.IsKnown() && s&writeStates == 0
}

// IsValidCombination returns false if a write state has been combined with any other state
func (s ResourceStates) IsValidCombination() bool {
	if !s.IsKnown() {
		return false
	}

	writes := s & writeStates
	if writes == 0 {
		return true
	}

	// A single write bit may not share the mask with anything else
	return s == writes && writes&(writes-1) == 0
}
