package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
)

// Texture is implemented by tracked resources backed by a hal.Texture. Transitions always cover
// the whole texture.
type Texture interface {
	state.Resource

	HALTexture() hal.Texture
}

// Buffer is implemented by tracked resources backed by a hal.Buffer
type Buffer interface {
	state.Resource

	HALBuffer() hal.Buffer
}

const (
	storageTextureUsage = gputypes.TextureUsageStorageBinding
	storageBufferUsage  = gputypes.BufferUsageStorage
)

var textureUsageMapping = []struct {
	state state.ResourceStates
	usage gputypes.TextureUsage
}{
	{state.ResourceStateRenderTarget, gputypes.TextureUsageRenderAttachment},
	{state.ResourceStateDepthWrite, gputypes.TextureUsageRenderAttachment},
	{state.ResourceStateDepthRead, gputypes.TextureUsageRenderAttachment},
	{state.ResourceStateUnorderedAccess, gputypes.TextureUsageStorageBinding},
	{state.ResourceStateNonPixelShaderResource, gputypes.TextureUsageTextureBinding},
	{state.ResourceStatePixelShaderResource, gputypes.TextureUsageTextureBinding},
	{state.ResourceStateCopyDest, gputypes.TextureUsageCopyDst},
	{state.ResourceStateCopySource, gputypes.TextureUsageCopySrc},
	{state.ResourceStateResolveDest, gputypes.TextureUsageRenderAttachment},
	{state.ResourceStateResolveSource, gputypes.TextureUsageRenderAttachment},
}

// TextureUsage is the usage a texture in resourceState is transitioned for. Common and unknown
// states map to no usage.
func TextureUsage(resourceState state.ResourceStates) gputypes.TextureUsage {
	if !resourceState.IsKnown() {
		return 0
	}

	var usage gputypes.TextureUsage
	for _, mapping := range textureUsageMapping {
		if resourceState&mapping.state != 0 {
			usage |= mapping.usage
		}
	}
	return usage
}

var bufferUsageMapping = []struct {
	state state.ResourceStates
	usage gputypes.BufferUsage
}{
	{state.ResourceStateVertexAndConstantBuffer, gputypes.BufferUsageVertex | gputypes.BufferUsageUniform},
	{state.ResourceStateIndexBuffer, gputypes.BufferUsageIndex},
	{state.ResourceStateUnorderedAccess, gputypes.BufferUsageStorage},
	{state.ResourceStateNonPixelShaderResource, gputypes.BufferUsageStorage},
	{state.ResourceStatePixelShaderResource, gputypes.BufferUsageStorage},
	{state.ResourceStateStreamOut, gputypes.BufferUsageStorage},
	{state.ResourceStateIndirectArgument, gputypes.BufferUsageIndirect},
	{state.ResourceStateCopyDest, gputypes.BufferUsageCopyDst},
	{state.ResourceStateCopySource, gputypes.BufferUsageCopySrc},
}

// BufferUsage is the usage a buffer in resourceState is transitioned for
func BufferUsage(resourceState state.ResourceStates) gputypes.BufferUsage {
	if !resourceState.IsKnown() {
		return 0
	}

	var usage gputypes.BufferUsage
	for _, mapping := range bufferUsageMapping {
		if resourceState&mapping.state != 0 {
			usage |= mapping.usage
		}
	}
	return usage
}
